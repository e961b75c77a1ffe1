package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// サーバーカートの明細。cart_id + product_id で一意。
// 追加時点の価格を必ず保存。
type CartItem struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	CartID            int64           `gorm:"not null;uniqueIndex:idx_cart_product" json:"cart_id"`
	ProductID         string          `gorm:"type:varchar(36);not null;uniqueIndex:idx_cart_product" json:"product_id"`
	Quantity          int64           `gorm:"not null" json:"quantity"`
	UnitPriceSnapshot decimal.Decimal `gorm:"type:numeric(12,2);not null;column:unit_price_snapshot" json:"unit_price_snapshot"`
	CreatedAt         time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
