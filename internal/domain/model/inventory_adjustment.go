package model

import "time"

// 管理者による在庫の書き換え履歴。カートの数量はここでは変えない。
type InventoryAdjustment struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID     string    `gorm:"type:varchar(36);not null;index" json:"product_id"`
	AdminUserID   int64     `gorm:"not null;index" json:"admin_user_id"`
	PreviousStock int64     `gorm:"not null" json:"previous_stock"`
	NewStock      int64     `gorm:"not null" json:"new_stock"`
	Delta         int64     `gorm:"not null" json:"delta"` // NewStock - PreviousStock
	Reason        string    `gorm:"type:varchar(255);not null" json:"reason"`
	CreatedAt     time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

// NewInventoryAdjustment は差分を計算して履歴を作る
func NewInventoryAdjustment(productID string, adminUserID, previous, next int64, reason string, at time.Time) InventoryAdjustment {
	return InventoryAdjustment{
		ProductID:     productID,
		AdminUserID:   adminUserID,
		PreviousStock: previous,
		NewStock:      next,
		Delta:         next - previous,
		Reason:        reason,
		CreatedAt:     at,
	}
}
