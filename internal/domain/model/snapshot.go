package model

import "github.com/shopspring/decimal"

// CartSnapshot はサーバーが返すカートの全体像。
// クライアントはこれを丸ごと置き換えるだけで、部分的に書き換えない。
type CartSnapshot struct {
	ID          int64            `json:"id"`
	UserID      int64            `json:"user_id"`
	Items       []SnapshotItem   `json:"items"`
	ItemCount   int64            `json:"item_count"`
	Subtotal    decimal.Decimal  `json:"subtotal"`
	Adjustments []SyncAdjustment `json:"adjustments,omitempty"`
}

// SnapshotItem はカート明細 + 取得時点の商品情報。
type SnapshotItem struct {
	ProductID string          `json:"product_id"`
	Slug      string          `json:"slug"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int64           `json:"stock"`
	IsActive  bool            `json:"is_active"`
	Quantity  int64           `json:"quantity"`
}

// Product は明細に埋め込まれた商品情報を Product として返す。
func (it SnapshotItem) Product() Product {
	return Product{
		ID:       it.ProductID,
		Slug:     it.Slug,
		Name:     it.Name,
		Price:    it.Price,
		Stock:    it.Stock,
		IsActive: it.IsActive,
	}
}

// Lines は CartLine（product id キー）に変換する。
func (s CartSnapshot) Lines() []CartLine {
	out := make([]CartLine, 0, len(s.Items))
	for _, it := range s.Items {
		out = append(out, CartLine{ProductRef: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

// Clone はスライスを共有しないコピー。
func (s CartSnapshot) Clone() CartSnapshot {
	c := s
	c.Items = append([]SnapshotItem(nil), s.Items...)
	c.Adjustments = append([]SyncAdjustment(nil), s.Adjustments...)
	return c
}

// 同期時にサーバーが数量を変えた理由
type AdjustmentReason string

const (
	AdjustmentClamped    AdjustmentReason = "CLAMPED_TO_STOCK"
	AdjustmentOutOfStock AdjustmentReason = "OUT_OF_STOCK"
	AdjustmentNotFound   AdjustmentReason = "NOT_FOUND"
)

// SyncAdjustment は同期でリクエスト通りにならなかった行。
type SyncAdjustment struct {
	ProductID string           `json:"product_id"`
	Requested int64            `json:"requested"`
	Applied   int64            `json:"applied"`
	Reason    AdjustmentReason `json:"reason"`
}
