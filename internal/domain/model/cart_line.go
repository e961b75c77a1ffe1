package model

// CartLine は「商品参照 + 数量」。
// ゲストカートでは ProductRef は slug、サーバーカートでは product id。
type CartLine struct {
	ProductRef string `json:"product_ref"`
	Quantity   int64  `json:"quantity"`
}

// GuestLine は端末に保存するゲストカートの1行（保存形式）。
type GuestLine struct {
	ProductSlug string `json:"productSlug"`
	Quantity    int64  `json:"quantity"`
}

// SyncLine は /cart/sync に送る1行。
type SyncLine struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"gte=1"`
}

func (l GuestLine) Line() CartLine {
	return CartLine{ProductRef: l.ProductSlug, Quantity: l.Quantity}
}
