package cart

import (
	"context"

	"storefront/internal/domain/model"
)

// ProductCatalog は商品の参照（id でも slug でも）。
// 見つからなければ ErrNotFound。購入できなくなった商品として扱い、致命的にはしない。
type ProductCatalog interface {
	Resolve(ctx context.Context, slugOrID string) (model.Product, error)
}

// ServerCartAPI はサーバーカートのエンドポイント。
// どれも成功すればカート全体のスナップショットを返す。
type ServerCartAPI interface {
	FetchCart(ctx context.Context) (model.CartSnapshot, error)
	AddLine(ctx context.Context, productID string, qty int64) (model.CartSnapshot, error)
	SetLineQuantity(ctx context.Context, productID string, qty int64) (model.CartSnapshot, error)
	RemoveLine(ctx context.Context, productID string) (model.CartSnapshot, error)
	ClearCart(ctx context.Context) (model.CartSnapshot, error)
	SyncLines(ctx context.Context, lines []model.SyncLine) (model.CartSnapshot, error)
}

// AuthSignal はログイン状態。コアは問い合わせるだけでログイン/ログアウトはしない。
type AuthSignal interface {
	IsAuthenticated() bool
	// 戻り値で購読解除
	Subscribe(fn func(authenticated bool)) func()
}

// OrderCheckout は注文確定の外部コラボレーター。
type OrderCheckout interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderReceipt, error)
}

type OrderRequest struct {
	Items  []Item
	Totals Totals
}

type OrderReceipt struct {
	OrderID string
}
