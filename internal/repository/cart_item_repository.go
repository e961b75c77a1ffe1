package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"storefront/internal/domain/model"
)

type CartItemRepository interface {
	ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error)
	FindByCartAndProduct(ctx context.Context, cartID int64, productID string) (model.CartItem, error)
	// 同一商品はプラス
	UpsertByCartAndProduct(ctx context.Context, cartID int64, productID string, addQty int64, unitPriceSnapshot decimal.Decimal) error
	// 数量を上書き（無ければ作る）
	SetQuantityByCartAndProduct(ctx context.Context, cartID int64, productID string, qty int64, unitPriceSnapshot decimal.Decimal) error
	// 無ければ何もしない
	DeleteByCartAndProduct(ctx context.Context, cartID int64, productID string) error
}
