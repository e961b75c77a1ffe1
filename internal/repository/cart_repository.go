package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// CartRepository はカート本体（ヘッダ）。明細は CartItemRepository。
type CartRepository interface {
	// ForUser は無ければ作る
	ForUser(ctx context.Context, userID int64) (model.Cart, error)
	Clear(ctx context.Context, cartID int64) error
}
