package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 在庫の書き換えは必ず履歴とセット。
type InventoryRepository interface {
	// adj.NewStock を在庫に反映し、adj を履歴として保存する。商品が無ければ ErrNotFound。
	Apply(ctx context.Context, adj model.InventoryAdjustment) error
}
