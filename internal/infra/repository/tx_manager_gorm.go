package repository

import (
	"context"

	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

// txRepos は tx を持った *gorm.DB からその場でリポジトリを作る
type txRepos struct {
	tx *gorm.DB
}

func (r txRepos) Carts() repo.CartRepository          { return NewCartGormRepository(r.tx) }
func (r txRepos) CartItems() repo.CartItemRepository  { return NewCartGormRepository(r.tx) }
func (r txRepos) Products() repo.ProductRepository    { return NewProductGormRepository(r.tx) }
func (r txRepos) Inventory() repo.InventoryRepository { return NewInventoryGormRepository(r.tx) }

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(txRepos{tx: tx})
	})
}
