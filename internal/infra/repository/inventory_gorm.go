package repository

import (
	"context"
	"fmt"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

// Apply は在庫更新と履歴作成。TxManager の中で呼ばれる前提（単体でも1Txにまとめる）。
func (r *InventoryGormRepository) Apply(ctx context.Context, adj model.InventoryAdjustment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Product{}).
			Where("id = ?", adj.ProductID).
			Update("stock", adj.NewStock)
		if res.Error != nil {
			return fmt.Errorf("update stock: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return repo.ErrNotFound
		}

		if err := tx.Create(&adj).Error; err != nil {
			return fmt.Errorf("create inventory adjustment: %w", err)
		}
		return nil
	})
}
