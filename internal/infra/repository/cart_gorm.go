package repository

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartGormRepository struct {
	db *gorm.DB
}

// DI
func NewCartGormRepository(db *gorm.DB) *CartGormRepository {
	return &CartGormRepository{db: db}
}

// ユーザーのカートを返す。無ければ作る。
// user_id は unique なので、同時に作られた場合は負けた側が読み直す。
func (r *CartGormRepository) ForUser(ctx context.Context, userID int64) (model.Cart, error) {
	db := r.db.WithContext(ctx)

	cart, err := findCartByUser(db, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Cart{}, err
	}

	cart = model.Cart{UserID: userID}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&cart)
	if res.Error != nil {
		return model.Cart{}, res.Error
	}
	if res.RowsAffected == 1 {
		return cart, nil
	}
	return findCartByUser(db, userID)
}

func findCartByUser(db *gorm.DB, userID int64) (model.Cart, error) {
	var cart model.Cart
	err := db.Where("user_id = ?", userID).Take(&cart).Error
	return cart, err
}

// Clear は明細だけ消す。カート本体は残す。
func (r *CartGormRepository) Clear(ctx context.Context, cartID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.Cart{}).Where("id = ?", cartID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return repo.ErrNotFound
		}
		return tx.Where("cart_id = ?", cartID).Delete(&model.CartItem{}).Error
	})
}

// カート明細を一覧取得（追加順）
func (r *CartGormRepository) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	var items []model.CartItem

	if err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("id asc").
		Find(&items).Error; err != nil {
		return []model.CartItem{}, err
	}

	return items, nil
}

// カート + 商品で明細を1件取得
func (r *CartGormRepository) FindByCartAndProduct(ctx context.Context, cartID int64, productID string) (model.CartItem, error) {
	var item model.CartItem

	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		First(&item).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.CartItem{}, repo.ErrNotFound
	}
	if err != nil {
		return model.CartItem{}, err
	}
	return item, nil
}

// 同一商品は数量加算
func (r *CartGormRepository) UpsertByCartAndProduct(ctx context.Context, cartID int64, productID string, addQty int64, unitPriceSnapshot decimal.Decimal) error {

	if addQty <= 0 {
		return errors.New("invalid quantity")
	}

	return r.writeItem(ctx, cartID, productID, unitPriceSnapshot, func(current int64) int64 {
		return current + addQty
	})
}

// 数量を上書き。0以下は削除。
func (r *CartGormRepository) SetQuantityByCartAndProduct(ctx context.Context, cartID int64, productID string, qty int64, unitPriceSnapshot decimal.Decimal) error {
	if qty <= 0 {
		return r.DeleteByCartAndProduct(ctx, cartID, productID)
	}

	return r.writeItem(ctx, cartID, productID, unitPriceSnapshot, func(int64) int64 {
		return qty
	})
}

// 行ロックを取って next(現在数量) を書き込む。無ければ作る。
func (r *CartGormRepository) writeItem(ctx context.Context, cartID int64, productID string, unitPriceSnapshot decimal.Decimal, next func(current int64) int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item model.CartItem

		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("cart_id = ? AND product_id = ?", cartID, productID).
			First(&item).Error

		if err == nil {
			res := tx.Model(&model.CartItem{}).
				Where("id = ?", item.ID).
				Update("quantity", next(item.Quantity))

			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return repo.ErrNotFound
			}
			return nil
		}

		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		//無い場合は新規作成
		now := time.Now()
		newItem := model.CartItem{
			CartID:            cartID,
			ProductID:         productID,
			Quantity:          next(0),
			UnitPriceSnapshot: unitPriceSnapshot,
			CreatedAt:         now,
			UpdatedAt:         now,
		}

		return tx.Create(&newItem).Error
	})
}

// 明細を削除（無ければ何もしない）
func (r *CartGormRepository) DeleteByCartAndProduct(ctx context.Context, cartID int64, productID string) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Delete(&model.CartItem{}).Error
}
