package repository

import (
	"context"
	"errors"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProductGormRepository struct {
	db *gorm.DB
}

// DI
func NewProductGormRepository(db *gorm.DB) *ProductGormRepository {
	return &ProductGormRepository{db: db}
}

// ListPublic は公開中の商品だけを返す。total はページング前の件数。
func (r *ProductGormRepository) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	filtered := r.db.WithContext(ctx).Model(&model.Product{}).
		Scopes(publicOnly, nameContains(q.Q), priceBetween(q.MinPrice, q.MaxPrice), inStockOnly(q.InStock))

	var total int64
	if err := filtered.Count(&total).Error; err != nil {
		return []model.Product{}, 0, err
	}

	products := []model.Product{}
	err := filtered.
		Scopes(sortBy(q.Sort), paginate(q.Page, q.Limit)).
		Find(&products).Error
	if err != nil {
		return []model.Product{}, 0, err
	}
	return products, total, nil
}

func publicOnly(db *gorm.DB) *gorm.DB {
	return db.Where("is_active = ?", true)
}

func nameContains(q string) func(*gorm.DB) *gorm.DB {
	q = strings.ToLower(strings.TrimSpace(q))
	return func(db *gorm.DB) *gorm.DB {
		if q == "" {
			return db
		}
		return db.Where("LOWER(name) LIKE ?", "%"+q+"%")
	}
}

func priceBetween(lo, hi *decimal.Decimal) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if lo != nil {
			db = db.Where("price >= ?", *lo)
		}
		if hi != nil {
			db = db.Where("price <= ?", *hi)
		}
		return db
	}
}

func inStockOnly(on bool) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if !on {
			return db
		}
		return db.Where("stock > 0")
	}
}

// 同じ値のときは id で順序を固定
func sortBy(key string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch key {
		case "price_asc":
			return db.Order("price asc").Order("id asc")
		case "price_desc":
			return db.Order("price desc").Order("id desc")
		default:
			return db.Order("created_at desc").Order("id desc")
		}
	}
}

func paginate(page, limit int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if page < 1 {
			page = 1
		}
		if limit < 1 {
			return db
		}
		return db.Offset((page - 1) * limit).Limit(limit)
	}
}

func (r *ProductGormRepository) FindByID(ctx context.Context, id string) (model.Product, error) {
	return r.findOne(ctx, "id = ?", id)
}

// 削除済みは見つからない扱い
func (r *ProductGormRepository) FindBySlug(ctx context.Context, slug string) (model.Product, error) {
	return r.findOne(ctx, "slug = ?", slug)
}

func (r *ProductGormRepository) findOne(ctx context.Context, cond string, arg string) (model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).Where(cond, arg).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Product{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// 商品の作成
func (r *ProductGormRepository) Create(ctx context.Context, p model.Product) (model.Product, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// 商品の更新
func (r *ProductGormRepository) Update(ctx context.Context, p model.Product) error {
	res := r.db.WithContext(ctx).Model(&model.Product{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
		"name":        p.Name,
		"slug":        p.Slug,
		"description": p.Description,
		"price":       p.Price,
		"stock":       p.Stock,
		"is_active":   p.IsActive,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 商品削除
func (r *ProductGormRepository) SoftDelete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Product{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
