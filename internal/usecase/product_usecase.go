package usecase

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/logger"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ProductUsecase struct {
	productRepo repo.ProductRepository
	tx          repo.TransactionManager
	idGen       IDGenerator
	clock       Clock
}

// DI
func NewProductUsecase(
	productRepo repo.ProductRepository,
	tx repo.TransactionManager,
	idGen IDGenerator,
	clock Clock,
) *ProductUsecase {
	return &ProductUsecase{
		productRepo: productRepo,
		tx:          tx,
		idGen:       idGen,
		clock:       clock,
	}
}

// GET /productsの入力DTO
type ListProductsInput struct {
	Page     int
	Limit    int
	Q        string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	InStock  bool
	Sort     string
}

type ProductListOutput struct {
	Items []model.Product `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func (u *ProductUsecase) ListPublicProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if in.Page < 1 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if len(in.Q) > 100 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "q too long")
	}
	if in.MinPrice != nil && in.MinPrice.IsNegative() {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "min_price must be >= 0")
	}
	if in.MaxPrice != nil && in.MaxPrice.IsNegative() {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "max_price must be >= 0")
	}
	if in.MinPrice != nil && in.MaxPrice != nil && in.MinPrice.GreaterThan(*in.MaxPrice) {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "min_price must be <= max_price")
	}
	switch in.Sort {
	case "", "new", "price_asc", "price_desc":
	default:
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid sort")
	}

	items, total, err := u.productRepo.ListPublic(ctx, repo.ProductListQuery{
		Page:     in.Page,
		Limit:    in.Limit,
		Q:        strings.TrimSpace(in.Q),
		MinPrice: in.MinPrice,
		MaxPrice: in.MaxPrice,
		InStock:  in.InStock,
		Sort:     in.Sort,
	})
	if err != nil {
		return ProductListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return ProductListOutput{
		Items: items,
		Total: total,
		Page:  in.Page,
		Limit: in.Limit,
	}, nil
}

// GetProduct は id でも slug でも引ける（カタログの resolve）。
// 非公開の商品も返す。購入可否は is_active / stock で判断させる。
func (u *ProductUsecase) GetProduct(ctx context.Context, ref string) (model.Product, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid product ref")
	}

	var (
		p   model.Product
		err error
	)
	if _, parseErr := uuid.Parse(ref); parseErr == nil {
		p, err = u.productRepo.FindByID(ctx, ref)
	} else {
		err = repo.ErrNotFound
	}
	//uuidで見つからなければslugとして探す
	if errors.Is(err, repo.ErrNotFound) {
		p, err = u.productRepo.FindBySlug(ctx, ref)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NewHTTPError(http.StatusNotFound, MsgNotFound)
	}
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return p, nil
}

type AdminCreateProductInput struct {
	Name        string
	Slug        string
	Description string
	Price       decimal.Decimal
	Stock       int64
	IsActive    bool
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// 名前からslugを作る（"Dark Roast Beans" -> "dark-roast-beans"）
func Slugify(name string) string {
	s := slugUnsafe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	return strings.Trim(s, "-")
}

func (u *ProductUsecase) validateProductInput(in AdminCreateProductInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return NewHTTPError(http.StatusBadRequest, "name required")
	}
	if in.Price.IsNegative() {
		return NewHTTPError(http.StatusBadRequest, "price must be >= 0")
	}
	if in.Stock < 0 {
		return NewHTTPError(http.StatusBadRequest, "stock must be >= 0")
	}
	return nil
}

func (u *ProductUsecase) AdminCreateProduct(ctx context.Context, adminUserID int64, in AdminCreateProductInput) (model.Product, error) {
	if adminUserID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := u.validateProductInput(in); err != nil {
		return model.Product{}, err
	}

	slug := Slugify(in.Slug)
	if slug == "" {
		slug = Slugify(in.Name)
	}

	//slugの重複は409
	if _, err := u.productRepo.FindBySlug(ctx, slug); err == nil {
		return model.Product{}, NewHTTPError(http.StatusConflict, "slug already exists")
	} else if !errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	now := u.clock.Now()
	p, err := u.productRepo.Create(ctx, model.Product{
		ID:          u.idGen.NewID(),
		Slug:        slug,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		IsActive:    in.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return p, nil
}

func (u *ProductUsecase) AdminUpdateProduct(ctx context.Context, adminUserID int64, productID string, in AdminCreateProductInput) error {
	if adminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(productID) == "" {
		return NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	if err := u.validateProductInput(in); err != nil {
		return err
	}

	current, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, MsgNotFound)
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	slug := Slugify(in.Slug)
	if slug == "" {
		slug = current.Slug
	}

	err = u.productRepo.Update(ctx, model.Product{
		ID:          productID,
		Slug:        slug,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		IsActive:    in.IsActive,
		UpdatedAt:   u.clock.Now(),
	})
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, MsgNotFound)
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

func (u *ProductUsecase) AdminDeleteProduct(ctx context.Context, adminUserID int64, productID string) error {
	if adminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(productID) == "" {
		return NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	err := u.productRepo.SoftDelete(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, MsgNotFound)
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

// 在庫を現在値に更新し、調整履歴も同じTxで残す。
// カートに入っている数量は触らない（チェックアウト前の在庫確認で検出させる）。
func (u *ProductUsecase) AdminUpdateInventory(ctx context.Context, adminUserID int64, productID string, newStock int64, reason string) error {
	if adminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(productID) == "" {
		return NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	if newStock < 0 {
		return NewHTTPError(http.StatusBadRequest, "stock must be >= 0")
	}
	if strings.TrimSpace(reason) == "" {
		return NewHTTPError(http.StatusBadRequest, "reason required")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//変更前の在庫（before）
		p, err := r.Products().FindByID(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, MsgNotFound)
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		adj := model.NewInventoryAdjustment(productID, adminUserID, p.Stock, newStock, strings.TrimSpace(reason), u.clock.Now())
		if err := r.Inventory().Apply(ctx, adj); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusNotFound, MsgNotFound)
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		logger.FromContext(ctx).Info("inventory updated",
			zap.String("product_id", productID),
			zap.Int64("previous", adj.PreviousStock),
			zap.Int64("new", adj.NewStock),
		)
		return nil
	})
}
