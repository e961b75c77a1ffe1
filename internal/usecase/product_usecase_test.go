package usecase_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testUUID = "9f1c2a6e-1111-4c3b-9a55-0a1b2c3d4e5f"

func newProductUsecase(pRepo repo.ProductRepository, inv repo.InventoryRepository) *usecase.ProductUsecase {
	tx := &fakeTx{repos: &fakeTxRepos{products: pRepo, inventory: inv}}
	return usecase.NewProductUsecase(
		pRepo,
		tx,
		fixedIDGen{id: testUUID},
		fixedClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
	)
}

func TestProductUsecase_ListPublicProducts_InvalidPage(t *testing.T) {
	uc := newProductUsecase(new(ProductRepoMock), new(InventoryRepoMock))

	_, err := uc.ListPublicProducts(context.Background(), usecase.ListProductsInput{Page: 0, Limit: 20})
	assertHTTPError(t, err, http.StatusBadRequest, "invalid page")
}

func TestProductUsecase_ListPublicProducts_InvalidPriceRange(t *testing.T) {
	uc := newProductUsecase(new(ProductRepoMock), new(InventoryRepoMock))

	minP := decimal.NewFromInt(500)
	maxP := decimal.NewFromInt(100)
	_, err := uc.ListPublicProducts(context.Background(), usecase.ListProductsInput{
		Page: 1, Limit: 20, MinPrice: &minP, MaxPrice: &maxP,
	})
	assertHTTPError(t, err, http.StatusBadRequest, "min_price must be <= max_price")
}

func TestProductUsecase_ListPublicProducts_Success(t *testing.T) {
	pRepo := new(ProductRepoMock)
	uc := newProductUsecase(pRepo, new(InventoryRepoMock))

	q := repo.ProductListQuery{Page: 1, Limit: 20, Q: "coffee", Sort: "new", InStock: true}
	pRepo.On("ListPublic", mock.Anything, q).
		Return([]model.Product{{ID: testUUID, Name: "A", IsActive: true}}, int64(1), nil)

	out, err := uc.ListPublicProducts(context.Background(), usecase.ListProductsInput{
		Page: 1, Limit: 20, Q: "  coffee ", Sort: "new", InStock: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Total)
	assert.Len(t, out.Items, 1)
	pRepo.AssertExpectations(t)
}

func TestProductUsecase_GetProduct_ByID(t *testing.T) {
	pRepo := new(ProductRepoMock)
	uc := newProductUsecase(pRepo, new(InventoryRepoMock))

	pRepo.On("FindByID", mock.Anything, testUUID).Return(model.Product{ID: testUUID, Slug: "beans"}, nil)

	p, err := uc.GetProduct(context.Background(), testUUID)
	require.NoError(t, err)
	assert.Equal(t, "beans", p.Slug)
	pRepo.AssertNotCalled(t, "FindBySlug", mock.Anything, mock.Anything)
}

func TestProductUsecase_GetProduct_BySlug(t *testing.T) {
	pRepo := new(ProductRepoMock)
	uc := newProductUsecase(pRepo, new(InventoryRepoMock))

	pRepo.On("FindBySlug", mock.Anything, "dark-roast").Return(model.Product{ID: testUUID, Slug: "dark-roast"}, nil)

	p, err := uc.GetProduct(context.Background(), "dark-roast")
	require.NoError(t, err)
	assert.Equal(t, testUUID, p.ID)
	pRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestProductUsecase_GetProduct_InactiveStillReturned(t *testing.T) {
	pRepo := new(ProductRepoMock)
	uc := newProductUsecase(pRepo, new(InventoryRepoMock))

	pRepo.On("FindBySlug", mock.Anything, "retired").Return(model.Product{ID: testUUID, Slug: "retired", IsActive: false}, nil)

	p, err := uc.GetProduct(context.Background(), "retired")
	require.NoError(t, err)
	assert.False(t, p.Purchasable())
}

func TestProductUsecase_GetProduct_NotFound(t *testing.T) {
	pRepo := new(ProductRepoMock)
	uc := newProductUsecase(pRepo, new(InventoryRepoMock))

	pRepo.On("FindByID", mock.Anything, testUUID).Return(model.Product{}, repo.ErrNotFound)
	pRepo.On("FindBySlug", mock.Anything, testUUID).Return(model.Product{}, repo.ErrNotFound)

	_, err := uc.GetProduct(context.Background(), testUUID)
	assertHTTPError(t, err, http.StatusNotFound, usecase.MsgNotFound)
}

func TestProductUsecase_GetProduct_DBError(t *testing.T) {
	pRepo := new(ProductRepoMock)
	uc := newProductUsecase(pRepo, new(InventoryRepoMock))

	pRepo.On("FindBySlug", mock.Anything, "x").Return(model.Product{}, errors.New("boom"))

	_, err := uc.GetProduct(context.Background(), "x")
	assertHTTPError(t, err, http.StatusInternalServerError, "db error")
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "dark-roast-beans", usecase.Slugify("  Dark Roast  Beans! "))
	assert.Equal(t, "", usecase.Slugify("!!!"))
}

func TestProductUsecase_AdminCreateProduct_Success(t *testing.T) {
	pRepo := new(ProductRepoMock)
	uc := newProductUsecase(pRepo, new(InventoryRepoMock))

	pRepo.On("FindBySlug", mock.Anything, "dark-roast").Return(model.Product{}, repo.ErrNotFound)
	pRepo.On("Create", mock.Anything, mock.MatchedBy(func(p model.Product) bool {
		return p.ID == testUUID && p.Slug == "dark-roast" && p.Name == "Dark Roast" && p.Stock == 5
	})).Return(model.Product{ID: testUUID, Slug: "dark-roast"}, nil)

	p, err := uc.AdminCreateProduct(context.Background(), 1, usecase.AdminCreateProductInput{
		Name: "Dark Roast", Price: decimal.NewFromInt(300), Stock: 5, IsActive: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "dark-roast", p.Slug)
	pRepo.AssertExpectations(t)
}

func TestProductUsecase_AdminCreateProduct_DuplicateSlug(t *testing.T) {
	pRepo := new(ProductRepoMock)
	uc := newProductUsecase(pRepo, new(InventoryRepoMock))

	pRepo.On("FindBySlug", mock.Anything, "beans").Return(model.Product{ID: "other"}, nil)

	_, err := uc.AdminCreateProduct(context.Background(), 1, usecase.AdminCreateProductInput{
		Name: "Beans", Price: decimal.NewFromInt(1),
	})
	assertHTTPError(t, err, http.StatusConflict, "slug already exists")
	pRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestProductUsecase_AdminCreateProduct_Validation(t *testing.T) {
	uc := newProductUsecase(new(ProductRepoMock), new(InventoryRepoMock))

	_, err := uc.AdminCreateProduct(context.Background(), 1, usecase.AdminCreateProductInput{Name: " "})
	assertHTTPError(t, err, http.StatusBadRequest, "name required")

	_, err = uc.AdminCreateProduct(context.Background(), 1, usecase.AdminCreateProductInput{Name: "A", Stock: -1})
	assertHTTPError(t, err, http.StatusBadRequest, "stock must be >= 0")

	_, err = uc.AdminCreateProduct(context.Background(), 0, usecase.AdminCreateProductInput{Name: "A"})
	assertHTTPError(t, err, http.StatusUnauthorized, "unauthorized")
}

func TestProductUsecase_AdminUpdateInventory_WritesAdjustment(t *testing.T) {
	pRepo := new(ProductRepoMock)
	inv := new(InventoryRepoMock)
	uc := newProductUsecase(pRepo, inv)

	pRepo.On("FindByID", mock.Anything, testUUID).Return(model.Product{ID: testUUID, Stock: 10}, nil)
	inv.On("Apply", mock.Anything, mock.MatchedBy(func(a model.InventoryAdjustment) bool {
		return a.ProductID == testUUID && a.PreviousStock == 10 && a.NewStock == 3 &&
			a.Delta == -7 && a.Reason == "recount" && a.AdminUserID == 9
	})).Return(nil)

	err := uc.AdminUpdateInventory(context.Background(), 9, testUUID, 3, " recount ")
	require.NoError(t, err)
	inv.AssertExpectations(t)
}

func TestProductUsecase_AdminUpdateInventory_NotFound(t *testing.T) {
	pRepo := new(ProductRepoMock)
	inv := new(InventoryRepoMock)
	uc := newProductUsecase(pRepo, inv)

	pRepo.On("FindByID", mock.Anything, testUUID).Return(model.Product{}, repo.ErrNotFound)

	err := uc.AdminUpdateInventory(context.Background(), 9, testUUID, 3, "recount")
	assertHTTPError(t, err, http.StatusNotFound, usecase.MsgNotFound)
	inv.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
}

func TestProductUsecase_AdminDeleteProduct(t *testing.T) {
	pRepo := new(ProductRepoMock)
	uc := newProductUsecase(pRepo, new(InventoryRepoMock))

	pRepo.On("SoftDelete", mock.Anything, "missing").Return(repo.ErrNotFound)
	pRepo.On("SoftDelete", mock.Anything, testUUID).Return(nil)

	assertHTTPError(t, uc.AdminDeleteProduct(context.Background(), 1, "missing"), http.StatusNotFound, usecase.MsgNotFound)
	assert.NoError(t, uc.AdminDeleteProduct(context.Background(), 1, testUUID))
}
