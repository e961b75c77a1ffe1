package usecase_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// =====================
// Mocks
// =====================

type ProductRepoMock struct{ mock.Mock }

func (m *ProductRepoMock) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	args := m.Called(ctx, q)
	items, _ := args.Get(0).([]model.Product)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *ProductRepoMock) FindByID(ctx context.Context, id string) (model.Product, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(model.Product)
	return p, args.Error(1)
}

func (m *ProductRepoMock) FindBySlug(ctx context.Context, slug string) (model.Product, error) {
	args := m.Called(ctx, slug)
	p, _ := args.Get(0).(model.Product)
	return p, args.Error(1)
}

func (m *ProductRepoMock) Create(ctx context.Context, p model.Product) (model.Product, error) {
	args := m.Called(ctx, p)
	created, _ := args.Get(0).(model.Product)
	return created, args.Error(1)
}

func (m *ProductRepoMock) Update(ctx context.Context, p model.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *ProductRepoMock) SoftDelete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type InventoryRepoMock struct{ mock.Mock }

func (m *InventoryRepoMock) Apply(ctx context.Context, adj model.InventoryAdjustment) error {
	args := m.Called(ctx, adj)
	return args.Error(0)
}

// =====================
// Fakes
// =====================

// fakeCartStore は carts / cart_items をメモリで持つ。
type fakeCartStore struct {
	mu     sync.Mutex
	carts  map[int64]model.Cart // userID -> cart
	items  map[int64][]model.CartItem
	nextID int64
}

func newFakeCartStore() *fakeCartStore {
	return &fakeCartStore{
		carts: map[int64]model.Cart{},
		items: map[int64][]model.CartItem{},
	}
}

func (s *fakeCartStore) ForUser(ctx context.Context, userID int64) (model.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.carts[userID]; ok {
		return c, nil
	}
	s.nextID++
	c := model.Cart{ID: s.nextID, UserID: userID}
	s.carts[userID] = c
	return c, nil
}

func (s *fakeCartStore) Clear(ctx context.Context, cartID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, cartID)
	return nil
}

func (s *fakeCartStore) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]model.CartItem(nil), s.items[cartID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeCartStore) FindByCartAndProduct(ctx context.Context, cartID int64, productID string) (model.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items[cartID] {
		if it.ProductID == productID {
			return it, nil
		}
	}
	return model.CartItem{}, repo.ErrNotFound
}

func (s *fakeCartStore) UpsertByCartAndProduct(ctx context.Context, cartID int64, productID string, addQty int64, price decimal.Decimal) error {
	return s.write(cartID, productID, price, func(cur int64) int64 { return cur + addQty })
}

func (s *fakeCartStore) SetQuantityByCartAndProduct(ctx context.Context, cartID int64, productID string, qty int64, price decimal.Decimal) error {
	if qty <= 0 {
		return s.DeleteByCartAndProduct(ctx, cartID, productID)
	}
	return s.write(cartID, productID, price, func(int64) int64 { return qty })
}

func (s *fakeCartStore) write(cartID int64, productID string, price decimal.Decimal, next func(int64) int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, it := range s.items[cartID] {
		if it.ProductID == productID {
			s.items[cartID][i].Quantity = next(it.Quantity)
			return nil
		}
	}
	s.nextID++
	s.items[cartID] = append(s.items[cartID], model.CartItem{
		ID: s.nextID, CartID: cartID, ProductID: productID, Quantity: next(0), UnitPriceSnapshot: price,
	})
	return nil
}

func (s *fakeCartStore) DeleteByCartAndProduct(ctx context.Context, cartID int64, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[cartID][:0]
	for _, it := range s.items[cartID] {
		if it.ProductID != productID {
			kept = append(kept, it)
		}
	}
	s.items[cartID] = kept
	return nil
}

// fakeCatalog は商品を id で持つ ProductRepository。
type fakeCatalog struct {
	byID map[string]model.Product
}

func newFakeCatalog(ps ...model.Product) *fakeCatalog {
	c := &fakeCatalog{byID: map[string]model.Product{}}
	for _, p := range ps {
		c.byID[p.ID] = p
	}
	return c
}

func (c *fakeCatalog) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	return nil, 0, errors.New("not used")
}

func (c *fakeCatalog) FindByID(ctx context.Context, id string) (model.Product, error) {
	if p, ok := c.byID[id]; ok {
		return p, nil
	}
	return model.Product{}, repo.ErrNotFound
}

func (c *fakeCatalog) FindBySlug(ctx context.Context, slug string) (model.Product, error) {
	for _, p := range c.byID {
		if p.Slug == slug {
			return p, nil
		}
	}
	return model.Product{}, repo.ErrNotFound
}

func (c *fakeCatalog) Create(ctx context.Context, p model.Product) (model.Product, error) {
	c.byID[p.ID] = p
	return p, nil
}

func (c *fakeCatalog) Update(ctx context.Context, p model.Product) error {
	c.byID[p.ID] = p
	return nil
}

func (c *fakeCatalog) SoftDelete(ctx context.Context, id string) error {
	delete(c.byID, id)
	return nil
}

type fakeTxRepos struct {
	carts     repo.CartRepository
	cartItems repo.CartItemRepository
	inventory repo.InventoryRepository
	products  repo.ProductRepository
}

func (r *fakeTxRepos) Carts() repo.CartRepository          { return r.carts }
func (r *fakeTxRepos) CartItems() repo.CartItemRepository  { return r.cartItems }
func (r *fakeTxRepos) Inventory() repo.InventoryRepository { return r.inventory }
func (r *fakeTxRepos) Products() repo.ProductRepository    { return r.products }

// fakeTx はロールバックしない（テストではエラー時の状態を見ない）
type fakeTx struct {
	repos *fakeTxRepos
}

func (t *fakeTx) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return fn(t.repos)
}

type fixedIDGen struct{ id string }

func (g fixedIDGen) NewID() string { return g.id }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// =====================
// helpers
// =====================

func assertHTTPError(t *testing.T, err error, status int, msg string) *usecase.HTTPError {
	t.Helper()
	he, ok := usecase.AsHTTPError(err)
	if !assert.True(t, ok, "expected HTTPError, got %v", err) {
		return nil
	}
	assert.Equal(t, status, he.Status)
	assert.Equal(t, msg, he.Message)
	return he
}
