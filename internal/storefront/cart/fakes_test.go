package cart_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"storefront/internal/domain/model"
	"storefront/internal/storefront/cart"

	"github.com/shopspring/decimal"
)

func product(id, slug, price string, stock int64) model.Product {
	return model.Product{
		ID:       id,
		Slug:     slug,
		Name:     slug,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		IsActive: true,
	}
}

// memStorage は端末ストレージの代わり。
type memStorage struct {
	mu      sync.Mutex
	data    map[string][]byte
	failSet error
}

func newMemStorage() *memStorage {
	return &memStorage{data: map[string][]byte{}}
}

func (m *memStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *memStorage) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return m.failSet
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memStorage) raw(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}

// fakeCatalog は id でも slug でも引ける。
type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]model.Product // id -> product
	errs     map[string]error
	calls    int
}

func newFakeCatalog(ps ...model.Product) *fakeCatalog {
	c := &fakeCatalog{products: map[string]model.Product{}, errs: map[string]error{}}
	for _, p := range ps {
		c.products[p.ID] = p
	}
	return c
}

func (c *fakeCatalog) Resolve(ctx context.Context, key string) (model.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if err, ok := c.errs[key]; ok {
		return model.Product{}, err
	}
	if p, ok := c.products[key]; ok {
		return p, nil
	}
	for _, p := range c.products {
		if p.Slug == key {
			return p, nil
		}
	}
	return model.Product{}, cart.ErrNotFound
}

func (c *fakeCatalog) byID(id string) (model.Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	return p, ok
}

func (c *fakeCatalog) put(p model.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

func (c *fakeCatalog) failOn(key string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[key] = err
}

func (c *fakeCatalog) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// fakeAPI はサーバーカートをメモリ上で再現する（数量は在庫で判定）。
type fakeAPI struct {
	catalog *fakeCatalog

	mu    sync.Mutex
	lines []model.SyncLine
	calls map[string]int
	fail  map[string]error

	// FetchCart を止めたいときに使う
	gate    chan struct{}
	started chan struct{}

	// before は呼び出しの直前に呼ばれる（n は op ごとの通し番号）。エラーを返すとその呼び出しが失敗する。
	before map[string]func(n int) error
}

func newFakeAPI(catalog *fakeCatalog) *fakeAPI {
	return &fakeAPI{
		catalog: catalog,
		calls:   map[string]int{},
		fail:    map[string]error{},
		before:  map[string]func(int) error{},
	}
}

func (a *fakeAPI) count(op string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[op]
}

func (a *fakeAPI) total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		n += c
	}
	return n
}

func (a *fakeAPI) failOn(op string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fail[op] = err
}

func (a *fakeAPI) hook(op string, fn func(n int) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.before[op] = fn
}

func (a *fakeAPI) begin(op string) error {
	a.mu.Lock()
	a.calls[op]++
	n, err, fn := a.calls[op], a.fail[op], a.before[op]
	a.mu.Unlock()

	if fn != nil {
		if herr := fn(n); herr != nil {
			return herr
		}
	}
	return err
}

func (a *fakeAPI) FetchCart(ctx context.Context) (model.CartSnapshot, error) {
	if err := a.begin("fetch"); err != nil {
		return model.CartSnapshot{}, err
	}
	if a.started != nil {
		a.started <- struct{}{}
	}
	if a.gate != nil {
		<-a.gate
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked(), nil
}

func (a *fakeAPI) AddLine(ctx context.Context, productID string, qty int64) (model.CartSnapshot, error) {
	if err := a.begin("add"); err != nil {
		return model.CartSnapshot{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.catalog.byID(productID)
	if !ok {
		return model.CartSnapshot{}, cart.ErrNotFound
	}
	existing := a.quantityLocked(productID)
	if existing+qty > p.AvailableStock() {
		return model.CartSnapshot{}, &cart.StockError{
			ProductRef: productID,
			Requested:  qty,
			Available:  p.AvailableStock() - existing,
			CartFull:   p.AvailableStock() > 0 && p.AvailableStock() == existing,
		}
	}
	a.setLocked(productID, existing+qty)
	return a.snapshotLocked(), nil
}

func (a *fakeAPI) SetLineQuantity(ctx context.Context, productID string, qty int64) (model.CartSnapshot, error) {
	if err := a.begin("set"); err != nil {
		return model.CartSnapshot{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.catalog.byID(productID)
	if !ok {
		return model.CartSnapshot{}, cart.ErrNotFound
	}
	if qty > p.AvailableStock() {
		return model.CartSnapshot{}, &cart.StockError{ProductRef: productID, Requested: qty, Available: p.AvailableStock()}
	}
	a.setLocked(productID, qty)
	return a.snapshotLocked(), nil
}

func (a *fakeAPI) RemoveLine(ctx context.Context, productID string) (model.CartSnapshot, error) {
	if err := a.begin("remove"); err != nil {
		return model.CartSnapshot{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setLocked(productID, 0)
	return a.snapshotLocked(), nil
}

func (a *fakeAPI) ClearCart(ctx context.Context) (model.CartSnapshot, error) {
	if err := a.begin("clear"); err != nil {
		return model.CartSnapshot{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lines = nil
	return a.snapshotLocked(), nil
}

// 既存と合算して在庫で切り詰める
func (a *fakeAPI) SyncLines(ctx context.Context, lines []model.SyncLine) (model.CartSnapshot, error) {
	if err := a.begin("sync"); err != nil {
		return model.CartSnapshot{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	var adj []model.SyncAdjustment
	for _, l := range lines {
		p, ok := a.catalog.byID(l.ProductID)
		if !ok {
			adj = append(adj, model.SyncAdjustment{ProductID: l.ProductID, Requested: l.Quantity, Reason: model.AdjustmentNotFound})
			continue
		}
		avail := p.AvailableStock()
		if avail <= 0 {
			adj = append(adj, model.SyncAdjustment{ProductID: l.ProductID, Requested: l.Quantity, Reason: model.AdjustmentOutOfStock})
			continue
		}
		want := a.quantityLocked(l.ProductID) + l.Quantity
		if want > avail {
			adj = append(adj, model.SyncAdjustment{ProductID: l.ProductID, Requested: want, Applied: avail, Reason: model.AdjustmentClamped})
			want = avail
		}
		a.setLocked(l.ProductID, want)
	}

	snap := a.snapshotLocked()
	snap.Adjustments = adj
	return snap, nil
}

func (a *fakeAPI) quantityLocked(id string) int64 {
	for _, l := range a.lines {
		if l.ProductID == id {
			return l.Quantity
		}
	}
	return 0
}

func (a *fakeAPI) setLocked(id string, qty int64) {
	for i, l := range a.lines {
		if l.ProductID == id {
			if qty <= 0 {
				a.lines = append(a.lines[:i], a.lines[i+1:]...)
			} else {
				a.lines[i].Quantity = qty
			}
			return
		}
	}
	if qty > 0 {
		a.lines = append(a.lines, model.SyncLine{ProductID: id, Quantity: qty})
	}
}

func (a *fakeAPI) snapshotLocked() model.CartSnapshot {
	snap := model.CartSnapshot{ID: 1, UserID: 7, Items: []model.SnapshotItem{}, Subtotal: decimal.Zero}
	for _, l := range a.lines {
		p, _ := a.catalog.byID(l.ProductID)
		snap.Items = append(snap.Items, model.SnapshotItem{
			ProductID: p.ID,
			Slug:      p.Slug,
			Name:      p.Name,
			Price:     p.Price,
			Stock:     p.Stock,
			IsActive:  p.IsActive,
			Quantity:  l.Quantity,
		})
		snap.ItemCount += l.Quantity
		snap.Subtotal = snap.Subtotal.Add(p.Price.Mul(decimal.NewFromInt(l.Quantity)))
	}
	return snap
}

type fakeOrders struct {
	mu   sync.Mutex
	reqs []cart.OrderRequest
	err  error
}

func (o *fakeOrders) PlaceOrder(ctx context.Context, req cart.OrderRequest) (cart.OrderReceipt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return cart.OrderReceipt{}, o.err
	}
	o.reqs = append(o.reqs, req)
	return cart.OrderReceipt{OrderID: "ord-1"}, nil
}

var errBoom = errors.New("connection reset")

type harness struct {
	storage *memStorage
	catalog *fakeCatalog
	api     *fakeAPI
	auth    *cart.AuthFlag
	store   *cart.GuestCartStore
	client  *cart.ServerCartClient
	rec     *cart.Reconciler
	view    *cart.CartView
}

func newHarness(t *testing.T, ps ...model.Product) *harness {
	t.Helper()

	h := &harness{storage: newMemStorage(), catalog: newFakeCatalog(ps...), auth: cart.NewAuthFlag(false)}
	h.api = newFakeAPI(h.catalog)
	h.store = cart.NewGuestCartStore(h.storage, nil)
	h.client = cart.NewServerCartClient(h.api, nil)
	h.rec = cart.NewReconciler(h.store, h.client, h.catalog, nil)
	h.view = cart.NewCartView(h.auth, h.store, h.client, h.rec, h.catalog, nil)
	t.Cleanup(h.view.Close)
	return h
}

var (
	beans = product("p-beans", "coffee-beans", "250", 10)
	mug   = product("p-mug", "mug", "120", 5)
)
