package cart

import (
	"context"
	"errors"
	"sync"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Mode int

const (
	ModeGuest Mode = iota
	ModeAuthenticated
)

func (m Mode) String() string {
	if m == ModeAuthenticated {
		return "authenticated"
	}
	return "guest"
}

// Version はカートの世代。どちらかのカートが変わるたびにどちらか1つだけ増える。
// 派生値はこの値が変わったら必ず計算し直す（スナップショットの同一性では判断しない）。
type Version struct {
	Mutation   uint64 // サーバーカートのスナップショットが置き換わった
	GuestTouch uint64 // ゲストカートに書き込みがあった
}

// Item は商品情報付きの1行（表示・金額計算用）。
type Item struct {
	Product  model.Product
	Quantity int64
}

func (it Item) Total() decimal.Decimal {
	return it.Product.Price.Mul(decimal.NewFromInt(it.Quantity))
}

// CartView はUIのどこから見ても同じカートを返す読み取りモデル。
// ゲスト/ログインの切り替えは AuthSignal に問い合わせるだけ。
type CartView struct {
	auth    AuthSignal
	guest   CartBackend
	server  CartBackend
	store   *GuestCartStore
	client  *ServerCartClient
	catalog ProductCatalog
	log     *zap.Logger

	mu      sync.Mutex
	version Version

	// ログイン時に裏で Refresh する（RefreshOnLogin で有効）
	loginCtx context.Context
	bg       sync.WaitGroup

	subs   listeners[Version]
	unsubs []func()
}

func NewCartView(
	auth AuthSignal,
	store *GuestCartStore,
	client *ServerCartClient,
	reconciler *Reconciler,
	catalog ProductCatalog,
	log *zap.Logger,
) *CartView {
	if log == nil {
		log = zap.NewNop()
	}
	v := &CartView{
		auth:    auth,
		guest:   newGuestBackend(store, catalog),
		server:  &serverBackend{client: client, reconciler: reconciler, catalog: catalog},
		store:   store,
		client:  client,
		catalog: catalog,
		log:     log,
	}

	// 他のコンポーネントからの書き込みもここで拾う
	v.unsubs = append(v.unsubs,
		store.Subscribe(func() { v.bump(false) }),
		client.Subscribe(func(model.CartSnapshot) { v.bump(true) }),
		auth.Subscribe(v.onAuthChange),
	)
	return v
}

// Close は購読を外し、裏で走っている Refresh を待つ。
func (v *CartView) Close() {
	for _, fn := range v.unsubs {
		fn()
	}
	v.unsubs = nil
	v.bg.Wait()
}

// RefreshOnLogin を呼ぶと、ログインに切り替わった時点で取り込みと取り直しを裏で始める。
// 呼ばない場合は Refresh を呼ぶまでログイン後のカートは空に見える。
// ctx は裏の Refresh 全体に使う（アプリの寿命に合わせる）。
func (v *CartView) RefreshOnLogin(ctx context.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.loginCtx = ctx
}

func (v *CartView) Mode() Mode {
	if v.auth.IsAuthenticated() {
		return ModeAuthenticated
	}
	return ModeGuest
}

func (v *CartView) backend() CartBackend {
	if v.Mode() == ModeAuthenticated {
		return v.server
	}
	return v.guest
}

func (v *CartView) Version() Version {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.version
}

// Subscribe は Version が進むたびに呼ばれる。変更系の呼び出しが戻る前に通知される。
func (v *CartView) Subscribe(fn func(Version)) func() {
	return v.subs.add(fn)
}

func (v *CartView) bump(server bool) {
	v.mu.Lock()
	if server {
		v.version.Mutation++
	} else {
		v.version.GuestTouch++
	}
	ver := v.version
	v.mu.Unlock()

	v.subs.notify(ver)
}

// ログイン/ログアウトで前のセッションのスナップショットを捨てる。
// 実行中の応答も捨てられる。
func (v *CartView) onAuthChange(authenticated bool) {
	v.log.Debug("cart view auth changed", zap.Bool("authenticated", authenticated))
	v.client.Reset()

	v.mu.Lock()
	ctx := v.loginCtx
	v.mu.Unlock()
	if !authenticated || ctx == nil {
		return
	}

	v.bg.Add(1)
	go func() {
		defer v.bg.Done()
		if err := v.Refresh(ctx); err != nil {
			v.log.Warn("cart refresh after login failed", zap.String("kind", string(KindOf(err))), zap.Error(err))
		}
	}()
}

func (v *CartView) Lines(ctx context.Context) ([]model.CartLine, error) {
	return v.backend().Lines(ctx)
}

// Count は数量の合計（バッジ用）。
func (v *CartView) Count(ctx context.Context) (int64, error) {
	lines, err := v.Lines(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, l := range lines {
		n += l.Quantity
	}
	return n, nil
}

// QuantityOf は商品ボタンの状態用。通信しない。
func (v *CartView) QuantityOf(ctx context.Context, ref model.ProductRef) (int64, error) {
	return v.backend().QuantityOf(ctx, ref)
}

func (v *CartView) Add(ctx context.Context, ref model.ProductRef, qty int64) error {
	return v.backend().Add(ctx, ref, qty)
}

func (v *CartView) SetQuantity(ctx context.Context, ref model.ProductRef, qty int64) error {
	return v.backend().SetQuantity(ctx, ref, qty)
}

func (v *CartView) Remove(ctx context.Context, ref model.ProductRef) error {
	return v.backend().Remove(ctx, ref)
}

func (v *CartView) Clear(ctx context.Context) error {
	return v.backend().Clear(ctx)
}

// Refresh は画面の表示時・フォーカス時に呼ぶ。
// ログイン中は毎回サーバーから取り直す（残っているゲストカートの取り込みもここで再試行）。
// ctx が先に終わった場合は結果を反映しない。
func (v *CartView) Refresh(ctx context.Context) error {
	err := v.backend().Refresh(ctx)
	if errors.Is(err, ErrStaleResponse) {
		v.log.Debug("cart refresh discarded")
	}
	return err
}

// Detailed は商品情報付きの行を返す。
// ゲストカートはカタログで引き、消えていた商品は dropped で返す（カートからは消さない）。
func (v *CartView) Detailed(ctx context.Context) ([]Item, []string, error) {
	if v.Mode() == ModeAuthenticated {
		snap, ok := v.client.Snapshot()
		if !ok {
			return []Item{}, nil, nil
		}
		items := make([]Item, 0, len(snap.Items))
		for _, it := range snap.Items {
			items = append(items, Item{Product: it.Product(), Quantity: it.Quantity})
		}
		return items, nil, nil
	}

	lines, err := v.store.List(ctx)
	if err != nil {
		return nil, nil, err
	}

	products := make([]*model.Product, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, l := range lines {
		i, l := i, l
		g.Go(func() error {
			p, err := v.catalog.Resolve(gctx, l.ProductSlug)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return asTransport(err)
			}
			products[i] = &p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	items := make([]Item, 0, len(lines))
	var dropped []string
	for i, l := range lines {
		if products[i] == nil {
			dropped = append(dropped, l.ProductSlug)
			continue
		}
		items = append(items, Item{Product: *products[i], Quantity: l.Quantity})
	}
	return items, dropped, nil
}
