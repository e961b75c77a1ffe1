package cart

import (
	"context"
	"strings"
	"sync"

	"storefront/internal/domain/model"
)

// CartBackend はゲスト/ログインの違いを吸収する。
// slug と id の食い違いはここで解決する（UIは ProductRef を渡すだけ）。
type CartBackend interface {
	Lines(ctx context.Context) ([]model.CartLine, error)
	Add(ctx context.Context, ref model.ProductRef, qty int64) error
	SetQuantity(ctx context.Context, ref model.ProductRef, qty int64) error
	Remove(ctx context.Context, ref model.ProductRef) error
	Clear(ctx context.Context) error
	// QuantityOf は基本的に通信しない（ゲストで id しか無い初回だけカタログを引く）
	QuantityOf(ctx context.Context, ref model.ProductRef) (int64, error)
	Refresh(ctx context.Context) error
}

// guestBackend は slug キー。slug が分からなければカタログで引く。
type guestBackend struct {
	store   *GuestCartStore
	catalog ProductCatalog

	mu    sync.Mutex
	slugs map[string]string // id -> guest key（引いた結果を覚えておく）
}

func newGuestBackend(store *GuestCartStore, catalog ProductCatalog) *guestBackend {
	return &guestBackend{store: store, catalog: catalog, slugs: map[string]string{}}
}

func (b *guestBackend) key(ctx context.Context, ref model.ProductRef) (string, error) {
	if s := strings.TrimSpace(ref.Slug); s != "" {
		return s, nil
	}
	id := strings.TrimSpace(ref.ID)
	if id == "" {
		return "", ErrInvalidRef
	}

	b.mu.Lock()
	k, ok := b.slugs[id]
	b.mu.Unlock()
	if ok {
		return k, nil
	}

	p, err := b.catalog.Resolve(ctx, id)
	if err != nil {
		return "", asTransport(err)
	}
	b.mu.Lock()
	b.slugs[id] = p.GuestKey()
	b.mu.Unlock()
	return p.GuestKey(), nil
}

func (b *guestBackend) Lines(ctx context.Context) ([]model.CartLine, error) {
	lines, err := b.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.CartLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Line())
	}
	return out, nil
}

func (b *guestBackend) Add(ctx context.Context, ref model.ProductRef, qty int64) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	k, err := b.key(ctx, ref)
	if err != nil {
		return err
	}
	return b.store.Add(ctx, k, qty)
}

func (b *guestBackend) SetQuantity(ctx context.Context, ref model.ProductRef, qty int64) error {
	k, err := b.key(ctx, ref)
	if err != nil {
		return err
	}
	return b.store.SetQuantity(ctx, k, qty)
}

func (b *guestBackend) Remove(ctx context.Context, ref model.ProductRef) error {
	k, err := b.key(ctx, ref)
	if err != nil {
		return err
	}
	return b.store.Remove(ctx, k)
}

func (b *guestBackend) Clear(ctx context.Context) error {
	return b.store.Clear(ctx)
}

// slug が無い商品は id で入っているので両方見る。
// id しか無くて見つからなければ key と同じくカタログで slug を引く。
func (b *guestBackend) QuantityOf(ctx context.Context, ref model.ProductRef) (int64, error) {
	lines, err := b.store.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(lines) == 0 {
		return 0, nil
	}
	if q, ok := quantityBySlug(lines, ref.Slug, ref.ID); ok {
		return q, nil
	}
	if strings.TrimSpace(ref.Slug) != "" || strings.TrimSpace(ref.ID) == "" {
		return 0, nil
	}

	k, err := b.key(ctx, ref)
	if err != nil {
		return 0, err
	}
	q, _ := quantityBySlug(lines, k)
	return q, nil
}

func quantityBySlug(lines []model.GuestLine, keys ...string) (int64, bool) {
	for _, l := range lines {
		for _, k := range keys {
			if k != "" && l.ProductSlug == k {
				return l.Quantity, true
			}
		}
	}
	return 0, false
}

// 端末ローカルなので取り直すものは無い
func (b *guestBackend) Refresh(ctx context.Context) error {
	return nil
}

// serverBackend は product id キー。id が分からなければカタログで引く。
type serverBackend struct {
	client     *ServerCartClient
	reconciler *Reconciler
	catalog    ProductCatalog
}

func (b *serverBackend) key(ctx context.Context, ref model.ProductRef) (string, error) {
	if id := strings.TrimSpace(ref.ID); id != "" {
		return id, nil
	}
	if strings.TrimSpace(ref.Slug) == "" {
		return "", ErrInvalidRef
	}

	// スナップショットに slug があればそれを使う
	if snap, ok := b.client.Snapshot(); ok {
		for _, it := range snap.Items {
			if it.Slug == ref.Slug {
				return it.ProductID, nil
			}
		}
	}
	p, err := b.catalog.Resolve(ctx, ref.Slug)
	if err != nil {
		return "", asTransport(err)
	}
	return p.ID, nil
}

func (b *serverBackend) Lines(ctx context.Context) ([]model.CartLine, error) {
	snap, ok := b.client.Snapshot()
	if !ok {
		return []model.CartLine{}, nil
	}
	return snap.Lines(), nil
}

func (b *serverBackend) Add(ctx context.Context, ref model.ProductRef, qty int64) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	id, err := b.key(ctx, ref)
	if err != nil {
		return err
	}
	_, err = b.client.Add(ctx, id, qty)
	return err
}

func (b *serverBackend) SetQuantity(ctx context.Context, ref model.ProductRef, qty int64) error {
	id, err := b.key(ctx, ref)
	if err != nil {
		return err
	}
	_, err = b.client.SetQuantity(ctx, id, qty)
	return err
}

func (b *serverBackend) Remove(ctx context.Context, ref model.ProductRef) error {
	id, err := b.key(ctx, ref)
	if err != nil {
		return err
	}
	_, err = b.client.Remove(ctx, id)
	return err
}

func (b *serverBackend) Clear(ctx context.Context) error {
	_, err := b.client.Clear(ctx)
	return err
}

func (b *serverBackend) QuantityOf(ctx context.Context, ref model.ProductRef) (int64, error) {
	snap, ok := b.client.Snapshot()
	if !ok {
		return 0, nil
	}
	for _, it := range snap.Items {
		if (ref.ID != "" && it.ProductID == ref.ID) || (ref.Slug != "" && it.Slug == ref.Slug) {
			return it.Quantity, nil
		}
	}
	return 0, nil
}

// 残っているゲストカートがあれば先に取り込む。その後は必ず最新を取る。
// 取り込みだけ失敗した場合は *ReconcileError（カートは表示できる）。
func (b *serverBackend) Refresh(ctx context.Context) error {
	res, recErr := b.reconciler.Reconcile(ctx)
	if !res.HasSnapshot {
		if _, err := b.client.Fetch(ctx); err != nil {
			return err
		}
	}
	if recErr != nil {
		return &ReconcileError{Err: recErr}
	}
	return nil
}
