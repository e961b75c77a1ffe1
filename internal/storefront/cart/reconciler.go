package cart

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain/model"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ReconcileResult は1回の取り込み結果（保存はしない）。
type ReconcileResult struct {
	Attempted   bool                   // ゲストカートが空でなかった
	Synced      []model.SyncLine       // サーバーに送った行
	Dropped     []string               // カタログから消えていた slug
	Snapshot    model.CartSnapshot     // サーバーが返したカート
	HasSnapshot bool                   // Snapshot が有効
	Adjustments []model.SyncAdjustment // サーバー側で数量が変わった行
}

// 1回の /cart/sync に載せる行数の上限（サーバー側の上限と同じ）
const DefaultSyncBatchSize = 200

// Reconciler はログイン直後にゲストカートをサーバーカートへ1回だけ取り込む。
type Reconciler struct {
	guest   *GuestCartStore
	server  *ServerCartClient
	catalog ProductCatalog
	log     *zap.Logger

	resolveLimit int
	batchSize    int
	group        singleflight.Group
}

func NewReconciler(guest *GuestCartStore, server *ServerCartClient, catalog ProductCatalog, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		guest:        guest,
		server:       server,
		catalog:      catalog,
		log:          log,
		resolveLimit: 4,
		batchSize:    DefaultSyncBatchSize,
	}
}

// SetBatchSize は1回の sync に載せる行数。1未満は無視。
func (r *Reconciler) SetBatchSize(n int) {
	if n >= 1 {
		r.batchSize = n
	}
}

// Reconcile は実行中の取り込みがあればその結果を待つ（並行に2本走らない）。
// ゲストカートが空なら通信しない。
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileResult, error) {
	v, err, shared := r.group.Do("reconcile", func() (interface{}, error) {
		return r.run(ctx)
	})
	if shared {
		r.log.Debug("reconcile joined in-flight pass")
	}
	res, _ := v.(ReconcileResult)
	return res, err
}

// resolvedLine は送る行と、その元になったゲスト行
type resolvedLine struct {
	guest model.GuestLine
	sync  model.SyncLine
}

func (r *Reconciler) run(ctx context.Context) (ReconcileResult, error) {
	lines, err := r.guest.List(ctx)
	if err != nil {
		return ReconcileResult{}, err
	}
	if len(lines) == 0 {
		return ReconcileResult{}, nil
	}

	res := ReconcileResult{Attempted: true}

	// slug -> product id
	resolved, dropped, err := r.resolve(ctx, lines)
	if err != nil {
		// 解決できなかったときはゲストカートを残して次回に回す
		r.log.Warn("reconcile aborted during resolve, guest cart kept", zap.Int("lines", len(lines)), zap.Error(err))
		return res, err
	}
	for _, d := range dropped {
		res.Dropped = append(res.Dropped, d.ProductSlug)
		r.log.Info("guest line dropped, product no longer in catalog", zap.String("slug", d.ProductSlug))
	}

	// 送れた分はその場でゲストカートから引く（途中で失敗しても2回送らない）
	for start := 0; start < len(resolved); start += r.batchSize {
		batch := resolved[start:min(start+r.batchSize, len(resolved))]

		syncLines := make([]model.SyncLine, len(batch))
		taken := make([]model.GuestLine, len(batch))
		for i, l := range batch {
			syncLines[i] = l.sync
			taken[i] = l.guest
		}

		snap, err := r.server.Sync(ctx, syncLines)
		if err != nil {
			r.log.Warn("guest cart sync failed, remaining guest lines kept",
				zap.Int("synced", len(res.Synced)),
				zap.Int("remaining", len(resolved)-start),
				zap.Error(err),
			)
			r.fetchBestEffort(ctx, &res)
			return res, err
		}
		res.Synced = append(res.Synced, syncLines...)
		res.Snapshot = snap
		res.HasSnapshot = true
		res.Adjustments = append(res.Adjustments, snap.Adjustments...)

		if err := r.guest.Consume(ctx, taken); err != nil {
			r.log.Error("guest cart consume after sync failed", zap.Error(err))
			return res, fmt.Errorf("consume guest cart after sync: %w", err)
		}
	}

	// カタログから消えていた行は全部送れた後で片付ける
	if err := r.guest.Consume(ctx, dropped); err != nil {
		return res, err
	}
	if len(resolved) == 0 {
		r.fetchBestEffort(ctx, &res)
		return res, nil
	}

	r.log.Info("guest cart reconciled",
		zap.Int("synced", len(res.Synced)),
		zap.Int("dropped", len(dropped)),
		zap.Int("adjusted", len(res.Adjustments)),
	)
	return res, nil
}

// 並列に解決して、元の順序で返す。見つからない行は dropped。
func (r *Reconciler) resolve(ctx context.Context, lines []model.GuestLine) ([]resolvedLine, []model.GuestLine, error) {
	ids := make([]string, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.resolveLimit)
	for i, l := range lines {
		i, l := i, l
		g.Go(func() error {
			p, err := r.catalog.Resolve(gctx, l.ProductSlug)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("resolve %q: %w", l.ProductSlug, asTransport(err))
			}
			ids[i] = p.ID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	resolved := make([]resolvedLine, 0, len(lines))
	var dropped []model.GuestLine
	for i, l := range lines {
		if ids[i] == "" {
			dropped = append(dropped, l)
			continue
		}
		resolved = append(resolved, resolvedLine{
			guest: l,
			sync:  model.SyncLine{ProductID: ids[i], Quantity: l.Quantity},
		})
	}
	return resolved, dropped, nil
}

// 取り込みに失敗してもサーバーカートで続けられるように取り直す
func (r *Reconciler) fetchBestEffort(ctx context.Context, res *ReconcileResult) {
	snap, err := r.server.Fetch(ctx)
	if err != nil {
		r.log.Debug("best-effort fetch failed", zap.Error(err))
		return
	}
	res.Snapshot = snap
	res.HasSnapshot = true
}
