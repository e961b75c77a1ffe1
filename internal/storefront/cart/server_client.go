package cart

import (
	"context"
	"strings"
	"sync"

	"storefront/internal/domain/model"

	"go.uber.org/zap"
)

// ServerCartClient はログイン後のカート（product id キー）。
// 手元に持つのはサーバーが返した最後のスナップショットだけで、部分的に書き換えない。
type ServerCartClient struct {
	api ServerCartAPI
	log *zap.Logger

	callMu sync.Mutex // 往復は1本ずつ（遅れて返った古い応答で上書きしない）

	mu    sync.RWMutex
	snap  model.CartSnapshot
	has   bool
	epoch uint64 // Reset ごとに進む

	subs listeners[model.CartSnapshot]
}

func NewServerCartClient(api ServerCartAPI, log *zap.Logger) *ServerCartClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &ServerCartClient{api: api, log: log}
}

// Subscribe はスナップショットが置き換わるたびに呼ばれる（Reset 含む）。
func (c *ServerCartClient) Subscribe(fn func(model.CartSnapshot)) func() {
	return c.subs.add(fn)
}

// Snapshot は最後に受け取ったスナップショット。まだ無ければ ok=false。
func (c *ServerCartClient) Snapshot() (model.CartSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.has {
		return model.CartSnapshot{}, false
	}
	return c.snap.Clone(), true
}

// Reset はログイン状態が変わったとき。手元の値を捨て、実行中の応答も捨てさせる。
// 見えるカートが変わるので購読者には必ず通知する。
func (c *ServerCartClient) Reset() {
	c.mu.Lock()
	c.epoch++
	c.snap = model.CartSnapshot{}
	c.has = false
	c.mu.Unlock()

	c.subs.notify(model.CartSnapshot{})
}

// Fetch は呼び出し元がもう居ない（ctx終了）なら結果を反映しない。
func (c *ServerCartClient) Fetch(ctx context.Context) (model.CartSnapshot, error) {
	return c.roundTrip(ctx, "fetch", true, func(ctx context.Context) (model.CartSnapshot, error) {
		return c.api.FetchCart(ctx)
	})
}

func (c *ServerCartClient) Add(ctx context.Context, productID string, qty int64) (model.CartSnapshot, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return model.CartSnapshot{}, ErrInvalidRef
	}
	if qty < 1 {
		return model.CartSnapshot{}, ErrInvalidQuantity
	}
	return c.roundTrip(ctx, "add", false, func(ctx context.Context) (model.CartSnapshot, error) {
		return c.api.AddLine(ctx, productID, qty)
	})
}

// SetQuantity は0以下なら Remove。
func (c *ServerCartClient) SetQuantity(ctx context.Context, productID string, qty int64) (model.CartSnapshot, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return model.CartSnapshot{}, ErrInvalidRef
	}
	if qty <= 0 {
		return c.Remove(ctx, productID)
	}
	return c.roundTrip(ctx, "set", false, func(ctx context.Context) (model.CartSnapshot, error) {
		return c.api.SetLineQuantity(ctx, productID, qty)
	})
}

func (c *ServerCartClient) Remove(ctx context.Context, productID string) (model.CartSnapshot, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return model.CartSnapshot{}, ErrInvalidRef
	}
	return c.roundTrip(ctx, "remove", false, func(ctx context.Context) (model.CartSnapshot, error) {
		return c.api.RemoveLine(ctx, productID)
	})
}

func (c *ServerCartClient) Clear(ctx context.Context) (model.CartSnapshot, error) {
	return c.roundTrip(ctx, "clear", false, func(ctx context.Context) (model.CartSnapshot, error) {
		return c.api.ClearCart(ctx)
	})
}

// Sync はゲストカートの一括取り込み。マージ規則はサーバーが決める。
func (c *ServerCartClient) Sync(ctx context.Context, lines []model.SyncLine) (model.CartSnapshot, error) {
	return c.roundTrip(ctx, "sync", false, func(ctx context.Context) (model.CartSnapshot, error) {
		return c.api.SyncLines(ctx, lines)
	})
}

// 1往復。失敗したら手元のスナップショットはそのまま。
func (c *ServerCartClient) roundTrip(
	ctx context.Context,
	op string,
	discardOnCancel bool,
	call func(ctx context.Context) (model.CartSnapshot, error),
) (model.CartSnapshot, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	c.mu.RLock()
	epoch := c.epoch
	c.mu.RUnlock()

	snap, err := call(ctx)
	if err != nil {
		err = asTransport(err)
		c.log.Debug("server cart call failed", zap.String("op", op), zap.String("kind", string(KindOf(err))), zap.Error(err))
		return model.CartSnapshot{}, err
	}

	if discardOnCancel && ctx.Err() != nil {
		c.log.Debug("server cart response discarded", zap.String("op", op), zap.String("reason", "context done"))
		return model.CartSnapshot{}, ErrStaleResponse
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.log.Debug("server cart response discarded", zap.String("op", op), zap.String("reason", "session reset"))
		return model.CartSnapshot{}, ErrStaleResponse
	}
	c.snap = snap.Clone()
	c.has = true
	c.mu.Unlock()

	c.subs.notify(snap.Clone())
	return snap, nil
}
