package repository

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain/model"
)

// キャッシュに無い
var ErrCacheMiss = errors.New("cache miss")

// ユーザーごとのカートスナップショットのキャッシュ。
// 世代は Invalidate のたびに進む。Set は読み始めたときの世代がまだ最新の場合だけ書く
// （古いDB読み取りで作ったスナップショットが、後のコミットを上書きしない）。
type CartSnapshotCache interface {
	Get(ctx context.Context, userID int64) (model.CartSnapshot, error)
	// Generation はDBを読む前に取る
	Generation(ctx context.Context, userID int64) (uint64, error)
	// Set は世代が gen のままなら書いて true。進んでいたら書かずに false。
	Set(ctx context.Context, userID int64, gen uint64, snap model.CartSnapshot, ttl time.Duration) (bool, error)
	// Invalidate は値を消して世代を進める。進めた後の世代を返す。
	Invalidate(ctx context.Context, userID int64) (uint64, error)
}
