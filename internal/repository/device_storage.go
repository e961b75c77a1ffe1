package repository

import "context"

// 端末ローカルのキーバリュー保存（ブラウザの localStorage 相当）。
// 1回の Set/Delete は呼び出し側から見てアトミック。
type DeviceStorage interface {
	// 無ければ ok=false
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
