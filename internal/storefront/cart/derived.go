package cart

import (
	"context"
	"sync"
)

// Derived はカートから計算する値のメモ。CartView の Version が変わったら計算し直す。
type Derived[T any] struct {
	view    *CartView
	compute func(ctx context.Context) (T, error)

	mu  sync.Mutex
	has bool
	at  Version
	val T
}

func NewDerived[T any](view *CartView, compute func(ctx context.Context) (T, error)) *Derived[T] {
	return &Derived[T]{view: view, compute: compute}
}

func (d *Derived[T]) Get(ctx context.Context) (T, error) {
	ver := d.view.Version()

	d.mu.Lock()
	if d.has && d.at == ver {
		v := d.val
		d.mu.Unlock()
		return v, nil
	}
	d.mu.Unlock()

	v, err := d.compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	// 計算前に読んだ世代で保存する（計算中に進んでいれば次回また計算される）
	d.mu.Lock()
	d.val, d.at, d.has = v, ver, true
	d.mu.Unlock()
	return v, nil
}
