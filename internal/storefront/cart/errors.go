package cart

import (
	"errors"
	"fmt"
)

// 失敗の種類。どれもプロセスを止めない（直前の状態はそのまま残る）。
var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrOutOfStock        = errors.New("out of stock")
	ErrNotFound          = errors.New("product not found")
	ErrTransport         = errors.New("transport failure")
	ErrInvalidQuantity   = errors.New("quantity must be >= 1")
	ErrInvalidRef        = errors.New("product reference required")
	ErrStaleResponse     = errors.New("stale response discarded")
	ErrCheckoutBlocked   = errors.New("checkout blocked by stock issues")
)

// StockError は在庫系の失敗。Available が 0 なら out of stock。
// CartFull は在庫はあるがカートに全部入っている（Available 0 でも insufficient）。
type StockError struct {
	ProductRef string
	Requested  int64
	Available  int64
	CartFull   bool
}

func (e *StockError) Error() string {
	if e.outOfStock() {
		return fmt.Sprintf("%s: out of stock", e.ProductRef)
	}
	if e.CartFull {
		return fmt.Sprintf("%s: insufficient stock (cart already holds all available units)", e.ProductRef)
	}
	return fmt.Sprintf("%s: insufficient stock (requested %d, available %d)", e.ProductRef, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	if e.outOfStock() {
		return ErrOutOfStock
	}
	return ErrInsufficientStock
}

func (e *StockError) outOfStock() bool {
	return e.Available <= 0 && !e.CartFull
}

// ReconcileError はゲストカートの取り込みに失敗したが、サーバーカートは読めたとき。
// 表示は続けられる。残った行は次の Refresh で再送する。
type ReconcileError struct {
	Err error
}

func (e *ReconcileError) Error() string {
	return "guest cart not merged: " + e.Err.Error()
}

func (e *ReconcileError) Unwrap() error { return e.Err }

type Kind string

const (
	KindNone              Kind = ""
	KindInsufficientStock Kind = "insufficientStock"
	KindOutOfStock        Kind = "outOfStock"
	KindNotFound          Kind = "notFound"
	KindTransport         Kind = "transport"
	KindInvalid           Kind = "invalid"
	KindStale             Kind = "stale"
	KindBlocked           Kind = "blocked"
	KindUnknown           Kind = "unknown"
)

// KindOf はUIがメッセージを出し分けるための分類。
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrOutOfStock):
		return KindOutOfStock
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidRef):
		return KindInvalid
	case errors.Is(err, ErrStaleResponse):
		return KindStale
	case errors.Is(err, ErrCheckoutBlocked):
		return KindBlocked
	default:
		return KindUnknown
	}
}

// 分類できないエラーは transport 扱いにそろえる
func asTransport(err error) error {
	if err == nil || KindOf(err) != KindUnknown {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}
