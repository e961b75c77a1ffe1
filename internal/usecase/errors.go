package usecase

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// handlerでそのままHTTPレスポンスにするエラー
type HTTPError struct {
	Status    int
	Message   string
	Available *int64 // 在庫エラーのときだけ
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// 在庫系のメッセージ（クライアントはこれで種類を判定する）
const (
	MsgInsufficientStock = "insufficient stock"
	MsgOutOfStock        = "out of stock"
	MsgNotFound          = "not found"
)

// 在庫エラー。stock は商品の在庫、available はあといくつ入れられるか。
// 種類は在庫で決める（在庫はあるがカートに全部入っているなら insufficient / available 0）。
func newStockError(stock, available int64) error {
	if available < 0 {
		available = 0
	}
	msg := MsgInsufficientStock
	if stock <= 0 {
		msg = MsgOutOfStock
		available = 0
	}
	return &HTTPError{
		Status:    http.StatusConflict,
		Message:   msg,
		Available: &available,
	}
}

// IDを作る約束
type IDGenerator interface {
	NewID() string
}

// 現在時刻の約束
type Clock interface {
	Now() time.Time
}
