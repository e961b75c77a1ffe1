package cart

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Review はチェックアウト画面の内容。
type Review struct {
	Items    []Item
	Verdicts []LineVerdict
	Totals   Totals
	Dropped  []string // カタログから消えていた slug（ゲストのみ）
	Ready    bool     // 在庫の問題が無く、空でもない
}

// Checkout は注文前の在庫確認と注文確定。注文そのものは OrderCheckout に任せる。
type Checkout struct {
	view      *CartView
	validator *StockValidator
	pricing   Pricing
	orders    OrderCheckout
	log       *zap.Logger
}

func NewCheckout(view *CartView, validator *StockValidator, pricing Pricing, orders OrderCheckout, log *zap.Logger) *Checkout {
	if log == nil {
		log = zap.NewNop()
	}
	return &Checkout{view: view, validator: validator, pricing: pricing, orders: orders, log: log}
}

// Review は行を商品情報付きにして、最新の在庫で判定し、合計を出す。
func (c *Checkout) Review(ctx context.Context) (Review, error) {
	items, dropped, err := c.view.Detailed(ctx)
	if err != nil {
		return Review{}, err
	}

	checks := make([]StockCheck, 0, len(items))
	for _, it := range items {
		checks = append(checks, StockCheck{Product: it.Product, Requested: it.Quantity})
	}
	verdicts := c.validator.Validate(ctx, checks)

	return Review{
		Items:    items,
		Verdicts: verdicts,
		Totals:   c.pricing.Compute(items),
		Dropped:  dropped,
		Ready:    len(items) > 0 && !Blocking(verdicts),
	}, nil
}

// Place は在庫に問題があれば ErrCheckoutBlocked。成功したらカートを空にする。
func (c *Checkout) Place(ctx context.Context) (OrderReceipt, Review, error) {
	r, err := c.Review(ctx)
	if err != nil {
		return OrderReceipt{}, Review{}, err
	}
	if len(r.Items) == 0 {
		return OrderReceipt{}, r, fmt.Errorf("%w: cart is empty", ErrCheckoutBlocked)
	}
	if !r.Ready {
		return OrderReceipt{}, r, ErrCheckoutBlocked
	}

	receipt, err := c.orders.PlaceOrder(ctx, OrderRequest{Items: r.Items, Totals: r.Totals})
	if err != nil {
		return OrderReceipt{}, r, err
	}

	if err := c.view.Clear(ctx); err != nil {
		// 注文は通っているので失敗にはしない
		c.log.Warn("cart clear after order failed", zap.String("order_id", receipt.OrderID), zap.Error(err))
	}
	c.log.Info("order placed", zap.String("order_id", receipt.OrderID), zap.String("total", r.Totals.Total.String()))
	return receipt, r, nil
}
