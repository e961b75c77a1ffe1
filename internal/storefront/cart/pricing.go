package cart

import "github.com/shopspring/decimal"

// Pricing はカート合計の計算ルール。
type Pricing struct {
	TaxRate               decimal.Decimal
	DeliveryFee           decimal.Decimal
	FreeDeliveryThreshold decimal.Decimal // 小計がこれ以上なら送料無料
}

func DefaultPricing() Pricing {
	return Pricing{
		TaxRate:               decimal.RequireFromString("0.18"),
		DeliveryFee:           decimal.NewFromInt(50),
		FreeDeliveryThreshold: decimal.NewFromInt(500),
	}
}

type Totals struct {
	ItemCount int64           `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
	Delivery  decimal.Decimal `json:"delivery"`
	Total     decimal.Decimal `json:"total"`
}

// Compute は小計・税・送料・合計。税は小数2桁で丸める。空のカートは全部0。
func (p Pricing) Compute(items []Item) Totals {
	t := Totals{
		Subtotal: decimal.Zero,
		Tax:      decimal.Zero,
		Delivery: decimal.Zero,
		Total:    decimal.Zero,
	}
	for _, it := range items {
		t.ItemCount += it.Quantity
		t.Subtotal = t.Subtotal.Add(it.Total())
	}
	if t.ItemCount == 0 {
		return t
	}

	t.Tax = t.Subtotal.Mul(p.TaxRate).Round(2)
	if t.Subtotal.LessThan(p.FreeDeliveryThreshold) {
		t.Delivery = p.DeliveryFee
	}
	t.Total = t.Subtotal.Add(t.Tax).Add(t.Delivery)
	return t
}
