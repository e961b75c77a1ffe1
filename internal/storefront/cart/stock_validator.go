package cart

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/domain/model"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusOK           Status = "ok"
	StatusInsufficient Status = "insufficient"
	StatusOutOfStock   Status = "outOfStock"
)

// StockCheck は確認したい1行。Product は行に埋め込まれていた商品情報（取り直せなかったときに使う）。
type StockCheck struct {
	Product   model.Product
	Requested int64
}

// LineVerdict は1行の判定。
type LineVerdict struct {
	Product   model.Product // 取り直した商品（Fallback のときは行の情報）
	Requested int64
	Available int64
	Status    Status
	Fallback  bool // カタログから取り直せず、行の在庫で判定した
}

// Message は行ごとの案内文。
func (v LineVerdict) Message() string {
	switch v.Status {
	case StatusOutOfStock:
		return fmt.Sprintf("%s is out of stock", v.Product.Name)
	case StatusInsufficient:
		return fmt.Sprintf("only %d of %s left", v.Available, v.Product.Name)
	default:
		return ""
	}
}

// Classify は在庫数と要求数から判定する。
func Classify(available, requested int64) Status {
	switch {
	case available <= 0:
		return StatusOutOfStock
	case available < requested:
		return StatusInsufficient
	default:
		return StatusOK
	}
}

// Blocking は1行でもOKでなければ true（チェックアウト不可）。
func Blocking(verdicts []LineVerdict) bool {
	for _, v := range verdicts {
		if v.Status != StatusOK {
			return true
		}
	}
	return false
}

// StockValidator はカートの行を最新の在庫と突き合わせる。カタログは毎回引き直す。
type StockValidator struct {
	catalog ProductCatalog
	limit   int
	log     *zap.Logger
}

func NewStockValidator(catalog ProductCatalog, concurrency int, log *zap.Logger) *StockValidator {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &StockValidator{catalog: catalog, limit: concurrency, log: log}
}

// Validate は入力と同じ順で判定を返す。取り直せない行があっても全体は失敗させない。
func (s *StockValidator) Validate(ctx context.Context, checks []StockCheck) []LineVerdict {
	out := make([]LineVerdict, len(checks))

	var g errgroup.Group
	g.SetLimit(s.limit)
	for i, c := range checks {
		i, c := i, c
		g.Go(func() error {
			out[i] = s.check(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (s *StockValidator) check(ctx context.Context, c StockCheck) LineVerdict {
	p, err := s.lookup(ctx, c.Product)
	if err != nil {
		s.log.Warn("stock check fell back to cart line data",
			zap.String("product_id", c.Product.ID),
			zap.String("slug", c.Product.Slug),
			zap.String("kind", string(KindOf(asTransport(err)))),
		)
		return verdict(c.Product, c.Requested, true)
	}
	return verdict(p, c.Requested, false)
}

func (s *StockValidator) lookup(ctx context.Context, p model.Product) (model.Product, error) {
	key := strings.TrimSpace(p.ID)
	if key == "" {
		key = strings.TrimSpace(p.Slug)
	}
	if key == "" {
		return model.Product{}, ErrInvalidRef
	}
	return s.catalog.Resolve(ctx, key)
}

func verdict(p model.Product, requested int64, fallback bool) LineVerdict {
	available := p.AvailableStock()
	return LineVerdict{
		Product:   p,
		Requested: requested,
		Available: available,
		Status:    Classify(available, requested),
		Fallback:  fallback,
	}
}

// Clamp は入力された数量を送る前に在庫で切り詰める（表示用の補助。最終判断はサーバー）。
// 在庫0なら0と ErrOutOfStock、切り詰めたら *StockError を返す。
func (s *StockValidator) Clamp(ctx context.Context, p model.Product, requested int64) (int64, error) {
	if requested < 1 {
		return 0, ErrInvalidQuantity
	}

	v := s.check(ctx, StockCheck{Product: p, Requested: requested})
	ref := p.GuestKey()
	switch v.Status {
	case StatusOutOfStock:
		return 0, &StockError{ProductRef: ref, Requested: requested, Available: 0}
	case StatusInsufficient:
		return v.Available, &StockError{ProductRef: ref, Requested: requested, Available: v.Available}
	default:
		return requested, nil
	}
}
