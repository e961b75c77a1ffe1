package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"storefront/internal/domain/model"
	"storefront/internal/repository"

	"go.uber.org/zap"
)

// 端末ストレージのキー
const GuestCartKey = "guest_cart"

// GuestCartStore は未ログイン時のカート（slugキー）。
// 書き込みは1回ずつ直列で、呼び出しの中で端末ストレージまで書き切る。
type GuestCartStore struct {
	storage repository.DeviceStorage
	log     *zap.Logger

	mu   sync.Mutex // 書き込みは1本
	subs listeners[struct{}]
}

func NewGuestCartStore(storage repository.DeviceStorage, log *zap.Logger) *GuestCartStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &GuestCartStore{storage: storage, log: log}
}

// Subscribe は書き込みのたびに呼ばれる（別コンポーネントからの書き込みも含む）。
func (s *GuestCartStore) Subscribe(fn func()) func() {
	return s.subs.add(func(struct{}) { fn() })
}

// List は挿入順のコピーを返す。
func (s *GuestCartStore) List(ctx context.Context) ([]model.GuestLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Add は同じslugがあれば加算、無ければ末尾に追加。在庫は見ない。
func (s *GuestCartStore) Add(ctx context.Context, slug string, qty int64) error {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return ErrInvalidRef
	}
	if qty < 1 {
		return ErrInvalidQuantity
	}

	return s.mutate(ctx, func(lines []model.GuestLine) ([]model.GuestLine, bool) {
		if i := indexOf(lines, slug); i >= 0 {
			lines[i].Quantity += qty
			return lines, true
		}
		return append(lines, model.GuestLine{ProductSlug: slug, Quantity: qty}), true
	})
}

// SetQuantity は数量を上書き。0以下は Remove と同じ。
func (s *GuestCartStore) SetQuantity(ctx context.Context, slug string, qty int64) error {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return ErrInvalidRef
	}
	if qty <= 0 {
		return s.Remove(ctx, slug)
	}

	return s.mutate(ctx, func(lines []model.GuestLine) ([]model.GuestLine, bool) {
		if i := indexOf(lines, slug); i >= 0 {
			if lines[i].Quantity == qty {
				return lines, false
			}
			lines[i].Quantity = qty
			return lines, true
		}
		return append(lines, model.GuestLine{ProductSlug: slug, Quantity: qty}), true
	})
}

// Remove は無ければ何もしない。
func (s *GuestCartStore) Remove(ctx context.Context, slug string) error {
	slug = strings.TrimSpace(slug)
	return s.mutate(ctx, func(lines []model.GuestLine) ([]model.GuestLine, bool) {
		i := indexOf(lines, slug)
		if i < 0 {
			return lines, false
		}
		return append(lines[:i], lines[i+1:]...), true
	})
}

// Consume は取り込み済みの分だけ数量を減らし、0以下になった行を消す。
// List の後に足された分は残る。
func (s *GuestCartStore) Consume(ctx context.Context, taken []model.GuestLine) error {
	if len(taken) == 0 {
		return nil
	}
	return s.mutate(ctx, func(lines []model.GuestLine) ([]model.GuestLine, bool) {
		changed := false
		for _, t := range taken {
			i := indexOf(lines, t.ProductSlug)
			if i < 0 {
				continue
			}
			changed = true
			lines[i].Quantity -= t.Quantity
			if lines[i].Quantity <= 0 {
				lines = append(lines[:i], lines[i+1:]...)
			}
		}
		return lines, changed
	})
}

func (s *GuestCartStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	lines, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if len(lines) == 0 {
		s.mu.Unlock()
		return nil
	}
	if err := s.storage.Delete(ctx, GuestCartKey); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("guest cart clear: %w", err)
	}
	s.mu.Unlock()

	s.subs.notify(struct{}{})
	return nil
}

// 読んで、変えて、書く。ロックの中で完結させる。
func (s *GuestCartStore) mutate(ctx context.Context, fn func([]model.GuestLine) ([]model.GuestLine, bool)) error {
	s.mu.Lock()
	lines, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	next, changed := fn(lines)
	if !changed {
		s.mu.Unlock()
		return nil
	}
	if err := s.save(ctx, next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.subs.notify(struct{}{})
	return nil
}

func (s *GuestCartStore) load(ctx context.Context) ([]model.GuestLine, error) {
	raw, ok, err := s.storage.Get(ctx, GuestCartKey)
	if err != nil {
		return nil, fmt.Errorf("guest cart load: %w", err)
	}
	if !ok || len(raw) == 0 {
		return []model.GuestLine{}, nil
	}

	var stored []model.GuestLine
	if err := json.Unmarshal(raw, &stored); err != nil {
		// 壊れたデータは捨てて空から始める
		s.log.Warn("guest cart payload corrupt, starting empty", zap.Error(err))
		return []model.GuestLine{}, nil
	}
	return normalize(stored), nil
}

func (s *GuestCartStore) save(ctx context.Context, lines []model.GuestLine) error {
	if len(lines) == 0 {
		if err := s.storage.Delete(ctx, GuestCartKey); err != nil {
			return fmt.Errorf("guest cart save: %w", err)
		}
		return nil
	}

	raw, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("guest cart encode: %w", err)
	}
	if err := s.storage.Set(ctx, GuestCartKey, raw); err != nil {
		return fmt.Errorf("guest cart save: %w", err)
	}
	return nil
}

// 空slug・0以下を落とし、重複slugは合算（順序は最初に出た位置）
func normalize(in []model.GuestLine) []model.GuestLine {
	out := make([]model.GuestLine, 0, len(in))
	for _, l := range in {
		slug := strings.TrimSpace(l.ProductSlug)
		if slug == "" || l.Quantity <= 0 {
			continue
		}
		if i := indexOf(out, slug); i >= 0 {
			out[i].Quantity += l.Quantity
			continue
		}
		out = append(out, model.GuestLine{ProductSlug: slug, Quantity: l.Quantity})
	}
	return out
}

func indexOf(lines []model.GuestLine, slug string) int {
	for i, l := range lines {
		if l.ProductSlug == slug {
			return i
		}
	}
	return -1
}
