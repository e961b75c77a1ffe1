package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/logger"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartUsecase は /cart の業務ロジックです。
// 変更系はすべてカート全体のスナップショットを返す（クライアントはそれで置き換える）。
type CartUsecase struct {
	cartRepo     repo.CartRepository
	cartItemRepo repo.CartItemRepository
	productRepo  repo.ProductRepository
	tx           repo.TransactionManager
	cache        repo.CartSnapshotCache
	cacheTTL     time.Duration
}

func NewCartUsecase(
	cartRepo repo.CartRepository,
	cartItemRepo repo.CartItemRepository,
	productRepo repo.ProductRepository,
	tx repo.TransactionManager,
	cache repo.CartSnapshotCache,
	cacheTTL time.Duration,
) *CartUsecase {
	return &CartUsecase{
		cartRepo:     cartRepo,
		cartItemRepo: cartItemRepo,
		productRepo:  productRepo,
		tx:           tx,
		cache:        cache,
		cacheTTL:     cacheTTL,
	}
}

type AddCartInput struct {
	ProductID string
	Quantity  int64
}

type SetQuantityInput struct {
	ProductID string
	Quantity  int64
}

// GetCart はカート取得（無ければACTIVEを作って空を返す）。
func (u *CartUsecase) GetCart(ctx context.Context, userID int64) (model.CartSnapshot, error) {
	if userID <= 0 {
		return model.CartSnapshot{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	if snap, err := u.cache.Get(ctx, userID); err == nil {
		return snap, nil
	} else if !errors.Is(err, repo.ErrCacheMiss) {
		logger.FromContext(ctx).Warn("cart cache get failed", zap.Int64("user_id", userID), zap.Error(err))
	}

	// DBを読む前の世代。読んでいる間にコミットが入れば Set は捨てられる。
	gen, genErr := u.cache.Generation(ctx, userID)
	if genErr != nil {
		logger.FromContext(ctx).Warn("cart cache generation failed", zap.Int64("user_id", userID), zap.Error(genErr))
	}

	cart, err := u.cartRepo.ForUser(ctx, userID)
	if err != nil {
		return model.CartSnapshot{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	snap, err := buildSnapshot(ctx, u.cartItemRepo, u.productRepo, cart)
	if err != nil {
		return model.CartSnapshot{}, err
	}
	if genErr == nil {
		u.storeSnapshot(ctx, gen, snap)
	}
	return snap, nil
}

// AddToCart はカートに追加（同一商品は数量加算）。
func (u *CartUsecase) AddToCart(ctx context.Context, userID int64, in AddCartInput) (model.CartSnapshot, error) {
	if userID <= 0 {
		return model.CartSnapshot{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(in.ProductID) == "" {
		return model.CartSnapshot{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	if in.Quantity < 1 {
		return model.CartSnapshot{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}

	u.invalidate(ctx, userID)

	var out model.CartSnapshot
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// ACTIVEカート取得（無ければ作成）
		cart, err := r.Carts().ForUser(ctx, userID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		p, err := findPurchasable(ctx, r.Products(), in.ProductID)
		if err != nil {
			return err
		}

		existingQty, err := currentQuantity(ctx, r.CartItems(), cart.ID, in.ProductID)
		if err != nil {
			return err
		}

		newQty := existingQty + in.Quantity
		if newQty > p.AvailableStock() {
			return newStockError(p.AvailableStock(), p.AvailableStock()-existingQty)
		}

		// Upsert（同一商品は加算）
		// unit_price_snapshot は「追加時点の価格」を渡す
		if err := r.CartItems().UpsertByCartAndProduct(ctx, cart.ID, in.ProductID, in.Quantity, p.Price); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out, err = buildSnapshot(ctx, r.CartItems(), r.Products(), cart)
		return err
	})
	if err != nil {
		return model.CartSnapshot{}, err
	}
	u.invalidate(ctx, userID)
	return out, nil
}

// 数量を上書き（0以下は削除）。
func (u *CartUsecase) SetCartItemQuantity(ctx context.Context, userID int64, in SetQuantityInput) (model.CartSnapshot, error) {
	if userID <= 0 {
		return model.CartSnapshot{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(in.ProductID) == "" {
		return model.CartSnapshot{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	if in.Quantity <= 0 {
		return u.RemoveCartItem(ctx, userID, in.ProductID)
	}

	u.invalidate(ctx, userID)

	var out model.CartSnapshot
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().ForUser(ctx, userID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//商品の在庫チェック
		p, err := findPurchasable(ctx, r.Products(), in.ProductID)
		if err != nil {
			return err
		}
		if in.Quantity > p.AvailableStock() {
			return newStockError(p.AvailableStock(), p.AvailableStock())
		}

		price := p.Price
		if it, err := r.CartItems().FindByCartAndProduct(ctx, cart.ID, in.ProductID); err == nil {
			price = it.UnitPriceSnapshot
		}

		if err := r.CartItems().SetQuantityByCartAndProduct(ctx, cart.ID, in.ProductID, in.Quantity, price); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out, err = buildSnapshot(ctx, r.CartItems(), r.Products(), cart)
		return err
	})
	if err != nil {
		return model.CartSnapshot{}, err
	}
	u.invalidate(ctx, userID)
	return out, nil
}

// 明細削除（無くてもエラーにしない）
func (u *CartUsecase) RemoveCartItem(ctx context.Context, userID int64, productID string) (model.CartSnapshot, error) {
	if userID <= 0 {
		return model.CartSnapshot{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(productID) == "" {
		return model.CartSnapshot{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}

	cart, err := u.cartRepo.ForUser(ctx, userID)
	if err != nil {
		return model.CartSnapshot{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	u.invalidate(ctx, userID)
	if err := u.cartItemRepo.DeleteByCartAndProduct(ctx, cart.ID, productID); err != nil {
		return model.CartSnapshot{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	u.invalidate(ctx, userID)

	return buildSnapshot(ctx, u.cartItemRepo, u.productRepo, cart)
}

// カートを空にして空のスナップショットを返す
func (u *CartUsecase) ClearCart(ctx context.Context, userID int64) (model.CartSnapshot, error) {
	if userID <= 0 {
		return model.CartSnapshot{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	cart, err := u.cartRepo.ForUser(ctx, userID)
	if err != nil {
		return model.CartSnapshot{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	u.invalidate(ctx, userID)
	if err := u.cartRepo.Clear(ctx, cart.ID); err != nil {
		return model.CartSnapshot{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	u.invalidate(ctx, userID)

	return buildSnapshot(ctx, u.cartItemRepo, u.productRepo, cart)
}

// SyncGuestCart はログイン直後にゲストカートをまとめて取り込む。
// マージ規則：既存数量に加算し、在庫で頭打ち。存在しない/購入不可の商品はスキップ。
// 変わった行は Adjustments で返す。
func (u *CartUsecase) SyncGuestCart(ctx context.Context, userID int64, lines []model.SyncLine) (model.CartSnapshot, error) {
	if userID <= 0 {
		return model.CartSnapshot{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if len(lines) > 200 {
		return model.CartSnapshot{}, NewHTTPError(http.StatusBadRequest, "too many items")
	}

	merged, err := mergeSyncLines(lines)
	if err != nil {
		return model.CartSnapshot{}, err
	}

	u.invalidate(ctx, userID)

	var (
		out         model.CartSnapshot
		adjustments []model.SyncAdjustment
	)
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		adjustments = adjustments[:0]
		cart, err := r.Carts().ForUser(ctx, userID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		for _, l := range merged {
			p, err := r.Products().FindByID(ctx, l.ProductID)
			if errors.Is(err, repo.ErrNotFound) {
				adjustments = append(adjustments, model.SyncAdjustment{
					ProductID: l.ProductID, Requested: l.Quantity, Applied: 0, Reason: model.AdjustmentNotFound,
				})
				continue
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !p.Purchasable() {
				adjustments = append(adjustments, model.SyncAdjustment{
					ProductID: l.ProductID, Requested: l.Quantity, Applied: 0, Reason: model.AdjustmentOutOfStock,
				})
				continue
			}

			existing, err := currentQuantity(ctx, r.CartItems(), cart.ID, l.ProductID)
			if err != nil {
				return err
			}

			want := existing + l.Quantity
			applied := want
			if applied > p.AvailableStock() {
				applied = p.AvailableStock()
				adjustments = append(adjustments, model.SyncAdjustment{
					ProductID: l.ProductID, Requested: want, Applied: applied, Reason: model.AdjustmentClamped,
				})
			}

			price := p.Price
			if it, err := r.CartItems().FindByCartAndProduct(ctx, cart.ID, l.ProductID); err == nil {
				price = it.UnitPriceSnapshot
			}
			if err := r.CartItems().SetQuantityByCartAndProduct(ctx, cart.ID, l.ProductID, applied, price); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		}

		out, err = buildSnapshot(ctx, r.CartItems(), r.Products(), cart)
		return err
	})
	if err != nil {
		return model.CartSnapshot{}, err
	}
	u.invalidate(ctx, userID)
	if len(adjustments) > 0 {
		out.Adjustments = adjustments
	}

	logger.FromContext(ctx).Info("guest cart synced",
		zap.Int64("user_id", userID),
		zap.Int("lines", len(merged)),
		zap.Int("adjusted", len(out.Adjustments)),
	)
	return out, nil
}

// 同じ商品が複数行あれば合算（順序は最初に出た順）
func mergeSyncLines(lines []model.SyncLine) ([]model.SyncLine, error) {
	index := make(map[string]int, len(lines))
	out := make([]model.SyncLine, 0, len(lines))
	for _, l := range lines {
		id := strings.TrimSpace(l.ProductID)
		if id == "" {
			return nil, NewHTTPError(http.StatusBadRequest, "invalid product_id")
		}
		if l.Quantity < 1 {
			return nil, NewHTTPError(http.StatusBadRequest, "invalid quantity")
		}
		if i, ok := index[id]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[id] = len(out)
		out = append(out, model.SyncLine{ProductID: id, Quantity: l.Quantity})
	}
	return out, nil
}

// 購入可能な商品を取得。無ければ404、買えなければ409。
func findPurchasable(ctx context.Context, products repo.ProductRepository, productID string) (model.Product, error) {
	p, err := products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NewHTTPError(http.StatusNotFound, MsgNotFound)
	}
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !p.Purchasable() {
		return model.Product{}, newStockError(0, 0)
	}
	return p, nil
}

func currentQuantity(ctx context.Context, items repo.CartItemRepository, cartID int64, productID string) (int64, error) {
	it, err := items.FindByCartAndProduct(ctx, cartID, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return it.Quantity, nil
}

// 変更の前後で呼ぶ。前は変更中に古い値を返さないため、後（コミット後）は
// 変更前に読み始めた GetCart の Set を無効にするため。
// キャッシュの失敗はログだけ（DBが正）
func (u *CartUsecase) invalidate(ctx context.Context, userID int64) {
	if _, err := u.cache.Invalidate(ctx, userID); err != nil {
		logger.FromContext(ctx).Warn("cart cache invalidate failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (u *CartUsecase) storeSnapshot(ctx context.Context, gen uint64, snap model.CartSnapshot) {
	stored, err := u.cache.Set(ctx, snap.UserID, gen, snap, u.cacheTTL)
	if err != nil {
		logger.FromContext(ctx).Warn("cart cache set failed", zap.Int64("user_id", snap.UserID), zap.Error(err))
		return
	}
	if !stored {
		logger.FromContext(ctx).Debug("cart cache set skipped, newer generation", zap.Int64("user_id", snap.UserID))
	}
}

// cartの明細をまとめてスナップショットを作る。
// 削除済み商品の行は出さない。非公開/在庫0の行は出す（クライアントの在庫確認で弾かせる）。
func buildSnapshot(ctx context.Context, items repo.CartItemRepository, products repo.ProductRepository, cart model.Cart) (model.CartSnapshot, error) {
	rows, err := items.ListByCartID(ctx, cart.ID)
	if err != nil {
		return model.CartSnapshot{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	snap := model.CartSnapshot{
		ID:       cart.ID,
		UserID:   cart.UserID,
		Items:    make([]model.SnapshotItem, 0, len(rows)),
		Subtotal: decimal.Zero,
	}

	for _, it := range rows {
		p, err := products.FindByID(ctx, it.ProductID)
		if err != nil {
			continue
		}

		snap.Items = append(snap.Items, model.SnapshotItem{
			ProductID: it.ProductID,
			Slug:      p.Slug,
			Name:      p.Name,
			Price:     it.UnitPriceSnapshot,
			Stock:     p.Stock,
			IsActive:  p.IsActive,
			Quantity:  it.Quantity,
		})
		snap.ItemCount += it.Quantity
		snap.Subtotal = snap.Subtotal.Add(it.UnitPriceSnapshot.Mul(decimal.NewFromInt(it.Quantity)))
	}

	return snap, nil
}
