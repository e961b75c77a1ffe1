package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/infra/db"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/logger"
	"storefront/internal/storefront/apiclient"
	"storefront/internal/storefront/cart"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ログイン中のトークンを置くキー
const tokenKey = "access_token"

// 注文APIはこのクライアントには無い
type noOrders struct{}

func (noOrders) PlaceOrder(ctx context.Context, req cart.OrderRequest) (cart.OrderReceipt, error) {
	return cart.OrderReceipt{}, errors.New("order placement is not available from this client")
}

type app struct {
	cfg      config.ClientConfig
	log      *zap.Logger
	storage  *infraRepo.DeviceStorageGorm
	api      *apiclient.Client
	auth     *cart.AuthFlag
	view     *cart.CartView
	checkout *cart.Checkout
	pricing  cart.Pricing
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}

	// 画面出力と混ざらないように stderr、dev 以外は warn 以上だけ
	level := "warn"
	if cfg.GoEnv == "dev" {
		level = "info"
	}
	log, err := logger.New(logger.Config{Level: level, Format: "console", Output: "stderr"})
	if err != nil {
		return nil, err
	}

	local, err := db.ConnectLocal(cfg.DevicePath)
	if err != nil {
		return nil, fmt.Errorf("open device storage: %w", err)
	}
	storage := infraRepo.NewDeviceStorageGorm(local)
	if err := storage.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate device storage: %w", err)
	}

	// 環境変数が優先、無ければ login で保存したもの
	token := cfg.AccessToken
	if token == "" {
		raw, ok, err := storage.Get(ctx, tokenKey)
		if err != nil {
			return nil, err
		}
		if ok {
			token = string(raw)
		}
	}

	api := apiclient.New(cfg.APIBaseURL, cfg.APITimeout, log.Named("api"))
	api.SetToken(token)

	pricing := cart.Pricing{
		TaxRate:               cfg.TaxRate,
		DeliveryFee:           cfg.DeliveryFee,
		FreeDeliveryThreshold: cfg.FreeDeliveryThreshold,
	}

	auth := cart.NewAuthFlag(token != "")
	store := cart.NewGuestCartStore(storage, log.Named("guest"))
	client := cart.NewServerCartClient(api, log.Named("server_cart"))
	rec := cart.NewReconciler(store, client, api, log.Named("reconcile"))
	view := cart.NewCartView(auth, store, client, rec, api, log.Named("view"))
	validator := cart.NewStockValidator(api, cfg.ValidatorConcurrency, log.Named("stock"))

	return &app{
		cfg:      cfg,
		log:      log,
		storage:  storage,
		api:      api,
		auth:     auth,
		view:     view,
		checkout: cart.NewCheckout(view, validator, pricing, noOrders{}, log.Named("checkout")),
		pricing:  pricing,
	}, nil
}

func (a *app) close() {
	a.view.Close()
	_ = a.log.Sync()
}

// ログイン中は最新のカートを取ってから操作する。
// ゲストカートの取り込みだけ失敗した場合は警告して続ける（次回また再送する）。
func (a *app) refresh(ctx context.Context) error {
	if err := a.view.Refresh(ctx); err != nil {
		var re *cart.ReconcileError
		if errors.As(err, &re) {
			a.log.Warn("guest cart merge deferred", zap.Error(re.Err))
			fmt.Fprintln(os.Stderr, "warning: guest cart not merged yet:", describe(re.Err))
			return nil
		}
		if apiclient.IsUnauthorized(err) {
			return fmt.Errorf("session expired, run login again: %w", err)
		}
		return err
	}
	return nil
}

// uuid なら id、それ以外は slug
func parseRef(s string) model.ProductRef {
	s = strings.TrimSpace(s)
	if _, err := uuid.Parse(s); err == nil {
		return model.ProductRef{ID: s}
	}
	return model.ProductRef{Slug: s}
}

func parseQty(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	return n, nil
}

func describe(err error) string {
	var se *cart.StockError
	switch cart.KindOf(err) {
	case cart.KindInsufficientStock:
		if errors.As(err, &se) && se.CartFull {
			return "your cart already holds all remaining stock"
		}
		if errors.As(err, &se) {
			return fmt.Sprintf("only %d left in stock", se.Available)
		}
		return "not enough stock"
	case cart.KindOutOfStock:
		return "this product is out of stock"
	case cart.KindNotFound:
		return "this product is no longer available"
	case cart.KindTransport:
		return "could not reach the store, try again"
	default:
		return err.Error()
	}
}

func newRootCmd() *cobra.Command {
	var a *app

	root := &cobra.Command{
		Use:           "storefront",
		Short:         "Storefront cart client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			a, err = newApp(cmd.Context())
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a != nil {
				a.close()
			}
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "add <slug|id> [quantity]",
			Short: "Add a product to the cart",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				qty := int64(1)
				if len(args) == 2 {
					n, err := parseQty(args[1])
					if err != nil {
						return err
					}
					qty = n
				}
				ctx := cmd.Context()
				if err := a.refresh(ctx); err != nil {
					return err
				}
				if err := a.view.Add(ctx, parseRef(args[0]), qty); err != nil {
					return errors.New(describe(err))
				}
				return printCart(ctx, cmd.OutOrStdout(), a)
			},
		},
		&cobra.Command{
			Use:   "set <slug|id> <quantity>",
			Short: "Set the quantity of a cart line (0 removes it)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				qty, err := parseQty(args[1])
				if err != nil {
					return err
				}
				ctx := cmd.Context()
				if err := a.refresh(ctx); err != nil {
					return err
				}
				if err := a.view.SetQuantity(ctx, parseRef(args[0]), qty); err != nil {
					return errors.New(describe(err))
				}
				return printCart(ctx, cmd.OutOrStdout(), a)
			},
		},
		&cobra.Command{
			Use:   "remove <slug|id>",
			Short: "Remove a product from the cart",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				if err := a.refresh(ctx); err != nil {
					return err
				}
				if err := a.view.Remove(ctx, parseRef(args[0])); err != nil {
					return errors.New(describe(err))
				}
				return printCart(ctx, cmd.OutOrStdout(), a)
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Show the cart with totals",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				if err := a.refresh(ctx); err != nil {
					return err
				}
				return printCart(ctx, cmd.OutOrStdout(), a)
			},
		},
		&cobra.Command{
			Use:   "login <access-token>",
			Short: "Store an access token and merge the guest cart into the account cart",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				token := strings.TrimSpace(args[0])
				if err := a.storage.Set(ctx, tokenKey, []byte(token)); err != nil {
					return err
				}
				a.api.SetToken(token)
				a.auth.Set(true)
				if err := a.refresh(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "logged in")
				return printCart(ctx, cmd.OutOrStdout(), a)
			},
		},
		&cobra.Command{
			Use:   "logout",
			Short: "Forget the access token",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.storage.Delete(cmd.Context(), tokenKey); err != nil {
					return err
				}
				a.api.SetToken("")
				a.auth.Set(false)
				fmt.Fprintln(cmd.OutOrStdout(), "logged out")
				return nil
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Check current stock for every cart line before checkout",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				if err := a.refresh(ctx); err != nil {
					return err
				}
				r, err := a.checkout.Review(ctx)
				if err != nil {
					return errors.New(describe(err))
				}
				return printReview(cmd.OutOrStdout(), r)
			},
		},
	)

	return root
}

func printCart(ctx context.Context, w io.Writer, a *app) error {
	items, dropped, err := a.view.Detailed(ctx)
	if err != nil {
		return errors.New(describe(err))
	}

	fmt.Fprintf(w, "cart (%s)\n", a.view.Mode())
	if len(items) == 0 {
		fmt.Fprintln(w, "  empty")
	}
	for _, it := range items {
		fmt.Fprintf(w, "  %-24s x%-3d %10s\n", it.Product.GuestKey(), it.Quantity, it.Total().StringFixed(2))
	}
	for _, slug := range dropped {
		fmt.Fprintf(w, "  %-24s no longer available\n", slug)
	}

	t := a.pricing.Compute(items)
	fmt.Fprintf(w, "  subtotal %s  tax %s  delivery %s  total %s\n",
		t.Subtotal.StringFixed(2), t.Tax.StringFixed(2), t.Delivery.StringFixed(2), t.Total.StringFixed(2))
	return nil
}

func printReview(w io.Writer, r cart.Review) error {
	for _, v := range r.Verdicts {
		line := fmt.Sprintf("  %-24s %-12s requested %d, available %d", v.Product.GuestKey(), v.Status, v.Requested, v.Available)
		if msg := v.Message(); msg != "" {
			line += "  " + msg
		}
		if v.Fallback {
			line += "  (could not refresh stock)"
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "  total %s\n", r.Totals.Total.StringFixed(2))
	if r.Ready {
		fmt.Fprintln(w, "ready for checkout")
		return nil
	}
	fmt.Fprintln(w, "checkout blocked")
	return nil
}

func main() {
	//.envは無くてもよい
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("../.env")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
