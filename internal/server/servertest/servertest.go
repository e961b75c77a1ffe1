// Package servertest は API サーバーをプロセス内で立てる（SQLite :memory: + インメモリキャッシュ）。
package servertest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/handler"
	"storefront/internal/infra/cache"
	"storefront/internal/infra/db"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/server"
	"storefront/internal/usecase"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const JWTSecret = "servertest-secret"

type Env struct {
	URL  string
	DB   *gorm.DB
	HTTP *http.Client
}

type seqIDGen struct{ n atomic.Int64 }

func (g *seqIDGen) NewID() string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", g.n.Add(1))
}

type clock struct{}

func (clock) Now() time.Time { return time.Now() }

// New はサーバーを起動し、テスト終了時に閉じる。
func New(t testing.TB) *Env {
	t.Helper()

	gdb, err := db.ConnectLocal(":memory:")
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&model.Product{},
		&model.Cart{},
		&model.CartItem{},
		&model.InventoryAdjustment{},
	))

	productRepo := infraRepo.NewProductGormRepository(gdb)
	cartRepo := infraRepo.NewCartGormRepository(gdb)
	txm := infraRepo.NewTxManagerGorm(gdb)

	productUC := usecase.NewProductUsecase(productRepo, txm, &seqIDGen{}, clock{})
	cartUC := usecase.NewCartUsecase(cartRepo, cartRepo, productRepo, txm, cache.NewInMemorySnapshotCache(), time.Minute)

	e := server.New(zap.NewNop(), server.Handlers{
		Product:      handler.NewProductHandler(productUC),
		AdminProduct: handler.NewAdminProductHandler(productUC),
		Cart:         handler.NewCartHandler(cartUC),
	}, JWTSecret)

	ts := httptest.NewServer(e)
	t.Cleanup(ts.Close)

	return &Env{
		URL:  ts.URL,
		DB:   gdb,
		HTTP: &http.Client{Timeout: 10 * time.Second},
	}
}

// Token はテスト用のアクセストークンを作る。
func Token(t testing.TB, userID int64, role string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(JWTSecret))
	require.NoError(t, err)
	return s
}

// SeedProduct は DB に直接商品を入れる。
func (e *Env) SeedProduct(t testing.TB, id, slug string, price, stock int64, active bool) model.Product {
	t.Helper()

	p := model.Product{
		ID:       id,
		Slug:     slug,
		Name:     strings.ReplaceAll(slug, "-", " "),
		Price:    decimal.NewFromInt(price),
		Stock:    stock,
		IsActive: active,
	}
	require.NoError(t, e.DB.Create(&p).Error)
	return p
}

// DoJSON はリクエストを送り、ステータスとボディを返す。
func (e *Env) DoJSON(t testing.TB, method, path, bearer string, body interface{}) (int, []byte) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, e.URL+path, reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := e.HTTP.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}
