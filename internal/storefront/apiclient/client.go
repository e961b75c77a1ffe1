// Package apiclient は API サーバーの HTTP クライアント。
// cart.ProductCatalog と cart.ServerCartAPI を実装する。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/storefront/cart"

	"go.uber.org/zap"
)

// APIError はサーバーが返したエラー（在庫系以外）。
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d: %s", e.Status, e.Message)
}

// Unwrap はコア側の分類に合わせる
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return cart.ErrNotFound
	case e.Status == http.StatusBadRequest && strings.Contains(e.Message, "quantity"):
		return cart.ErrInvalidQuantity
	case e.Status == http.StatusBadRequest && strings.Contains(e.Message, "product_id"):
		return cart.ErrInvalidRef
	default:
		return cart.ErrTransport
	}
}

type errorBody struct {
	Error     string `json:"error"`
	Available *int64 `json:"available,omitempty"`
}

type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger

	mu    sync.RWMutex
	token string
}

func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// SetToken はログイン/ログアウト時に呼ぶ。空ならカートAPIは401になる。
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = strings.TrimSpace(token)
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Resolve は id でも slug でも引ける。
func (c *Client) Resolve(ctx context.Context, slugOrID string) (model.Product, error) {
	ref := strings.TrimSpace(slugOrID)
	if ref == "" {
		return model.Product{}, cart.ErrInvalidRef
	}

	var p model.Product
	if err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(ref), false, nil, &p, stockCtx{ref: ref}); err != nil {
		return model.Product{}, err
	}
	return p, nil
}

func (c *Client) FetchCart(ctx context.Context) (model.CartSnapshot, error) {
	return c.cartCall(ctx, http.MethodGet, "/cart", nil, stockCtx{})
}

func (c *Client) AddLine(ctx context.Context, productID string, qty int64) (model.CartSnapshot, error) {
	body := map[string]interface{}{"product_id": productID, "quantity": qty}
	return c.cartCall(ctx, http.MethodPost, "/cart", body, stockCtx{ref: productID, requested: qty})
}

func (c *Client) SetLineQuantity(ctx context.Context, productID string, qty int64) (model.CartSnapshot, error) {
	body := map[string]interface{}{"quantity": qty}
	return c.cartCall(ctx, http.MethodPut, "/cart/"+url.PathEscape(productID), body, stockCtx{ref: productID, requested: qty})
}

func (c *Client) RemoveLine(ctx context.Context, productID string) (model.CartSnapshot, error) {
	return c.cartCall(ctx, http.MethodDelete, "/cart/"+url.PathEscape(productID), nil, stockCtx{ref: productID})
}

func (c *Client) ClearCart(ctx context.Context) (model.CartSnapshot, error) {
	return c.cartCall(ctx, http.MethodDelete, "/cart", nil, stockCtx{})
}

func (c *Client) SyncLines(ctx context.Context, lines []model.SyncLine) (model.CartSnapshot, error) {
	if lines == nil {
		lines = []model.SyncLine{}
	}
	body := map[string]interface{}{"items": lines}
	return c.cartCall(ctx, http.MethodPost, "/cart/sync", body, stockCtx{})
}

func (c *Client) cartCall(ctx context.Context, method, path string, body interface{}, sc stockCtx) (model.CartSnapshot, error) {
	var snap model.CartSnapshot
	if err := c.do(ctx, method, path, true, body, &snap, sc); err != nil {
		return model.CartSnapshot{}, err
	}
	if snap.Items == nil {
		snap.Items = []model.SnapshotItem{}
	}
	return snap, nil
}

// 409 を StockError にするための情報
type stockCtx struct {
	ref       string
	requested int64
}

func (c *Client) do(ctx context.Context, method, path string, auth bool, body, out interface{}, sc stockCtx) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%w: %v", cart.ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		if tok := c.bearer(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		// ctx 終了も含めてネットワーク側の失敗
		return fmt.Errorf("%w: %s %s: %v", cart.ErrTransport, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", cart.ErrTransport, err)
	}

	c.log.Debug("api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: decode response: %v", cart.ErrTransport, err)
		}
		return nil
	}

	return decodeError(resp.StatusCode, data, sc)
}

func decodeError(status int, data []byte, sc stockCtx) error {
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err != nil || eb.Error == "" {
		eb.Error = http.StatusText(status)
	}

	if status == http.StatusConflict && (eb.Available != nil || isStockMessage(eb.Error)) {
		var available int64
		if eb.Available != nil && eb.Error != "out of stock" {
			available = *eb.Available
		}
		return &cart.StockError{
			ProductRef: sc.ref,
			Requested:  sc.requested,
			Available:  available,
			CartFull:   eb.Error == "insufficient stock" && available == 0,
		}
	}
	return &APIError{Status: status, Message: eb.Error}
}

func isStockMessage(msg string) bool {
	return msg == "out of stock" || msg == "insufficient stock"
}

// IsUnauthorized はトークン切れなど（ログインし直し）。
func IsUnauthorized(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusUnauthorized
}
