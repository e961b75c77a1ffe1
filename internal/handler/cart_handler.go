package handler

import (
	"net/http"

	"storefront/internal/domain/model"
	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /cartのHTTP。どのルートもカート全体のスナップショットを返す。
type CartHandler struct {
	uc *usecase.CartUsecase
}

// DI
func NewCartHandler(uc *usecase.CartUsecase) *CartHandler {
	return &CartHandler{uc: uc}
}

type AddCartRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"gte=1"`
}

type SetCartItemRequest struct {
	Quantity int64 `json:"quantity" validate:"gte=0"`
}

type SyncCartRequest struct {
	Items []model.SyncLine `json:"items" validate:"max=200,dive"`
}

// /cart を登録
func (h *CartHandler) RegisterRoutes(e *echo.Echo, jwtSecret string) {
	g := e.Group("/cart")
	g.Use(middleware.AuthJWT(jwtSecret))

	g.GET("", withUser(h.getCart))
	g.POST("", withUser(h.addToCart))
	g.DELETE("", withUser(h.clearCart))
	g.POST("/sync", withUser(h.syncCart))
	g.PUT("/:product_id", withUser(h.setItem))
	g.DELETE("/:product_id", withUser(h.deleteItem))
}

// cartAction は成功したらカート全体を返す
type cartAction func(c echo.Context, userID int64) (model.CartSnapshot, error)

// user_id を取り出して、結果のスナップショットかエラーを書く
func withUser(fn cartAction) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := getUserIDFromContext(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		}
		out, err := fn(c, userID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, out)
	}
}

func (h *CartHandler) getCart(c echo.Context, userID int64) (model.CartSnapshot, error) {
	return h.uc.GetCart(c.Request().Context(), userID)
}

func (h *CartHandler) addToCart(c echo.Context, userID int64) (model.CartSnapshot, error) {
	var req AddCartRequest
	if err := bindAndValidate(c, &req); err != nil {
		return model.CartSnapshot{}, err
	}
	return h.uc.AddToCart(c.Request().Context(), userID, usecase.AddCartInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
}

// 0 は削除
func (h *CartHandler) setItem(c echo.Context, userID int64) (model.CartSnapshot, error) {
	var req SetCartItemRequest
	if err := bindAndValidate(c, &req); err != nil {
		return model.CartSnapshot{}, err
	}
	return h.uc.SetCartItemQuantity(c.Request().Context(), userID, usecase.SetQuantityInput{
		ProductID: c.Param("product_id"),
		Quantity:  req.Quantity,
	})
}

func (h *CartHandler) deleteItem(c echo.Context, userID int64) (model.CartSnapshot, error) {
	return h.uc.RemoveCartItem(c.Request().Context(), userID, c.Param("product_id"))
}

func (h *CartHandler) clearCart(c echo.Context, userID int64) (model.CartSnapshot, error) {
	return h.uc.ClearCart(c.Request().Context(), userID)
}

// ログイン直後のゲストカート取り込み（1リクエストでまとめて）
func (h *CartHandler) syncCart(c echo.Context, userID int64) (model.CartSnapshot, error) {
	var req SyncCartRequest
	if err := bindAndValidate(c, &req); err != nil {
		return model.CartSnapshot{}, err
	}
	return h.uc.SyncGuestCart(c.Request().Context(), userID, req.Items)
}
