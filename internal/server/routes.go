package server

import (
	"net/http"

	"storefront/internal/handler"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Product      *handler.ProductHandler
	AdminProduct *handler.AdminProductHandler
	Cart         *handler.CartHandler
}

func RegisterRoutes(e *echo.Echo, h Handlers, jwtSecret string) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	h.Product.RegisterRoutes(e)
	h.AdminProduct.RegisterRoutes(e, jwtSecret)
	h.Cart.RegisterRoutes(e, jwtSecret)
}
