package handler

import (
	"errors"
	"net/http"

	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// /products の公開API
type ProductHandler struct {
	uc *usecase.ProductUsecase
}

// DI
func NewProductHandler(uc *usecase.ProductUsecase) *ProductHandler {
	return &ProductHandler{uc: uc}
}

// 公開商品のルートを登録
func (h *ProductHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/products", h.list)
	e.GET("/products/:ref", h.detail)
}

func (h *ProductHandler) list(c echo.Context) error {
	page, limit := 1, 20
	var inStock bool
	var minRaw, maxRaw string

	err := echo.QueryParamsBinder(c).
		Int("page", &page).
		Int("limit", &limit).
		Bool("in_stock", &inStock).
		String("min_price", &minRaw).
		String("max_price", &maxRaw).
		BindError()
	if err != nil {
		var be *echo.BindingError
		if errors.As(err, &be) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + be.Field})
		}
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid query"})
	}

	minPrice, err := optionalDecimal(minRaw)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid min_price"})
	}
	maxPrice, err := optionalDecimal(maxRaw)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid max_price"})
	}

	out, err := h.uc.ListPublicProducts(c.Request().Context(), usecase.ListProductsInput{
		Page:     page,
		Limit:    limit,
		Q:        c.QueryParam("q"),
		MinPrice: minPrice,
		MaxPrice: maxPrice,
		InStock:  inStock,
		Sort:     c.QueryParam("sort"),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// :ref は product id でも slug でもよい
func (h *ProductHandler) detail(c echo.Context) error {
	p, err := h.uc.GetProduct(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, p)
}

// 空なら指定なし
func optionalDecimal(v string) (*decimal.Decimal, error) {
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
