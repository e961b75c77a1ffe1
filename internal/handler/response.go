package handler

import (
	"net/http"

	"storefront/internal/logger"
	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Available *int64 `json:"available,omitempty"` // 在庫エラーのときだけ
}

type SuccessResponse struct {
	Message string `json:"message"`
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{Error: he.Message, Available: he.Available})
	}

	//500
	logger.FromContext(c.Request().Context()).Error("unhandled error", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

// Bind + Validate（Validator未設定なら Bind だけ）
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return usecase.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if c.Echo().Validator == nil {
		return nil
	}
	return c.Validate(req)
}

//middleware.AuthJWT が c.Set("user_id", int64) した値を取り出す
func getUserIDFromContext(c echo.Context) (int64, bool) {
	id, ok := c.Get(middleware.CtxUserIDKey).(int64)
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}
