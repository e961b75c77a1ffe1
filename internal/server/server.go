package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"storefront/internal/logger"
	"storefront/internal/validator"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// New は共通ミドルウェアとValidatorを設定したechoを返す。
func New(log *zap.Logger, h Handlers, jwtSecret string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validator.New()

	e.Use(echomw.Recover())
	e.Use(logger.EchoMiddleware(logger.OrNop(log)))

	RegisterRoutes(e, h, jwtSecret)
	return e
}

// Start はctxが終わるまで待って graceful shutdown する。
func Start(ctx context.Context, e *echo.Echo, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
