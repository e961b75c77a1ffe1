package logger

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// EchoMiddleware はリクエストごとのロガーをctxに載せ、終了時に1行出す。
func EchoMiddleware(l *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			reqLogger := l.With(
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
			)
			c.SetRequest(req.WithContext(WithContext(req.Context(), reqLogger)))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			fields := []zap.Field{
				zap.Int("status", status),
				zap.Duration("latency", time.Since(start)),
			}
			switch {
			case status >= 500:
				reqLogger.Error("http request", fields...)
			case status >= 400:
				reqLogger.Warn("http request", fields...)
			default:
				reqLogger.Info("http request", fields...)
			}
			return nil
		}
	}
}
