package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/todayfeed/internal/observability"
)

// RequestLogger logs one line per request with timing and the request id.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			slog.Info("http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				observability.LogFieldRequestID, c.Get("request_id"),
				observability.LogFieldDuration, observability.DurationMs(start))
			return err
		}
	}
}
