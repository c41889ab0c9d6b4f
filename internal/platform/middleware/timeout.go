package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

type TimeoutConfig struct {
	// Timeout bounds each request. Zero or negative disables the middleware.
	Timeout time.Duration
	Skipper echomw.Skipper
}

// RequestTimeout puts a deadline on the request context and answers 504 when
// the handler overruns it. Output from a handler that finishes late is dropped.
func RequestTimeout(cfg TimeoutConfig) echo.MiddlewareFunc {
	if cfg.Skipper == nil {
		cfg.Skipper = echomw.DefaultSkipper
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if cfg.Timeout <= 0 {
			return next
		}
		return func(c echo.Context) error {
			if cfg.Skipper(c) {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), cfg.Timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() { done <- next(c) }()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if !errors.Is(ctx.Err(), context.DeadlineExceeded) || c.Response().Committed {
					return ctx.Err()
				}
				return c.JSON(http.StatusGatewayTimeout, map[string]string{
					"message": "Request timed out",
					"error":   "request " + requestIDOf(c) + " exceeded " + cfg.Timeout.String(),
				})
			}
		}
	}
}

func requestIDOf(c echo.Context) string {
	if id, ok := c.Get("request_id").(string); ok && id != "" {
		return id
	}
	return "-"
}
