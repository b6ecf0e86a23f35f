package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout puts a deadline on each request's context. Backend calls
// made with that context are cancelled when it passes, and a handler that
// returns after the deadline without writing anything gets a 504.
//
// The handler runs on the request goroutine: echo recycles contexts, so no
// response may be written once this middleware has returned.
//
// The notice stream is long-lived and skipped.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 || strings.HasSuffix(c.Request().URL.Path, "/stream") {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) || c.Response().Committed {
				return err
			}
			return gatewayTimeoutError(c)
		}
	}
}

func gatewayTimeoutError(c echo.Context) error {
	code, body := Classify(context.DeadlineExceeded)
	body.RequestID = requestID(c)
	return c.JSON(code, body)
}
