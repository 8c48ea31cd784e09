package middleware

import (
	"context"
	"regexp"
	"time"

	"splitEngine/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const maxRequestIDLength = 128

var validRequestID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// TraceMiddleware puts the caller's X-Request-ID, or a fresh uuid when it is
// missing or malformed, on the request context and echoes it back.
func TraceMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if len(id) == 0 || len(id) > maxRequestIDLength || !validRequestID.MatchString(id) {
				id = uuid.NewString()
			}

			c.Response().Header().Set(echo.HeaderXRequestID, id)
			req := c.Request()
			c.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), id)))

			return next(c)
		}
	}
}

// TimeoutMiddleware bounds every request context. Handlers pass the context
// down so the stores abort on deadline.
func TimeoutMiddleware(d time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if d <= 0 {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), d)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
