package server

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-Id"

// RequestID assigns every request a correlation id, honoring one supplied by
// the caller, and echoes it back in the response.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(requestIDHeader)
			if id == "" {
				u, err := uuid.NewV4()
				if err == nil {
					id = u.String()
				}
			}
			c.Set("request_id", id)
			c.Response().Header().Set(requestIDHeader, id)
			return next(c)
		}
	}
}

// Logging emits one structured line per request.
func Logging(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			// metadata only, never payloads
			log.Info("http",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("dur", time.Since(start)),
				zap.String("peer", c.RealIP()),
				zap.String("request_id", requestID(c)),
			)
			if err != nil {
				log.Error("request failed",
					zap.String("path", req.URL.Path),
					zap.String("request_id", requestID(c)),
					zap.Error(err),
				)
			}
			return nil
		}
	}
}

// Recover converts handler panics into a bare 500; internals never reach the
// peer.
func Recover(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic",
						zap.Any("reason", r),
						zap.ByteString("stack", debug.Stack()),
						zap.String("path", c.Request().URL.Path),
						zap.String("request_id", requestID(c)),
					)
					err = echo.NewHTTPError(http.StatusInternalServerError, "internal")
				}
			}()
			return next(c)
		}
	}
}

func requestID(c echo.Context) string {
	if id, ok := c.Get("request_id").(string); ok {
		return id
	}
	return ""
}
