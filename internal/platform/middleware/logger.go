// Package middleware holds the echo middleware chain: panic recovery,
// request ids, request logging and per-request deadlines.
package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/chartview/chartview/internal/platform/auth"
)

// Logger writes one structured line per request. Record and attachment
// routes carry a :source path segment and an authenticated subject; both
// are included when present so per-backend traffic can be separated in
// the logs.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid, _ := c.Get(RequestIDKey).(string)

			err := next(c)

			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
			}

			evt = evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP())

			if src := c.Param("source"); src != "" {
				evt = evt.Str("source", src)
			}
			if sub := auth.SubjectFromContext(c.Request().Context()); sub != "" {
				evt = evt.Str("subject", sub)
			}

			evt.Int64("bytes_out", c.Response().Size).Msg("request")

			return err
		}
	}
}
