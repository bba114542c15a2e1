package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// RequestLogger logs each HTTP request with method, path, status and duration.
// Run it inside RequestID so the id is available.
func RequestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			res := c.Response()
			reqID := res.Header().Get(echo.HeaderXRequestID)
			if reqID == "" {
				reqID = c.Request().Header.Get(echo.HeaderXRequestID)
			}

			evt := log.Info()
			if res.Status >= 500 {
				evt = log.Error()
			}
			evt.Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", res.Status).
				Float64("duration_ms", float64(time.Since(start).Microseconds())/1000.0).
				Str("request_id", reqID).
				Msg("http")
			return nil
		}
	}
}
