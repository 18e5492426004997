package middleware

import (
	"time"

	applogger "Indicium/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs HTTP requests. The query string is left out so tokens never reach logs.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = applogger.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			err := next(c)
			if err != nil {
				// Let the error handler write the response so the status is final.
				c.Error(err)
			}

			l.Info("http request",
				applogger.String("request_id", GetRequestID(c)),
				applogger.String("method", req.Method),
				applogger.String("path", req.URL.Path),
				applogger.Int("status", res.Status),
				applogger.Duration("latency", time.Since(start)),
				applogger.String("remote_ip", c.RealIP()),
			)
			return nil
		}
	}
}
