package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowOrigin  string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int
}

// DefaultCORSConfig allows any origin to read the public GET API.
var DefaultCORSConfig = CORSConfig{
	AllowOrigin:  "*",
	AllowMethods: []string{http.MethodGet, http.MethodOptions},
	AllowHeaders: []string{echo.HeaderContentType},
	MaxAge:       86400,
}

// CORS sets CORS headers on every response and answers preflight requests with 204.
// Register it with Echo#Pre so preflight never reaches routing or auth.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	if cfg.AllowOrigin == "" {
		cfg.AllowOrigin = "*"
	}
	methods := strings.Join(cfg.AllowMethods, ", ")
	headers := strings.Join(cfg.AllowHeaders, ", ")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, cfg.AllowOrigin)
			if methods != "" {
				h.Set(echo.HeaderAccessControlAllowMethods, methods)
			}
			if headers != "" {
				h.Set(echo.HeaderAccessControlAllowHeaders, headers)
			}
			if cfg.MaxAge > 0 {
				h.Set(echo.HeaderAccessControlMaxAge, strconv.Itoa(cfg.MaxAge))
			}

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}

// AllowMethods rejects any method not listed with echo.ErrMethodNotAllowed
// before routing, so unknown paths still answer 405 for non-GET requests.
func AllowMethods(methods ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		allowed[m] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := allowed[c.Request().Method]; !ok {
				return echo.ErrMethodNotAllowed
			}
			return next(c)
		}
	}
}
