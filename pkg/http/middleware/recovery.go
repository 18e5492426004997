package middleware

import (
	"fmt"
	"runtime/debug"

	applogger "Indicium/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover turns panics into errors for the HTTP error handler. The stack is logged, never sent.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = applogger.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					perr, ok := r.(error)
					if !ok {
						perr = fmt.Errorf("%v", r)
					}
					l.Error("panic recovered",
						applogger.String("path", c.Request().URL.Path),
						applogger.Error(perr),
						applogger.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %w", perr)
				}
			}()
			return next(c)
		}
	}
}
