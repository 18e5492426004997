package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// TimestampLayout is the ISO-8601 UTC layout with milliseconds used in bodies.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Now is the clock used for error and health timestamps.
var Now = time.Now

// Timestamp formats t in UTC with TimestampLayout.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ErrorBody renders {"error": {code, message, timestamp, ...params}}.
func ErrorBody(e *AppError) map[string]interface{} {
	inner := make(map[string]interface{}, len(e.Params)+3)
	for k, v := range e.Params {
		inner[k] = v
	}
	inner["code"] = e.Code
	inner["message"] = e.Message
	inner["timestamp"] = Timestamp(Now())
	return map[string]interface{}{"error": inner}
}

// ErrorResponse writes an application error with its status.
func ErrorResponse(c echo.Context, e *AppError) error {
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, ErrorBody(e))
}

// SuccessResponse writes v as JSON with status 200.
func SuccessResponse(c echo.Context, v interface{}) error {
	return c.JSON(http.StatusOK, v)
}

// CSVResponse writes body as a CSV attachment.
func CSVResponse(c echo.Context, filename, body string) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", []byte(body))
}

// HealthCheck returns a handler serving the static health payload.
func HealthCheck(service, version string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return SuccessResponse(c, HealthResponse{
			Status:    "ok",
			Service:   service,
			Version:   version,
			Timestamp: Timestamp(Now()),
		})
	}
}
