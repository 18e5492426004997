package http

import (
	"fmt"
	"net/http"
)

// Error codes shared by every endpoint.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeInvalidFormat    = "INVALID_FORMAT"
	CodeCacheEmpty       = "CACHE_EMPTY"
)

// InternalMessage is the only message a client sees for unexpected failures.
const InternalMessage = "An unexpected error occurred. Please try again later."

// AppError represents application-level error with HTTP status.
// Params are flattened into the error body next to code and message.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Params  map[string]interface{} `json:"-"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error.
func NewAppError(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Params:  make(map[string]interface{}),
	}
}

// WithParam sets a single error param.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

// WithRetryAfter adds retry_after seconds to the body.
func (e *AppError) WithRetryAfter(seconds int) *AppError {
	return e.WithParam("retry_after", seconds)
}

// WithError wraps an underlying error. It is logged, never rendered.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// NotFoundError creates a 404 error.
func NotFoundError(message string) *AppError {
	return NewAppError(CodeNotFound, message, http.StatusNotFound)
}

// MethodNotAllowedError creates a 405 error.
func MethodNotAllowedError(message string) *AppError {
	return NewAppError(CodeMethodNotAllowed, message, http.StatusMethodNotAllowed)
}

// BadRequestError creates a 400 error.
func BadRequestError(code, message string) *AppError {
	return NewAppError(code, message, http.StatusBadRequest)
}

// UnauthorizedError creates a 401 error.
func UnauthorizedError(code, message string) *AppError {
	return NewAppError(code, message, http.StatusUnauthorized)
}

// TooManyRequestsError creates a 429 error carrying retry_after.
func TooManyRequestsError(code, message string, retryAfter int) *AppError {
	return NewAppError(code, message, http.StatusTooManyRequests).WithRetryAfter(retryAfter)
}

// ServiceUnavailableError creates a 503 error.
func ServiceUnavailableError(code, message string) *AppError {
	return NewAppError(code, message, http.StatusServiceUnavailable)
}

// InternalError creates a 500 error with the generic client message.
func InternalError(err error) *AppError {
	return NewAppError(CodeInternal, InternalMessage, http.StatusInternalServerError).WithError(err)
}
