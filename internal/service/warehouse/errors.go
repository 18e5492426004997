package warehouse

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"

	xhttp "Indicium/pkg/http"
)

var (
	// ErrUpstreamTimeout means the warehouse accepted the query but did not finish it in time.
	ErrUpstreamTimeout = errors.New("query job did not complete within timeout")
	// ErrNoData means the query succeeded with zero rows.
	ErrNoData = errors.New("no data returned from warehouse")
)

// UpstreamError wraps every failure of a warehouse call.
type UpstreamError struct {
	Op        string // credentials, sign, token, query, decode
	Retryable bool
	Err       error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("warehouse %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func upstream(op string, err error) *UpstreamError {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue
	}
	return &UpstreamError{Op: op, Retryable: IsRetryable(err), Err: err}
}

func isUnauthorized(err error) bool {
	var se *xhttp.StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized
}

// IsRetryable reports whether err is a transient network or quota failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Retryable
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsNotFound || dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var se *xhttp.StatusError
	if errors.As(err, &se) {
		if se.StatusCode == 429 || se.StatusCode >= 500 {
			return true
		}
	}

	msg := err.Error()
	for _, s := range []string{"ECONNRESET", "ETIMEDOUT", "ENOTFOUND", "EAI_AGAIN", "Rate limit exceeded"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
