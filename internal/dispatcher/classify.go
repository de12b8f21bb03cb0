package dispatcher

import (
	"context"
	"errors"
	"net"
	"strings"
)

// statusCoder is satisfied by HTTPError and by AWS SDK response errors.
type statusCoder interface {
	HTTPStatusCode() int
}

// isTransientError checks if a delivery error is worth another attempt
func isTransientError(err error) bool {
	if err == nil || isFatalError(err) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatusCode()
		return code == 408 || code == 429 || (code >= 500 && code < 600)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Network errors (connection issues, timeouts)
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "slowdown") ||
		strings.Contains(errStr, "eof") {
		return true
	}

	return false
}

// isFatalError checks if error is fatal and should not be retried
func isFatalError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return true
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return true
	}

	// HTTP 4xx errors (except 408 and 429)
	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatusCode()
		if code >= 400 && code < 500 && code != 429 && code != 408 {
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "access denied") ||
		strings.Contains(errStr, "no such bucket") ||
		strings.Contains(errStr, "permission denied")
}
