package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FailureClass buckets an outbound-call failure for retry and circuit
// decisions.
type FailureClass string

const (
	FailureNetwork     FailureClass = "network"
	FailureTimeout     FailureClass = "timeout"
	FailureRateLimit   FailureClass = "rate_limit"
	FailureServerError FailureClass = "server_error"
	FailureAuth        FailureClass = "auth"
	FailureClientError FailureClass = "client_error"
)

// Retryable reports whether a failure of this class is worth retrying.
// Auth and client errors will fail the same way on every attempt.
func (c FailureClass) Retryable() bool {
	switch c {
	case FailureNetwork, FailureTimeout, FailureRateLimit, FailureServerError:
		return true
	default:
		return false
	}
}

// HTTPError carries the status code of a failed transport call so the
// failure can be classified.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("http status %d", e.StatusCode)
}

// Classify buckets an error into a failure class. Unknown errors are
// treated as network failures, the retryable default for outbound calls.
func Classify(err error) FailureClass {
	if err == nil {
		return FailureNetwork
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 429:
			return FailureRateLimit
		case httpErr.StatusCode >= 500:
			return FailureServerError
		case httpErr.StatusCode == 401 || httpErr.StatusCode == 403:
			return FailureAuth
		case httpErr.StatusCode >= 400:
			return FailureClientError
		default:
			return FailureServerError
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return FailureTimeout
		}
		return FailureNetwork
	}

	return FailureNetwork
}
