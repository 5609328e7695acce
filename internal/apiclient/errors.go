package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports bad local input. It is returned before any
// network call is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransportError reports a non-success HTTP status or a network failure.
// StatusCode is 0 when no response was received.
type TransportError struct {
	Op         string
	StatusCode int
	Status     string
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s failed: %s (%s)", e.Op, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %s: %v", e.Op, e.Status, e.Err)
	default:
		return fmt.Sprintf("%s failed: %s", e.Op, e.Status)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsUnknownSession reports whether err means the service no longer knows
// the session (closed or expired server-side). Local state for that
// session must be discarded.
func IsUnknownSession(err error) bool {
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	return te.StatusCode == http.StatusNotFound || te.StatusCode == http.StatusGone
}

// IsRetriable reports whether a failed call may succeed if repeated:
// network failures and transient server statuses.
func IsRetriable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	switch te.StatusCode {
	case 0:
		// The caller gave up; repeating cannot help.
		return !errors.Is(te.Err, context.Canceled) && !errors.Is(te.Err, context.DeadlineExceeded)
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
