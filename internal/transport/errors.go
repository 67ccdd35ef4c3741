package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError is a failed exchange: connection failure, non-2xx status or
// a body that is not the expected JSON.
type TransportError struct {
	Operation  string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err == nil:
		return fmt.Sprintf("%s: http %d: %s", e.Operation, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: http %d: %v", e.Operation, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether sending the same request again may succeed.
// Client errors other than 408 and 429 are permanent.
func (e *TransportError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	case e.StatusCode >= 200 && e.StatusCode < 300:
		// Malformed body from a successful call; the service may recover.
		return true
	default:
		return false
	}
}

// ProtocolError is a well-formed response that breaks the protocol contract.
// It is never retried.
type ProtocolError struct {
	Operation string
	Reason    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: protocol mismatch: %s", e.Operation, e.Reason)
}

// IsRetryable reports whether err is a retryable transport failure.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Retryable()
}
