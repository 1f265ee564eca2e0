package transport

import (
	"errors"
	"fmt"
)

// ErrSessionClosed is returned by Read after Close.
var ErrSessionClosed = errors.New("session closed")

// TransportError is a connection failure, timeout, read failure or non-2xx
// response. Status is 0 when no response arrived.
type TransportError struct {
	Status int
	Body   string
	Cause  error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("transport: status %d: %s", e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("transport: status %d", e.Status)
	case e.Cause != nil:
		return fmt.Sprintf("transport: %v", e.Cause)
	default:
		return "transport: unknown failure"
	}
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// StatusCode returns the HTTP status of the failed response, or 0.
func (e *TransportError) StatusCode() int {
	return e.Status
}

// Transient reports that a later attempt may succeed. Every transport
// failure is considered transient; callers wanting a narrower set pass
// retry.RetryableStatus as the policy classifier.
func (e *TransportError) Transient() bool {
	return true
}
