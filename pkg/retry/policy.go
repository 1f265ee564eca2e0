// Package retry implements the bounded exponential backoff wrapped around
// completion requests.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
)

const (
	// DefaultMaxAttempts is the total number of attempts, first one included.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the wait after the first failed attempt.
	DefaultBaseDelay = 500 * time.Millisecond
)

// Policy decides whether a failed attempt is re-issued and how long to wait
// before it. The delay after failed attempt k (0-based) is BaseDelay·2^k.
// A Policy is read-only configuration and may be shared between calls.
type Policy struct {
	// MaxAttempts is the total attempt budget, first attempt included. It
	// must be at least 1.
	MaxAttempts int

	// BaseDelay is the backoff unit.
	BaseDelay time.Duration

	// MaxDelay caps a single delay when positive.
	MaxDelay time.Duration

	// Retryable classifies errors. Nil means IsTransient.
	Retryable func(error) bool
}

// DefaultPolicy returns three attempts with a 500ms base delay.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
	}
}

// Validate reports a policy whose attempt budget is below 1.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1, got %d", ErrInvalidPolicy, p.MaxAttempts)
	}
	return nil
}

// DelayFor returns the wait after failed attempt (0-based). It never
// decreases as attempt grows and saturates instead of overflowing.
func (p Policy) DelayFor(attempt int) time.Duration {
	if attempt < 0 || p.BaseDelay <= 0 {
		return 0
	}

	var d time.Duration
	if attempt >= 62 || p.BaseDelay > time.Duration(math.MaxInt64>>attempt) {
		d = time.Duration(math.MaxInt64)
	} else {
		d = p.BaseDelay << attempt
	}

	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// IsRetryable reports whether err belongs to the retryable class. Context
// cancellation and deadline errors never are.
func (p Policy) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsTransient(err)
}

// ShouldRetry reports whether failed attempt (0-based) may be followed by
// another one.
func (p Policy) ShouldRetry(attempt int, err error) bool {
	return attempt+1 < p.MaxAttempts && p.IsRetryable(err)
}

// Transient is implemented by errors that a later attempt may not hit.
type Transient interface {
	error
	Transient() bool
}

// IsTransient reports whether any error in err's chain reports itself as
// transient.
func IsTransient(err error) bool {
	var t Transient
	return errors.As(err, &t) && t.Transient()
}

// StatusCoder is implemented by errors that carry an HTTP status code.
// Status 0 means no response was received.
type StatusCoder interface {
	error
	StatusCode() int
}

// RetryableStatus is a stricter classifier than IsTransient: connection
// failures, 408, 429 and 5xx are retried; every other status is final.
func RetryableStatus(err error) bool {
	var sc StatusCoder
	if !errors.As(err, &sc) {
		return false
	}
	switch code := sc.StatusCode(); {
	case code == 0:
		return true
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}
