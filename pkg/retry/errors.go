package retry

import (
	"errors"
	"fmt"
)

var (
	// ErrExhausted matches every *ExhaustedError with errors.Is.
	ErrExhausted = errors.New("retries exhausted")

	// ErrInvalidPolicy is returned for a policy that cannot run.
	ErrInvalidPolicy = errors.New("invalid retry policy")
)

// ExhaustedError is returned when every attempt of a call failed with a
// retryable error. Cause is the error of the last attempt.
type ExhaustedError struct {
	Attempts int
	Cause    error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Cause
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}
