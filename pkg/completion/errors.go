package completion

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamConsumed is yielded when a stream sequence is ranged over a
	// second time.
	ErrStreamConsumed = errors.New("completion stream already consumed")

	// ErrMalformedResponse is returned when a non-streaming reply is not a
	// chat completion.
	ErrMalformedResponse = errors.New("malformed completion response")
)

// ConfigError is returned by client constructors for missing or invalid
// configuration. It never occurs during a call.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("completion config: %s: %s", e.Field, e.Reason)
}
