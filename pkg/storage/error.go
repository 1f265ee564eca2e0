package storage

import "errors"

// ErrNilTurn is returned when Insert is called without a turn.
var ErrNilTurn = errors.New("cannot store nil turn")

// NotFoundError is returned when a turn doesn't exist in the store.
type NotFoundError struct {
	Key string
}

func (e NotFoundError) Error() string {
	if e.Key == "" {
		return "turn not found"
	}

	return "turn not found: " + e.Key
}
