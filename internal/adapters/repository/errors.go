package repository

import (
	"errors"
	"fmt"
)

// Sentinel kinds for store errors.
var (
	ErrWriteFailed = errors.New("store write failed")
	ErrClosed      = errors.New("store closed")
)

// WriteError reports a failed append to a collection.
type WriteError struct {
	Collection string
	Err        error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrWriteFailed, e.Collection, e.Err)
}

// Unwrap exposes ErrWriteFailed and the cause.
func (e *WriteError) Unwrap() []error {
	return []error{ErrWriteFailed, e.Err}
}
