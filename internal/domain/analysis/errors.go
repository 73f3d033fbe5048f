package analysis

import (
	"errors"
	"fmt"
)

// Failure kinds. Use errors.Is against these to tell them apart.
var (
	ErrTransport         = errors.New("analysis transport failure")
	ErrMalformedResponse = errors.New("analysis malformed response")
)

// Error is a typed analysis failure carrying its kind and underlying cause.
type Error struct {
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func transportError(err error) error {
	return &Error{Kind: ErrTransport, Err: err}
}

func malformedError(err error) error {
	return &Error{Kind: ErrMalformedResponse, Err: err}
}

// KindOf returns a short label for err, used in metrics and logs.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	default:
		return "unknown"
	}
}
