package secrets

import "errors"

// ErrUnavailable is returned when no usable secret could be resolved.
var ErrUnavailable = errors.New("secret unavailable")
