package store

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable wraps fatal I/O failures opening or writing the
// backing store. Callers treat it as non-recoverable for the operation.
var ErrStoreUnavailable = errors.New("store unavailable")

// ValidationError rejects a request before any write happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
