package remote

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by errors.Is for missing objects.
var ErrNotFound = errors.New("object not found")

// Error describes a failed store operation. Callers should prefer
// IsNotFound over asserting on this type directly.
type Error struct {
	operation string
	key       string
	notFound  bool
	err       error
}

func (e *Error) Error() string {
	if e.key == "" {
		return fmt.Sprintf("%s: %v", e.operation, e.err)
	}
	return fmt.Sprintf("%s %q: %v", e.operation, e.key, e.err)
}

func (e *Error) Unwrap() error { return e.err }

// Is makes errors.Is(err, ErrNotFound) work for store errors.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.notFound
}

// Operation returns the store call that failed (list, get, presign).
func (e *Error) Operation() string { return e.operation }

// Key returns the object key or list prefix involved.
func (e *Error) Key() string { return e.key }

func newError(operation, key string, notFound bool, err error) *Error {
	return &Error{operation: operation, key: key, notFound: notFound, err: err}
}

// IsNotFound reports whether err means the object does not exist.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsTransport reports whether err is a store failure other than a missing object.
func IsTransport(err error) bool {
	var e *Error
	return errors.As(err, &e) && !e.notFound
}
