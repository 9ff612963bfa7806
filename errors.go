package storekit

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Adapters translate every backend-native failure
// into one of these before it crosses the Backend boundary, so callers
// can branch with errors.Is regardless of which backend served the
// request.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrPermission    = errors.New("permission denied")
	ErrInvalidPath   = errors.New("invalid path")
	ErrNotSupported  = errors.New("capability not supported")
	ErrUnavailable   = errors.New("backend unavailable")
)

// Invalid-path causes. Each wraps ErrInvalidPath so errors.Is matching
// keeps working while messages stay specific.
var (
	errEmptyPath     = fmt.Errorf("%w: path is empty after normalization", ErrInvalidPath)
	errParentSegment = fmt.Errorf("%w: parent traversal ('..') is not allowed", ErrInvalidPath)
	errNulByte       = fmt.Errorf("%w: path contains a null byte", ErrInvalidPath)
	errOutsideRoot   = fmt.Errorf("%w: path escapes the storage root", ErrInvalidPath)
	errDeleteRoot    = fmt.Errorf("%w: refusing to delete the store root", ErrInvalidPath)
)

// Error records a failed storage operation together with the path and
// backend it was issued against. Capability is set only for
// ErrNotSupported failures and names the missing capability.
type Error struct {
	Op         string
	Path       string
	Backend    string
	Capability Capability
	Err        error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	if e.Path == "" {
		msg = fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Backend != "" {
		msg += fmt.Sprintf(" (backend=%s)", e.Backend)
	}
	if e.Capability != "" {
		msg += fmt.Sprintf(" (capability=%s)", e.Capability)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether an error indicates that a file or folder
// does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists reports whether an error indicates that a file
// already exists
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsPermission reports whether an error indicates that permission is
// denied
func IsPermission(err error) bool {
	return errors.Is(err, ErrPermission)
}

// IsInvalidPath reports whether an error indicates a path that failed
// validation
func IsInvalidPath(err error) bool {
	return errors.Is(err, ErrInvalidPath)
}

// IsNotSupported reports whether an error indicates an operation the
// backend does not support
func IsNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}

// IsUnavailable reports whether an error indicates the backend could
// not be reached
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
