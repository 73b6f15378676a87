package message

import (
	"errors"
	"fmt"
)

// ErrResourceUnavailable indicates a referenced file could not be read.
var ErrResourceUnavailable = errors.New("resource unavailable")

// ResourceError reports the path that could not be read. It matches both
// ErrResourceUnavailable and the underlying I/O error with errors.Is.
type ResourceError struct {
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource unavailable: %s: %v", e.Path, e.Err)
}

func (e *ResourceError) Unwrap() []error {
	return []error{ErrResourceUnavailable, e.Err}
}
