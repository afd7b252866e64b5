package workspace

import (
	"errors"
	"fmt"

	"github.com/entrhq/scout/pkg/types"
)

var (
	ErrNoWorkingDirectory = errors.New("no working directory set")
	ErrOutsideRoot        = errors.New("path escapes the working directory")
	ErrNotFound           = errors.New("path not found")
	ErrNotAFile           = errors.New("not a file")
	ErrNotADirectory      = errors.New("not a directory")
	ErrTooLarge           = errors.New("file too large")
	ErrDenied             = errors.New("path is protected")
	ErrEmptyPath          = errors.New("path cannot be empty")
)

// ResourceError describes a failed sandbox operation. It wraps one of the
// sentinel errors above so callers can match with errors.Is.
type ResourceError struct {
	Err    error
	Op     string
	Path   string
	Detail string
}

func (e *ResourceError) Error() string {
	msg := e.Err.Error()
	if e.Path != "" {
		msg = fmt.Sprintf("%s %q: %s", e.Op, e.Path, msg)
	} else if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// ToolErrorKind classifies sandbox failures as resource errors.
func (e *ResourceError) ToolErrorKind() types.ToolErrorKind {
	return types.ToolErrorResource
}

func resourceErr(op, path string, err error) *ResourceError {
	return &ResourceError{Op: op, Path: path, Err: err}
}
