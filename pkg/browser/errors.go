package browser

import (
	"errors"
	"fmt"

	"github.com/entrhq/scout/pkg/types"
)

// ErrInvalidURL is wrapped by NavigationError when the input cannot be turned into a web URL.
var ErrInvalidURL = errors.New("invalid URL")

// NavigationError reports a page that failed to load.
type NavigationError struct {
	Err error
	URL string
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// ToolErrorKind classifies navigation failures.
func (e *NavigationError) ToolErrorKind() types.ToolErrorKind {
	return types.ToolErrorNavigation
}
