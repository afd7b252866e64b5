package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/scout/pkg/types"
)

// NoSuchToolError is returned when the model asks for a tool that is not registered.
type NoSuchToolError struct {
	Name string
}

func (e *NoSuchToolError) Error() string {
	return fmt.Sprintf("no such tool: %q", e.Name)
}

func (e *NoSuchToolError) ToolErrorKind() types.ToolErrorKind {
	return types.ToolErrorValidation
}

// InvalidToolInputError is returned when arguments do not satisfy a tool's
// schema. The handler is never called in that case.
type InvalidToolInputError struct {
	Tool        string
	Raw         json.RawMessage
	Diagnostics []string
}

func (e *InvalidToolInputError) Error() string {
	msg := fmt.Sprintf("invalid input for %s", e.Tool)
	if len(e.Diagnostics) > 0 {
		msg += ": " + strings.Join(e.Diagnostics, "; ")
	}
	return msg
}

func (e *InvalidToolInputError) ToolErrorKind() types.ToolErrorKind {
	return types.ToolErrorValidation
}

// PanicError reports a tool handler that panicked.
type PanicError struct {
	Value interface{}
	Tool  string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("tool %s panicked: %v", e.Tool, e.Value)
}

// kinded is implemented by errors that know how they should be reported to
// the model.
type kinded interface {
	ToolErrorKind() types.ToolErrorKind
}

// Classify returns the tool error kind for err. Errors that do not classify
// themselves are internal.
func Classify(err error) types.ToolErrorKind {
	var k kinded
	if errors.As(err, &k) {
		return k.ToolErrorKind()
	}
	return types.ToolErrorInternal
}

// AsToolCallError converts err into the structured error recorded on a tool call.
func AsToolCallError(err error) *types.ToolCallError {
	return &types.ToolCallError{Kind: Classify(err), Message: err.Error()}
}
