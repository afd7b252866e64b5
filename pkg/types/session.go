package types

import (
	"encoding/json"
	"fmt"
)

// SessionStatus is the state of an agent session.
type SessionStatus string

const (
	StatusIdle           SessionStatus = "idle"
	StatusStreaming      SessionStatus = "streaming"
	StatusExecutingTools SessionStatus = "executing_tools"
	StatusDone           SessionStatus = "done"
	StatusError          SessionStatus = "error"
)

// IsTerminal reports whether no further transition is possible.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusError
}

// CanTransition reports whether moving from s to next is allowed.
// Idle → Streaming ⇄ ExecutingTools → Done, and Error from any non-terminal state.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusError {
		return true
	}
	switch s {
	case StatusIdle:
		return next == StatusStreaming
	case StatusStreaming:
		return next == StatusExecutingTools || next == StatusDone
	case StatusExecutingTools:
		// Done is reached from here when the step cap cuts the loop short.
		return next == StatusStreaming || next == StatusDone
	}
	return false
}

// ToolErrorKind classifies recoverable tool failures.
type ToolErrorKind string

const (
	ToolErrorValidation ToolErrorKind = "validation"
	ToolErrorResource   ToolErrorKind = "resource"
	ToolErrorNavigation ToolErrorKind = "navigation"
	ToolErrorInternal   ToolErrorKind = "internal"
)

// ToolCallError is the failure recorded on a tool call.
type ToolCallError struct {
	Kind    ToolErrorKind `json:"kind"`
	Message string        `json:"message"`
}

func (e *ToolCallError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// ToolCall is one executed tool invocation. Exactly one of Output and Error is
// set once the executor has finished with it.
type ToolCall struct {
	Input    json.RawMessage `json:"input"`
	Output   *string         `json:"output,omitempty"`
	Error    *ToolCallError  `json:"error,omitempty"`
	ID       string          `json:"id"`
	ToolName string          `json:"toolName"`
}

// Complete records a successful result.
func (c *ToolCall) Complete(output string) {
	c.Output = &output
	c.Error = nil
}

// Fail records a failed result.
func (c *ToolCall) Fail(kind ToolErrorKind, message string) {
	c.Error = &ToolCallError{Kind: kind, Message: message}
	c.Output = nil
}

// Finished reports whether exactly one of output and error is present.
func (c *ToolCall) Finished() bool {
	return (c.Output != nil) != (c.Error != nil)
}

// Step is one iteration of the agent loop. Steps are immutable once appended
// to a session's history.
type Step struct {
	ToolCalls []ToolCall `json:"toolCalls"`
	TextDelta string     `json:"textDelta"`
	Index     int        `json:"index"`
}

// SessionSnapshot is a read-only copy of a session's state.
type SessionSnapshot struct {
	RequestID       string        `json:"requestId"`
	Prompt          string        `json:"prompt"`
	Status          SessionStatus `json:"status"`
	AccumulatedText string        `json:"accumulatedText"`
	Steps           []Step        `json:"steps"`
	StepCount       int           `json:"stepCount"`
}
