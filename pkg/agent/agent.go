// Package agent runs agent sessions: a user prompt becomes a loop of model
// calls and tool invocations whose text is streamed to an Emitter.
//
//	m := agent.NewManager(provider, registry, controller, bridge)
//	err := m.Start(ctx, "Summarize example.com", requestID)
//
// Every started session emits one start event, then chunk events, then exactly
// one end or error event, unless it is cancelled by its owner. Sessions are
// keyed by request id and run concurrently.
package agent

import (
	"context"
	"errors"

	"github.com/entrhq/scout/pkg/types"
)

var (
	// ErrDuplicateRequest is returned when a request id already has an active session.
	ErrDuplicateRequest = errors.New("request id already has an active session")

	// ErrEmptyRequestID is returned when a session is started without a request id.
	ErrEmptyRequestID = errors.New("request id cannot be empty")

	// ErrUnknownRequest is returned when no active session has the request id.
	ErrUnknownRequest = errors.New("no active session for request id")

	// ErrCancelled is returned by Run when the session was cancelled.
	ErrCancelled = errors.New("session cancelled")
)

// genericFailureMessage is shown for failures that are not the model provider's.
const genericFailureMessage = "Something went wrong while handling your request. Please try again."

// SessionError is the failure that ended a session with an error event.
type SessionError struct {
	Err       error
	RequestID string
	// Message is the text emitted to the user.
	Message string
}

func (e *SessionError) Error() string {
	return "session " + e.RequestID + " failed: " + e.Err.Error()
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// Emitter receives the events of every session.
type Emitter interface {
	EmitStart(requestID string)
	EmitChunk(requestID, delta string)
	EmitEnd(requestID string, response *types.Response)
	EmitError(requestID, message string)

	// Abandon drops everything still queued for requestID. It is called when
	// a session is cancelled.
	Abandon(requestID string)
}

// Browser is the shared browser as seen by the manager: a lease sessions hold
// while they use browser tools, and the URL reported with the final answer.
type Browser interface {
	Acquire(ctx context.Context, holder string) error
	Release(holder string)
	CurrentURL(ctx context.Context) string
}

// Workspace reports the working directory, if one is set.
type Workspace interface {
	Root() (string, bool)
}
