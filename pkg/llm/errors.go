package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ModelError is an upstream model failure. It ends the session it occurs in.
type ModelError struct {
	Err        error
	Provider   string
	StatusCode int
}

func (e *ModelError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth retrying.
func (e *ModelError) Retryable() bool {
	if errors.Is(e.Err, context.Canceled) || errors.Is(e.Err, context.DeadlineExceeded) {
		return false
	}
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// UserMessage is a description of the failure that is safe to show to users.
func (e *ModelError) UserMessage() string {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return "The model provider rejected the API key."
	case e.StatusCode == http.StatusTooManyRequests:
		return "The model provider is rate limiting requests. Please try again shortly."
	case e.StatusCode >= 500:
		return "The model provider is currently unavailable. Please try again."
	case e.StatusCode >= 400:
		return "The model provider rejected the request."
	}
	return "Could not reach the model provider."
}
