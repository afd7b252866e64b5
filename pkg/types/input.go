package types

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrEmptyQuery is returned when a run request carries no query text.
var ErrEmptyQuery = errors.New("query cannot be empty")

// RunRequest asks for one agent session. It is the payload of the runQuery channel.
type RunRequest struct {
	// Query is the user's prompt.
	Query string `json:"query"`

	// RequestID scopes every event of the session. Generated when empty.
	RequestID string `json:"requestId"`
}

// NewRunRequest creates a run request with a freshly generated request id.
func NewRunRequest(query string) *RunRequest {
	return &RunRequest{
		Query:     query,
		RequestID: uuid.NewString(),
	}
}

// Normalize trims the query, fills in a missing request id and validates the request.
func (r *RunRequest) Normalize() error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return ErrEmptyQuery
	}
	r.RequestID = strings.TrimSpace(r.RequestID)
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
	return nil
}
