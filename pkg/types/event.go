package types

import "time"

// EventType defines the type of event delivered for a request.
type EventType string

const (
	EventTypeStart EventType = "start" // EventTypeStart indicates a request has been accepted and its session started.
	EventTypeChunk EventType = "chunk" // EventTypeChunk indicates a text delta produced by the model.
	EventTypeEnd   EventType = "end"   // EventTypeEnd indicates the session finished with a response.
	EventTypeError EventType = "error" // EventTypeError indicates the session failed.
)

// ActionAnswer is the only action carried by a final response.
const ActionAnswer = "answer"

// Response is the final payload of a session, delivered with the end event.
type Response struct {
	// Action is always ActionAnswer.
	Action string `json:"action"`

	// Content is the text the model produced over the whole session.
	Content string `json:"content"`

	// URL is the browser's current URL when the session finished.
	URL string `json:"url"`
}

// NewAnswer creates an answer response.
func NewAnswer(content, url string) *Response {
	return &Response{
		Action:  ActionAnswer,
		Content: content,
		URL:     url,
	}
}

// StreamEvent is the tagged union carried by the streaming bridge.
// Every event names the request it belongs to.
type StreamEvent struct {
	// Metadata holds optional additional information about the event.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Response is set on end events.
	Response *Response `json:"response,omitempty"`

	// Timestamp is when the event was created.
	Timestamp time.Time `json:"timestamp"`

	// ID is a sortable identifier assigned by the bridge on emission.
	ID string `json:"id,omitempty"`

	// RequestID correlates the event with the originating request.
	RequestID string `json:"requestId"`

	// Type indicates the kind of event.
	Type EventType `json:"type"`

	// Delta is the text fragment carried by chunk events.
	Delta string `json:"delta,omitempty"`

	// Message is the user-safe failure description carried by error events.
	Message string `json:"message,omitempty"`
}

// NewStartEvent creates a start event.
func NewStartEvent(requestID string) *StreamEvent {
	return &StreamEvent{
		Type:      EventTypeStart,
		RequestID: requestID,
		Timestamp: time.Now(),
		Metadata:  make(map[string]interface{}),
	}
}

// NewChunkEvent creates a chunk event carrying a text delta.
func NewChunkEvent(requestID, delta string) *StreamEvent {
	return &StreamEvent{
		Type:      EventTypeChunk,
		RequestID: requestID,
		Delta:     delta,
		Timestamp: time.Now(),
		Metadata:  make(map[string]interface{}),
	}
}

// NewEndEvent creates an end event carrying the final response.
func NewEndEvent(requestID string, response *Response) *StreamEvent {
	return &StreamEvent{
		Type:      EventTypeEnd,
		RequestID: requestID,
		Response:  response,
		Timestamp: time.Now(),
		Metadata:  make(map[string]interface{}),
	}
}

// NewErrorEvent creates an error event. The message is shown to the user as is.
func NewErrorEvent(requestID, message string) *StreamEvent {
	return &StreamEvent{
		Type:      EventTypeError,
		RequestID: requestID,
		Message:   message,
		Timestamp: time.Now(),
		Metadata:  make(map[string]interface{}),
	}
}

// WithMetadata adds metadata to the event and returns the event for chaining.
func (e *StreamEvent) WithMetadata(key string, value interface{}) *StreamEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// IsStartEvent returns true if this is a start event.
func (e *StreamEvent) IsStartEvent() bool {
	return e.Type == EventTypeStart
}

// IsChunkEvent returns true if this is a chunk event.
func (e *StreamEvent) IsChunkEvent() bool {
	return e.Type == EventTypeChunk
}

// IsTerminal returns true for end and error events. Nothing is delivered
// for a request after its terminal event.
func (e *StreamEvent) IsTerminal() bool {
	return e.Type == EventTypeEnd || e.Type == EventTypeError
}
