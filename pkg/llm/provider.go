// Package llm provides abstractions for LLM provider integration.
//
// Providers stream a single model turn: text deltas as they are generated,
// then a final chunk carrying the tool calls the model requested.
//
// Example usage:
//
//	stream, err := provider.StreamCompletion(ctx, &llm.Request{
//	    Messages: []*types.Message{types.NewUserMessage("Hello!")},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for chunk := range stream {
//	    if chunk.IsError() {
//	        log.Fatal(chunk.Error)
//	    }
//	    fmt.Print(chunk.Content)
//	}
package llm

import (
	"context"

	"github.com/entrhq/scout/pkg/types"
)

// Provider defines the interface for LLM integrations.
//
// Providers handle API communication with LLM services and return simple
// StreamChunk instances. Converting chunks into session events and running
// tools is the agent's job.
type Provider interface {
	// StreamCompletion sends the conversation to the LLM and streams back
	// response chunks.
	//
	// The returned channel emits StreamChunk instances:
	// - Chunks with Content carry text deltas in generation order
	// - The final chunk has Finished=true and carries requested tool calls
	// - Error chunks have Error set and are always the last chunk
	//
	// The channel is closed when streaming completes or an error occurs.
	// Callers should continue reading until the channel is closed.
	//
	// Returns an error only if streaming cannot be initiated after the
	// provider's own bounded retries. Such errors are *ModelError.
	StreamCompletion(ctx context.Context, req *Request) (<-chan *StreamChunk, error)

	// Name returns the provider identifier, e.g. "openai".
	Name() string

	// GetModel returns the model name being used.
	GetModel() string
}

// Request is one model turn.
type Request struct {
	Messages []*types.Message
	Tools    []types.ToolDefinition
}

// Usage reports token counts for one model turn, when the provider knows them.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// StreamChunk is one piece of a streamed model turn.
type StreamChunk struct {
	Error     error
	Usage     *Usage
	Content   string
	ToolCalls []types.ToolCallRequest
	Finished  bool
}

// IsError reports whether the chunk carries a stream failure.
func (c *StreamChunk) IsError() bool {
	return c.Error != nil
}

// Response is a fully collected model turn.
type Response struct {
	Usage     *Usage
	Content   string
	ToolCalls []types.ToolCallRequest
}

// Collect drains stream, calling onDelta for every text delta in order, and
// returns the assembled turn. It stops at the first error chunk.
func Collect(stream <-chan *StreamChunk, onDelta func(string) error) (*Response, error) {
	resp := &Response{}
	var content []byte
	for chunk := range stream {
		if chunk.IsError() {
			// Drain so the producer can exit.
			for range stream {
			}
			return nil, chunk.Error
		}
		if chunk.Content != "" {
			content = append(content, chunk.Content...)
			if onDelta != nil {
				if err := onDelta(chunk.Content); err != nil {
					for range stream {
					}
					return nil, err
				}
			}
		}
		if chunk.Finished {
			resp.ToolCalls = chunk.ToolCalls
			if chunk.Usage != nil {
				resp.Usage = chunk.Usage
			}
		}
	}
	resp.Content = string(content)
	return resp, nil
}
