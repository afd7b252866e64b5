// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/entrhq/scout/pkg/llm"
	"github.com/entrhq/scout/pkg/types"
)

// ErrScriptExhausted is returned when more turns are requested than scripted.
var ErrScriptExhausted = errors.New("llmtest: no more scripted turns")

// Turn scripts one model response.
type Turn struct {
	// Err is returned from StreamCompletion instead of a stream.
	Err error
	// StreamErr is sent as an error chunk after Deltas.
	StreamErr error
	// Gate, when set, blocks StreamCompletion until it is closed or ctx is done.
	Gate      <-chan struct{}
	Deltas    []string
	ToolCalls []types.ToolCallRequest
}

// Provider replays scripted turns in order. When the script runs out, Repeat
// is used if set.
type Provider struct {
	Repeat   *Turn
	turns    []Turn
	requests []llm.Request
	mu       sync.Mutex
}

// New creates a provider that replays turns.
func New(turns ...Turn) *Provider {
	return &Provider{turns: turns}
}

// Push appends turns to the script.
func (p *Provider) Push(turns ...Turn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns = append(p.turns, turns...)
}

func (p *Provider) Name() string     { return "llmtest" }
func (p *Provider) GetModel() string { return "scripted" }

// StreamCompletion records the request and plays the next turn.
func (p *Provider) StreamCompletion(ctx context.Context, req *llm.Request) (<-chan *llm.StreamChunk, error) {
	p.mu.Lock()
	snapshot := llm.Request{
		Messages: append([]*types.Message(nil), req.Messages...),
		Tools:    append([]types.ToolDefinition(nil), req.Tools...),
	}
	p.requests = append(p.requests, snapshot)

	var turn Turn
	switch {
	case len(p.turns) > 0:
		turn = p.turns[0]
		p.turns = p.turns[1:]
	case p.Repeat != nil:
		turn = *p.Repeat
	default:
		p.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	p.mu.Unlock()

	if turn.Gate != nil {
		select {
		case <-turn.Gate:
		case <-ctx.Done():
			return nil, &llm.ModelError{Provider: "llmtest", Err: ctx.Err()}
		}
	}
	if turn.Err != nil {
		return nil, turn.Err
	}

	chunks := make(chan *llm.StreamChunk, len(turn.Deltas)+1)
	for _, d := range turn.Deltas {
		chunks <- &llm.StreamChunk{Content: d}
	}
	if turn.StreamErr != nil {
		chunks <- &llm.StreamChunk{Error: turn.StreamErr}
	} else {
		chunks <- &llm.StreamChunk{Finished: true, ToolCalls: turn.ToolCalls}
	}
	close(chunks)
	return chunks, nil
}

// Requests returns the requests received so far.
func (p *Provider) Requests() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.Request(nil), p.requests...)
}

// Calls returns how many turns have been requested.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Call is a convenience constructor for a tool call request.
func Call(id, name, arguments string) types.ToolCallRequest {
	return types.ToolCallRequest{ID: id, Name: name, Arguments: []byte(arguments)}
}
