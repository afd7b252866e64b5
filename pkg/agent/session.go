package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/entrhq/scout/pkg/types"
)

// session is the state of one request. Only the goroutine running the session
// mutates it; snapshot may be called from anywhere.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc

	history []*types.Message
	steps   []types.Step
	text    strings.Builder

	requestID string
	prompt    string
	status    types.SessionStatus

	leased    atomic.Bool
	cancelled atomic.Bool
	mu        sync.Mutex
}

func newSession(ctx context.Context, prompt, requestID string) *session {
	ctx, cancel := context.WithCancel(ctx)
	return &session{
		ctx:       ctx,
		cancel:    cancel,
		history:   []*types.Message{types.NewUserMessage(prompt)},
		requestID: requestID,
		prompt:    prompt,
		status:    types.StatusIdle,
	}
}

func (s *session) transition(next types.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.CanTransition(next) {
		return fmt.Errorf("invalid session transition %s -> %s", s.status, next)
	}
	s.status = next
	return nil
}

func (s *session) currentStatus() types.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *session) appendText(delta string) {
	s.mu.Lock()
	s.text.WriteString(delta)
	s.mu.Unlock()
}

func (s *session) accumulatedText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

func (s *session) appendStep(step types.Step) {
	s.mu.Lock()
	s.steps = append(s.steps, step)
	s.mu.Unlock()
}

func (s *session) addMessages(msgs ...*types.Message) {
	s.mu.Lock()
	s.history = append(s.history, msgs...)
	s.mu.Unlock()
}

func (s *session) messages() []*types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.Message(nil), s.history...)
}

func (s *session) isCancelled() bool {
	return s.cancelled.Load()
}

func (s *session) snapshot() types.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps := make([]types.Step, len(s.steps))
	copy(steps, s.steps)
	return types.SessionSnapshot{
		RequestID:       s.requestID,
		Prompt:          s.prompt,
		Status:          s.status,
		AccumulatedText: s.text.String(),
		Steps:           steps,
		StepCount:       len(steps),
	}
}
