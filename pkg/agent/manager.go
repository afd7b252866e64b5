package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/llm"
	"github.com/entrhq/scout/pkg/observability"
	"github.com/entrhq/scout/pkg/types"
)

// DefaultMaxSteps is the number of model calls a session may make.
const DefaultMaxSteps = 15

// Manager owns the active sessions. It is safe for concurrent use.
type Manager struct {
	provider  llm.Provider
	registry  *tools.Registry
	browser   Browser
	workspace Workspace
	emitter   Emitter
	logger    *zap.Logger

	customInstructions string
	maxSteps           int

	sessions map[string]*session
	mu       sync.Mutex
	wg       sync.WaitGroup
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithMaxSteps sets the step cap. Values below one are ignored.
func WithMaxSteps(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxSteps = n
		}
	}
}

// WithCustomInstructions adds operator instructions to the system prompt
func WithCustomInstructions(instructions string) ManagerOption {
	return func(m *Manager) {
		m.customInstructions = instructions
	}
}

// WithWorkspace lets the system prompt report the working directory
func WithWorkspace(ws Workspace) ManagerOption {
	return func(m *Manager) {
		m.workspace = ws
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a manager. browser may be nil when no registered tool
// needs the browser.
func NewManager(provider llm.Provider, registry *tools.Registry, browser Browser, emitter Emitter, opts ...ManagerOption) *Manager {
	m := &Manager{
		provider: provider,
		registry: registry,
		browser:  browser,
		emitter:  emitter,
		logger:   zap.NewNop(),
		maxSteps: DefaultMaxSteps,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start registers a session for requestID and runs it in the background. ctx
// bounds the whole session.
func (m *Manager) Start(ctx context.Context, prompt, requestID string) error {
	s, err := m.register(ctx, prompt, requestID)
	if err != nil {
		return err
	}
	go func() {
		defer m.wg.Done()
		_, _ = m.execute(s)
	}()
	return nil
}

// Run is the blocking variant of Start. It returns the final answer, a
// *SessionError, or ErrCancelled.
func (m *Manager) Run(ctx context.Context, prompt, requestID string) (*types.Response, error) {
	s, err := m.register(ctx, prompt, requestID)
	if err != nil {
		return nil, err
	}
	defer m.wg.Done()
	return m.execute(s)
}

func (m *Manager) register(ctx context.Context, prompt, requestID string) (*session, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, types.ErrEmptyQuery
	}
	if requestID == "" {
		return nil, ErrEmptyRequestID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[requestID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRequest, requestID)
	}
	s := newSession(ctx, prompt, requestID)
	m.sessions[requestID] = s
	m.wg.Add(1)
	return s, nil
}

// Cancel stops the session of requestID. Tool calls already running finish,
// no further model call is made, and no further event is emitted.
func (m *Manager) Cancel(requestID string) error {
	m.mu.Lock()
	s, ok := m.sessions[requestID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}
	m.cancelSession(s)
	return nil
}

func (m *Manager) cancelSession(s *session) {
	if s.cancelled.Swap(true) {
		return
	}
	s.cancel()
	m.emitter.Abandon(s.requestID)
	m.logger.Info("session cancelled", zap.String("request_id", s.requestID))
}

// Active returns the request ids of running sessions, sorted.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of the state of a running session.
func (m *Manager) Snapshot(requestID string) (types.SessionSnapshot, bool) {
	m.mu.Lock()
	s, ok := m.sessions[requestID]
	m.mu.Unlock()
	if !ok {
		return types.SessionSnapshot{}, false
	}
	return s.snapshot(), true
}

// Wait blocks until every session has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels every session and waits for them to finish or for ctx to
// be done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	active := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		active = append(active, s)
	}
	m.mu.Unlock()

	for _, s := range active {
		m.cancelSession(s)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execute drives s to a terminal state and emits its events.
func (m *Manager) execute(s *session) (resp *types.Response, err error) {
	logger := m.logger.With(zap.String("request_id", s.requestID))
	ctx, span := observability.StartSpan(s.ctx, "agent.session",
		attribute.String("request_id", s.requestID))
	observability.ActiveSessions.Inc()

	defer func() {
		if p := recover(); p != nil {
			logger.Error("session panicked", zap.Any("panic", p), zap.Stack("stack"))
			resp, err = nil, m.fail(s, fmt.Errorf("panic: %v", p))
		}

		outcome := observability.OutcomeDone
		switch {
		case errors.Is(err, ErrCancelled):
			outcome = observability.OutcomeCancelled
		case err != nil:
			outcome = observability.OutcomeError
		}
		observability.SessionsFinished.WithLabelValues(outcome).Inc()
		observability.ActiveSessions.Dec()
		observability.EndSpan(span, err)
		m.finish(s)
		logger.Info("session finished",
			zap.String("outcome", outcome),
			zap.Int("steps", len(s.snapshot().Steps)))
	}()

	logger.Info("session started", zap.Int("prompt_chars", len(s.prompt)))
	m.emit(s, func() { m.emitter.EmitStart(s.requestID) })

	resp, err = m.runAgentLoop(ctx, s, logger)
	if err == nil {
		m.unregister(s)
		m.emit(s, func() { m.emitter.EmitEnd(s.requestID, resp) })
		return resp, nil
	}
	if s.isCancelled() || errors.Is(err, ErrCancelled) || s.ctx.Err() != nil {
		// The owner's context going away counts as a cancel.
		m.cancelSession(s)
		return nil, ErrCancelled
	}
	return nil, m.fail(s, err)
}

// fail moves s to the error state and emits the user-safe message of err.
func (m *Manager) fail(s *session, err error) *SessionError {
	sessErr := &SessionError{
		Err:       err,
		RequestID: s.requestID,
		Message:   userMessage(err),
	}
	if transErr := s.transition(types.StatusError); transErr != nil {
		m.logger.Warn("failing a finished session", zap.String("request_id", s.requestID), zap.Error(transErr))
	}
	m.logger.Error("session failed", zap.String("request_id", s.requestID), zap.Error(err))
	m.unregister(s)
	m.emit(s, func() { m.emitter.EmitError(s.requestID, sessErr.Message) })
	return sessErr
}

// unregister frees the request id. It runs before the terminal event so the
// id can be reused as soon as a consumer sees it.
func (m *Manager) unregister(s *session) {
	m.mu.Lock()
	if m.sessions[s.requestID] == s {
		delete(m.sessions, s.requestID)
	}
	m.mu.Unlock()
}

func (m *Manager) finish(s *session) {
	m.unregister(s)
	if m.browser != nil && s.leased.Load() {
		m.browser.Release(s.requestID)
	}
	s.cancel()
}

// emit runs fn unless s was cancelled.
func (m *Manager) emit(s *session, fn func()) {
	if s.isCancelled() {
		return
	}
	fn()
}

func userMessage(err error) string {
	var modelErr *llm.ModelError
	if errors.As(err, &modelErr) {
		return modelErr.UserMessage()
	}
	return genericFailureMessage
}
