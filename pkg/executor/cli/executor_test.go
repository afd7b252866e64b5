package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/scout/pkg/agent"
	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/bridge"
	"github.com/entrhq/scout/pkg/llm/llmtest"
)

func newTestExecutor(t *testing.T, provider *llmtest.Provider, opts ...ExecutorOption) (*Executor, *bytes.Buffer, *agent.Manager) {
	t.Helper()
	b := bridge.New()
	m := agent.NewManager(provider, tools.NewRegistry(nil), nil, b)
	t.Cleanup(m.Wait)

	var out bytes.Buffer
	opts = append([]ExecutorOption{WithWriter(&out)}, opts...)
	return NewExecutor(m, b, opts...), &out, m
}

func TestRunStreamsChunks(t *testing.T) {
	provider := llmtest.New(llmtest.Turn{Deltas: []string{"Hello, ", "world."}})
	e, out, _ := newTestExecutor(t, provider)

	resp, err := e.Run(context.Background(), "greet me")
	require.NoError(t, err)
	assert.Equal(t, "Hello, world.", resp.Content)
	assert.Contains(t, out.String(), "Hello, world.\n")
}

func TestRunReportsSessionError(t *testing.T) {
	provider := llmtest.New(llmtest.Turn{Err: errors.New("upstream exploded")})
	e, out, _ := newTestExecutor(t, provider)

	_, err := e.Run(context.Background(), "anything")
	require.ErrorIs(t, err, ErrSessionFailed)
	assert.Contains(t, out.String(), "Error: ")
	assert.NotContains(t, out.String(), "upstream exploded")
}

func TestRunCancelledByContext(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	provider := llmtest.New(llmtest.Turn{Gate: gate})
	e, _, m := newTestExecutor(t, provider)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := e.Run(ctx, "slow")
		done <- err
	}()

	require.Eventually(t, func() bool { return len(m.Active()) == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	err := <-done
	assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, agent.ErrCancelled), "got %v", err)
}

func TestRunRejectsEmptyPrompt(t *testing.T) {
	e, _, _ := newTestExecutor(t, llmtest.New())
	_, err := e.Run(context.Background(), "  ")
	assert.Error(t, err)
}

func TestInteractive(t *testing.T) {
	provider := llmtest.New(
		llmtest.Turn{Deltas: []string{"first answer"}},
		llmtest.Turn{Err: errors.New("boom")},
		llmtest.Turn{Deltas: []string{"never used"}},
	)
	input := strings.NewReader("one\n\ntwo\nexit\nthree\n")
	e, out, _ := newTestExecutor(t, provider, WithReader(input))

	require.NoError(t, e.Interactive(context.Background()))
	assert.Contains(t, out.String(), "first answer")
	assert.Contains(t, out.String(), "Error: ")
	assert.NotContains(t, out.String(), "never used")
	assert.Equal(t, 2, provider.Calls())
}

func TestInteractiveEndsAtEOF(t *testing.T) {
	provider := llmtest.New(llmtest.Turn{Deltas: []string{"last"}})
	e, out, _ := newTestExecutor(t, provider, WithReader(strings.NewReader("final question")))

	require.NoError(t, e.Interactive(context.Background()))
	assert.Contains(t, out.String(), "last")
}
