package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/bridge"
	"github.com/entrhq/scout/pkg/browser"
	"github.com/entrhq/scout/pkg/llm"
	"github.com/entrhq/scout/pkg/llm/llmtest"
	"github.com/entrhq/scout/pkg/observability"
	"github.com/entrhq/scout/pkg/security/workspace"
	browsertools "github.com/entrhq/scout/pkg/tools/browser"
	"github.com/entrhq/scout/pkg/tools/filesystem"
	"github.com/entrhq/scout/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

const examplePage = `<html><head><title>Example Domain</title></head>
<body><h1>Example Domain</h1><p>This domain is for use in examples.</p></body></html>`

type fixture struct {
	manager    *Manager
	bridge     *bridge.Bridge
	controller *browser.Controller
	sandbox    *workspace.Sandbox
	server     *httptest.Server
}

func newFixture(t *testing.T, provider llm.Provider, extra []tools.Tool, opts ...ManagerOption) *fixture {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(examplePage))
	}))
	t.Cleanup(srv.Close)

	launch, err := browser.NewLauncher(browser.BackendHTTP, browser.SurfaceOptions{HTTPClient: srv.Client()})
	require.NoError(t, err)
	controller := browser.NewController(launch)
	t.Cleanup(func() { _ = controller.Close() })

	sandbox, err := workspace.NewSandbox()
	require.NoError(t, err)

	registry := tools.NewRegistry(nil)
	require.NoError(t, registry.Register(browsertools.Tools(controller)...))
	require.NoError(t, registry.Register(filesystem.Tools(sandbox)...))
	require.NoError(t, registry.Register(extra...))

	b := bridge.New()
	opts = append([]ManagerOption{WithLogger(zaptest.NewLogger(t)), WithWorkspace(sandbox)}, opts...)
	m := NewManager(provider, registry, controller, b, opts...)
	t.Cleanup(m.Wait)

	return &fixture{manager: m, bridge: b, controller: controller, sandbox: sandbox, server: srv}
}

// collect reads events until the subscription is closed.
func collect(t *testing.T, sub *bridge.Subscription) []*types.StreamEvent {
	t.Helper()
	var events []*types.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d", len(events))
			return nil
		}
	}
}

func eventTypes(events []*types.StreamEvent) []types.EventType {
	out := make([]types.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func chunkText(events []*types.StreamEvent) string {
	var sb strings.Builder
	for _, ev := range events {
		if ev.IsChunkEvent() {
			sb.WriteString(ev.Delta)
		}
	}
	return sb.String()
}

func lastToolMessage(t *testing.T, req llm.Request) *types.Message {
	t.Helper()
	require.NotEmpty(t, req.Messages)
	msg := req.Messages[len(req.Messages)-1]
	require.Equal(t, types.RoleTool, msg.Role)
	return msg
}

// routedProvider picks a scripted provider by the session prompt.
type routedProvider struct {
	routes map[string]*llmtest.Provider
}

func (p *routedProvider) Name() string     { return "routed" }
func (p *routedProvider) GetModel() string { return "scripted" }

func (p *routedProvider) StreamCompletion(ctx context.Context, req *llm.Request) (<-chan *llm.StreamChunk, error) {
	for _, msg := range req.Messages {
		if msg.Role == types.RoleUser {
			if route, ok := p.routes[msg.Content]; ok {
				return route.StreamCompletion(ctx, req)
			}
			break
		}
	}
	return nil, errors.New("no route for prompt")
}

type gateTool struct {
	started  chan struct{}
	release  chan struct{}
	ctxErr   atomic.Value
	finished atomic.Bool
	once     sync.Once
}

func newGateTool() *gateTool {
	return &gateTool{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateTool) Name() string                   { return "wait" }
func (g *gateTool) Description() string            { return "Wait until released." }
func (g *gateTool) Schema() map[string]interface{} { return tools.BaseToolSchema(nil, nil) }

func (g *gateTool) Execute(ctx context.Context, _ json.RawMessage) (string, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	if err := ctx.Err(); err != nil {
		g.ctxErr.Store(err)
	}
	g.finished.Store(true)
	return "released", nil
}

type panicTool struct{}

func (panicTool) Name() string                   { return "explode" }
func (panicTool) Description() string            { return "Always panics." }
func (panicTool) Schema() map[string]interface{} { return tools.BaseToolSchema(nil, nil) }
func (panicTool) Execute(context.Context, json.RawMessage) (string, error) {
	panic("boom")
}

func TestNavigateThenReadPageEndsWithPageURL(t *testing.T) {
	provider := llmtest.New()
	f := newFixture(t, provider, nil)
	provider.Push(
		llmtest.Turn{
			Deltas:    []string{"Let me open it. "},
			ToolCalls: []types.ToolCallRequest{llmtest.Call("call_1", "navigate", `{"url":"`+f.server.URL+`"}`)},
		},
		llmtest.Turn{ToolCalls: []types.ToolCallRequest{llmtest.Call("call_2", "readPage", `{}`)}},
		llmtest.Turn{Deltas: []string{"The page ", "is for ", "examples."}},
	)

	sub := f.bridge.Subscribe("r1")
	defer sub.Close()
	require.NoError(t, f.manager.Start(context.Background(), "What does the page say?", "r1"))

	events := collect(t, sub)
	require.NotEmpty(t, events)
	assert.Equal(t, []types.EventType{
		types.EventTypeStart,
		types.EventTypeChunk,
		types.EventTypeChunk, types.EventTypeChunk, types.EventTypeChunk,
		types.EventTypeEnd,
	}, eventTypes(events))
	for _, ev := range events {
		assert.Equal(t, "r1", ev.RequestID)
		assert.NotEmpty(t, ev.ID)
	}

	end := events[len(events)-1]
	require.NotNil(t, end.Response)
	assert.Equal(t, types.ActionAnswer, end.Response.Action)
	assert.Equal(t, "Let me open it. The page is for examples.", end.Response.Content)
	assert.Equal(t, chunkText(events), end.Response.Content)
	assert.True(t, strings.HasPrefix(end.Response.URL, f.server.URL), end.Response.URL)

	requests := provider.Requests()
	require.Len(t, requests, 3)
	assert.Len(t, requests[0].Tools, 8)
	assert.Equal(t, types.RoleSystem, requests[0].Messages[0].Role)

	nav := lastToolMessage(t, requests[1])
	assert.Equal(t, "call_1", nav.ToolCallID)
	assert.False(t, nav.IsError)
	assert.Contains(t, nav.Content, "Navigation successful")

	read := lastToolMessage(t, requests[2])
	assert.Equal(t, "call_2", read.ToolCallID)
	assert.Contains(t, read.Content, "This domain is for use in examples.")

	f.manager.Wait()
	assert.Empty(t, f.manager.Active())
	assert.Empty(t, f.controller.Lease().Holder())
}

func TestReadFileWithoutWorkingDirectoryIsRecoverable(t *testing.T) {
	provider := llmtest.New(
		llmtest.Turn{ToolCalls: []types.ToolCallRequest{llmtest.Call("call_1", "readFile", `{"relativePath":"notes.txt"}`)}},
		llmtest.Turn{Deltas: []string{"Please choose a working directory first."}},
	)
	f := newFixture(t, provider, nil)

	sub := f.bridge.Subscribe("r1")
	defer sub.Close()
	resp, err := f.manager.Run(context.Background(), "Read notes.txt", "r1")
	require.NoError(t, err)
	assert.Equal(t, "Please choose a working directory first.", resp.Content)
	assert.Empty(t, resp.URL)

	requests := provider.Requests()
	require.Len(t, requests, 2)
	msg := lastToolMessage(t, requests[1])
	assert.True(t, msg.IsError)
	assert.Contains(t, msg.Content, "resource")
	assert.Contains(t, msg.Content, "no working directory set")

	events := collect(t, sub)
	assert.Equal(t, types.EventTypeEnd, events[len(events)-1].Type)
}

func TestStepCapEndsWithAccumulatedText(t *testing.T) {
	provider := llmtest.New()
	provider.Repeat = &llmtest.Turn{
		Deltas:    []string{"still looking. "},
		ToolCalls: []types.ToolCallRequest{llmtest.Call("call_1", "getWorkingDirectory", `{}`)},
	}
	f := newFixture(t, provider, nil, WithMaxSteps(3))
	before := testutil.ToFloat64(observability.StepCapReached)

	sub := f.bridge.Subscribe("r1")
	defer sub.Close()
	resp, err := f.manager.Run(context.Background(), "Loop forever", "r1")
	require.NoError(t, err)

	assert.Equal(t, 3, provider.Calls())
	assert.Equal(t, strings.Repeat("still looking. ", 3), resp.Content)
	assert.Equal(t, before+1, testutil.ToFloat64(observability.StepCapReached))

	events := collect(t, sub)
	end := events[len(events)-1]
	assert.Equal(t, types.EventTypeEnd, end.Type)
	assert.Equal(t, resp.Content, end.Response.Content)
}

func TestDefaultStepCap(t *testing.T) {
	provider := llmtest.New()
	provider.Repeat = &llmtest.Turn{
		ToolCalls: []types.ToolCallRequest{llmtest.Call("call_1", "getWorkingDirectory", `{}`)},
	}
	f := newFixture(t, provider, nil)

	_, err := f.manager.Run(context.Background(), "Loop forever", "r1")
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxSteps, provider.Calls())
}

func TestModelErrorEmitsUserSafeError(t *testing.T) {
	tests := []struct {
		name    string
		turn    llmtest.Turn
		chunks  int
		message string
	}{
		{
			name:    "RejectedKey",
			turn:    llmtest.Turn{Err: &llm.ModelError{Provider: "llmtest", StatusCode: http.StatusUnauthorized, Err: errors.New("invalid api key sk-123")}},
			message: "The model provider rejected the API key.",
		},
		{
			name:    "StreamBrokenAfterText",
			turn:    llmtest.Turn{Deltas: []string{"Par"}, StreamErr: &llm.ModelError{Provider: "llmtest", StatusCode: http.StatusServiceUnavailable, Err: errors.New("upstream reset")}},
			chunks:  1,
			message: "The model provider is currently unavailable. Please try again.",
		},
		{
			name:    "UnexpectedFailure",
			turn:    llmtest.Turn{Err: errors.New("decoder exploded")},
			message: genericFailureMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := llmtest.New(tt.turn)
			f := newFixture(t, provider, nil)

			sub := f.bridge.Subscribe("r1")
			defer sub.Close()
			resp, err := f.manager.Run(context.Background(), "Hello", "r1")
			assert.Nil(t, resp)

			var sessErr *SessionError
			require.ErrorAs(t, err, &sessErr)
			assert.Equal(t, tt.message, sessErr.Message)
			assert.Equal(t, "r1", sessErr.RequestID)

			events := collect(t, sub)
			require.Len(t, events, tt.chunks+2)
			assert.Equal(t, types.EventTypeStart, events[0].Type)
			last := events[len(events)-1]
			assert.Equal(t, types.EventTypeError, last.Type)
			assert.Equal(t, tt.message, last.Message)
			assert.NotContains(t, last.Message, "sk-123")
			assert.Equal(t, 1, provider.Calls())
		})
	}
}

func TestToolPanicIsReturnedToModel(t *testing.T) {
	provider := llmtest.New(
		llmtest.Turn{ToolCalls: []types.ToolCallRequest{llmtest.Call("call_1", "explode", `{}`)}},
		llmtest.Turn{Deltas: []string{"That tool is broken."}},
	)
	f := newFixture(t, provider, []tools.Tool{panicTool{}})

	resp, err := f.manager.Run(context.Background(), "Try it", "r1")
	require.NoError(t, err)
	assert.Equal(t, "That tool is broken.", resp.Content)

	msg := lastToolMessage(t, provider.Requests()[1])
	assert.True(t, msg.IsError)
	assert.Contains(t, msg.Content, "internal")
}

func TestStepRecordsFinishedToolCalls(t *testing.T) {
	gate := make(chan struct{})
	provider := llmtest.New(
		llmtest.Turn{ToolCalls: []types.ToolCallRequest{
			llmtest.Call("call_1", "getWorkingDirectory", `{}`),
			llmtest.Call("call_2", "readFile", `{}`),
			llmtest.Call("call_3", "fly", `{}`),
		}},
		llmtest.Turn{Gate: gate, Deltas: []string{"done"}},
	)
	f := newFixture(t, provider, nil)

	require.NoError(t, f.manager.Start(context.Background(), "Check things", "r1"))
	require.Eventually(t, func() bool { return provider.Calls() == 2 }, 5*time.Second, 5*time.Millisecond)

	snap, ok := f.manager.Snapshot("r1")
	require.True(t, ok)
	assert.Equal(t, types.StatusStreaming, snap.Status)
	assert.Equal(t, "Check things", snap.Prompt)
	require.Equal(t, 1, snap.StepCount)

	calls := snap.Steps[0].ToolCalls
	require.Len(t, calls, 3)
	for _, call := range calls {
		assert.True(t, call.Finished(), call.ID)
	}
	assert.Equal(t, "call_1", calls[0].ID)
	assert.NotNil(t, calls[0].Output)
	assert.Equal(t, types.ToolErrorValidation, calls[1].Error.Kind)
	assert.Equal(t, types.ToolErrorValidation, calls[2].Error.Kind)
	assert.Contains(t, calls[2].Error.Message, "fly")

	close(gate)
	f.manager.Wait()
	_, ok = f.manager.Snapshot("r1")
	assert.False(t, ok)
}

func TestCancelDuringToolExecution(t *testing.T) {
	gt := newGateTool()
	provider := llmtest.New(
		llmtest.Turn{Deltas: []string{"Waiting. "}, ToolCalls: []types.ToolCallRequest{llmtest.Call("call_1", "wait", `{}`)}},
		llmtest.Turn{Deltas: []string{"never sent"}},
	)
	f := newFixture(t, provider, []tools.Tool{gt})

	sub := f.bridge.Subscribe("r1")
	defer sub.Close()
	require.NoError(t, f.manager.Start(context.Background(), "Wait for it", "r1"))

	select {
	case <-gt.started:
	case <-time.After(5 * time.Second):
		t.Fatal("tool never started")
	}
	require.NoError(t, f.manager.Cancel("r1"))
	close(gt.release)
	f.manager.Wait()

	assert.True(t, gt.finished.Load(), "in-flight tool runs to completion")
	assert.Nil(t, gt.ctxErr.Load(), "tool context is not cancelled")
	assert.Equal(t, 1, provider.Calls(), "no model call after cancel")

	events := collect(t, sub)
	for _, ev := range events {
		assert.False(t, ev.IsTerminal(), "no terminal event after cancel")
	}
	assert.Empty(t, f.manager.Active())
	assert.ErrorIs(t, f.manager.Cancel("r1"), ErrUnknownRequest)
}

func TestCancelDuringModelCall(t *testing.T) {
	provider := llmtest.New(llmtest.Turn{Gate: make(chan struct{})})
	f := newFixture(t, provider, nil)

	sub := f.bridge.Subscribe("r1")
	defer sub.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := f.manager.Run(context.Background(), "Hello", "r1")
		errCh <- err
	}()
	require.Eventually(t, func() bool { return provider.Calls() == 1 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, f.manager.Cancel("r1"))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	events := collect(t, sub)
	assert.Equal(t, []types.EventType{types.EventTypeStart}, eventTypes(events))
}

func TestContextCancellationIsTreatedAsCancel(t *testing.T) {
	provider := llmtest.New(llmtest.Turn{Gate: make(chan struct{})})
	f := newFixture(t, provider, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.manager.Start(ctx, "Hello", "r1"))
	require.Eventually(t, func() bool { return provider.Calls() == 1 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	f.manager.Wait()
	assert.Empty(t, f.manager.Active())
}

func TestDuplicateRequestID(t *testing.T) {
	gate := make(chan struct{})
	provider := llmtest.New(
		llmtest.Turn{Gate: gate, Deltas: []string{"first"}},
		llmtest.Turn{Deltas: []string{"second"}},
	)
	f := newFixture(t, provider, nil)
	ctx := context.Background()

	require.NoError(t, f.manager.Start(ctx, "One", "r1"))
	err := f.manager.Start(ctx, "Two", "r1")
	assert.ErrorIs(t, err, ErrDuplicateRequest)
	assert.Equal(t, []string{"r1"}, f.manager.Active())

	close(gate)
	f.manager.Wait()

	resp, err := f.manager.Run(ctx, "Three", "r1")
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Content)
}

func TestStartValidatesArguments(t *testing.T) {
	f := newFixture(t, llmtest.New(), nil)
	ctx := context.Background()

	assert.ErrorIs(t, f.manager.Start(ctx, "   ", "r1"), types.ErrEmptyQuery)
	assert.ErrorIs(t, f.manager.Start(ctx, "Hello", ""), ErrEmptyRequestID)
	assert.Empty(t, f.manager.Active())
}

func TestConcurrentSessionsAreIsolated(t *testing.T) {
	gate := make(chan struct{})
	first := llmtest.New(llmtest.Turn{Gate: gate, Deltas: []string{"one ", "for ", "R1"}})
	second := llmtest.New(llmtest.Turn{Deltas: []string{"two ", "for ", "R2"}})
	f := newFixture(t, &routedProvider{routes: map[string]*llmtest.Provider{
		"first":  first,
		"second": second,
	}}, nil)
	ctx := context.Background()

	sub1 := f.bridge.Subscribe("R1")
	defer sub1.Close()
	sub2 := f.bridge.Subscribe("R2")
	defer sub2.Close()

	require.NoError(t, f.manager.Start(ctx, "first", "R1"))
	require.NoError(t, f.manager.Start(ctx, "second", "R2"))

	// R2 finishes while R1 is still waiting on the model.
	events2 := collect(t, sub2)
	close(gate)
	events1 := collect(t, sub1)

	for _, ev := range events1 {
		assert.Equal(t, "R1", ev.RequestID)
	}
	for _, ev := range events2 {
		assert.Equal(t, "R2", ev.RequestID)
	}
	assert.Equal(t, "one for R1", chunkText(events1))
	assert.Equal(t, "two for R2", chunkText(events2))
	assert.Equal(t, "one for R1", events1[len(events1)-1].Response.Content)
	assert.Equal(t, "two for R2", events2[len(events2)-1].Response.Content)
}

func TestBrowserLeaseSerializesSessions(t *testing.T) {
	gateA := make(chan struct{})
	a, b := llmtest.New(), llmtest.New()
	f := newFixture(t, &routedProvider{routes: map[string]*llmtest.Provider{"a": a, "b": b}}, nil)
	ctx := context.Background()

	a.Push(
		llmtest.Turn{ToolCalls: []types.ToolCallRequest{llmtest.Call("a1", "navigate", `{"url":"`+f.server.URL+`/a"}`)}},
		llmtest.Turn{Gate: gateA, Deltas: []string{"A done"}},
	)
	b.Push(
		llmtest.Turn{ToolCalls: []types.ToolCallRequest{llmtest.Call("b1", "navigate", `{"url":"`+f.server.URL+`/b"}`)}},
		llmtest.Turn{Deltas: []string{"B done"}},
	)

	subA := f.bridge.Subscribe("A")
	defer subA.Close()
	subB := f.bridge.Subscribe("B")
	defer subB.Close()

	require.NoError(t, f.manager.Start(ctx, "a", "A"))
	require.Eventually(t, func() bool { return a.Calls() == 2 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, "A", f.controller.Lease().Holder())

	require.NoError(t, f.manager.Start(ctx, "b", "B"))
	require.Eventually(t, func() bool { return b.Calls() == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return b.Calls() > 1 }, 200*time.Millisecond, 10*time.Millisecond,
		"B must wait for the browser while A holds it")

	close(gateA)
	eventsA := collect(t, subA)
	eventsB := collect(t, subB)

	endA := eventsA[len(eventsA)-1]
	endB := eventsB[len(eventsB)-1]
	require.Equal(t, types.EventTypeEnd, endA.Type)
	require.Equal(t, types.EventTypeEnd, endB.Type)
	assert.Equal(t, f.server.URL+"/a", endA.Response.URL)
	assert.Equal(t, f.server.URL+"/b", endB.Response.URL)
}

func TestShutdownCancelsSessions(t *testing.T) {
	provider := llmtest.New(llmtest.Turn{Gate: make(chan struct{})})
	f := newFixture(t, provider, nil)

	require.NoError(t, f.manager.Start(context.Background(), "Hello", "r1"))
	require.Eventually(t, func() bool { return provider.Calls() == 1 }, 5*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.manager.Shutdown(ctx))
	assert.Empty(t, f.manager.Active())
}

func TestSystemPromptReportsEnvironment(t *testing.T) {
	provider := llmtest.New(llmtest.Turn{Deltas: []string{"ok"}})
	f := newFixture(t, provider, nil, WithCustomInstructions("Be brief."))
	root, err := f.sandbox.SetRoot(t.TempDir())
	require.NoError(t, err)

	_, err = f.manager.Run(context.Background(), "Hello", "r1")
	require.NoError(t, err)

	system := provider.Requests()[0].Messages[0]
	assert.Contains(t, system.Content, "Be brief.")
	assert.Contains(t, system.Content, "Working directory: "+root)
	assert.Contains(t, system.Content, "Current page: (no page open)")
	assert.Equal(t, "Hello", provider.Requests()[0].Messages[1].Content)
}
