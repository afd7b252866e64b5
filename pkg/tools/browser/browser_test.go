package browser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/browser"
	"github.com/entrhq/scout/pkg/types"
)

const page = `<html><head><title>Example Domain</title></head>
<body><h1>Example Domain</h1><p>This domain is for use in examples.</p></body></html>`

func newController(t *testing.T, opts ...browser.ControllerOption) (*browser.Controller, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(srv.Close)

	launch, err := browser.NewLauncher(browser.BackendHTTP, browser.SurfaceOptions{HTTPClient: srv.Client()})
	require.NoError(t, err)
	c := browser.NewController(launch, opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c, srv
}

func newRegistry(t *testing.T, c *browser.Controller) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry(nil)
	require.NoError(t, r.Register(Tools(c)...))
	return r
}

func args(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestToolsAreExclusive(t *testing.T) {
	c, _ := newController(t)
	for _, tool := range Tools(c) {
		ex, ok := tool.(tools.Exclusive)
		require.True(t, ok, tool.Name())
		assert.Equal(t, Resource, ex.Resource())
	}
}

func TestNavigateThenReadPage(t *testing.T) {
	c, srv := newController(t)
	r := newRegistry(t, c)
	ctx := context.Background()

	out, err := r.Invoke(ctx, "navigate", args(t, map[string]string{"url": srv.URL}))
	require.NoError(t, err)
	assert.Contains(t, out, "Navigation successful")
	assert.Contains(t, out, "Title: Example Domain")

	out, err = r.Invoke(ctx, "readPage", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Contains(t, out, "URL: "+srv.URL)
	assert.Contains(t, out, "This domain is for use in examples.")
	assert.NotContains(t, out, "truncated")
}

func TestReadPageBeforeNavigation(t *testing.T) {
	c, _ := newController(t)
	r := newRegistry(t, c)

	out, err := r.Invoke(context.Background(), "readPage", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "No page is open")
}

func TestReadPageReportsTruncation(t *testing.T) {
	c, srv := newController(t, browser.WithContentLimit(10))
	r := newRegistry(t, c)
	ctx := context.Background()

	_, err := r.Invoke(ctx, "navigate", args(t, map[string]string{"url": srv.URL}))
	require.NoError(t, err)

	out, err := r.Invoke(ctx, "readPage", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "[Content truncated: showing 10 of")
}

func TestNavigateFailureIsNavigationError(t *testing.T) {
	c, srv := newController(t)
	r := newRegistry(t, c)

	call := r.Run(context.Background(), types.ToolCallRequest{
		ID:        "call_1",
		Name:      "navigate",
		Arguments: args(t, map[string]string{"url": srv.URL + "/broken"}),
	})
	require.NotNil(t, call.Error)
	assert.Equal(t, types.ToolErrorNavigation, call.Error.Kind)
	assert.True(t, strings.Contains(call.Error.Message, "500"))
}

func TestNavigateRequiresURL(t *testing.T) {
	c, _ := newController(t)
	r := newRegistry(t, c)

	call := r.Run(context.Background(), types.ToolCallRequest{ID: "call_1", Name: "navigate", Arguments: json.RawMessage(`{}`)})
	require.NotNil(t, call.Error)
	assert.Equal(t, types.ToolErrorValidation, call.Error.Kind)

	call = r.Run(context.Background(), types.ToolCallRequest{ID: "call_2", Name: "readPage", Arguments: json.RawMessage(`{"url":"x"}`)})
	require.NotNil(t, call.Error)
	assert.Equal(t, types.ToolErrorValidation, call.Error.Kind)
}
