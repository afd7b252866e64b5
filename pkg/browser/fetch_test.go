package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFetchServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(examplePage))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusFound)
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("a < b"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newFetchController(t *testing.T, srv *httptest.Server) *Controller {
	t.Helper()
	launch, err := NewLauncher(BackendHTTP, SurfaceOptions{HTTPClient: srv.Client()})
	require.NoError(t, err)
	c := NewController(launch)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestFetchSurfaceNavigateAndRead(t *testing.T) {
	srv := newFetchServer(t)
	c := newFetchController(t, srv)
	ctx := context.Background()

	canonical, err := c.Navigate(ctx, srv.URL+"/moved")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/", canonical, "redirects are followed")

	assert.Equal(t, "Example Domain", c.Title(ctx))
	content, err := c.Content(ctx)
	require.NoError(t, err)
	assert.Contains(t, content, "This domain is for use in examples.")
	assert.NotContains(t, content, "tracking")

	assert.Nil(t, c.Screenshot(ctx))
}

func TestFetchSurfacePlainText(t *testing.T) {
	srv := newFetchServer(t)
	c := newFetchController(t, srv)

	_, err := c.Navigate(context.Background(), srv.URL+"/plain")
	require.NoError(t, err)

	page, err := c.ReadPage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a < b", page.Content)
}

func TestFetchSurfaceErrorStatus(t *testing.T) {
	srv := newFetchServer(t)
	c := newFetchController(t, srv)

	_, err := c.Navigate(context.Background(), srv.URL+"/missing")
	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Contains(t, err.Error(), "404")
}

func TestNewLauncherUnknownBackend(t *testing.T) {
	_, err := NewLauncher("netscape", SurfaceOptions{})
	assert.Error(t, err)
}
