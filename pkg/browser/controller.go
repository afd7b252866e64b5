package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/entrhq/scout/pkg/observability"
)

// State is a snapshot of the currently loaded page.
type State struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	Screenshot []byte `json:"screenshot,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
}

// Page is the result of reading the current page.
type Page struct {
	URL       string
	Title     string
	Content   string
	Truncated bool
	// TotalChars is the length of the visible text before truncation.
	TotalChars int
}

// Controller owns the process's browser surface and its BrowserState.
type Controller struct {
	launch            Launcher
	surface           Surface
	logger            *zap.Logger
	lease             *Lease
	state             State
	contentLimit      int
	navigationTimeout time.Duration
	mu                sync.Mutex
	navigated         bool
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithContentLimit bounds extracted page text, in characters.
func WithContentLimit(n int) ControllerOption {
	return func(c *Controller) {
		if n > 0 {
			c.contentLimit = n
		}
	}
}

// WithNavigationTimeout bounds each page load.
func WithNavigationTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.navigationTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// NewController creates a controller. No surface exists until first use.
func NewController(launch Launcher, opts ...ControllerOption) *Controller {
	c := &Controller{
		launch:            launch,
		logger:            zap.NewNop(),
		lease:             NewLease(),
		contentLimit:      DefaultContentLimit,
		navigationTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lease returns the lease used to give one session exclusive use of the browser.
func (c *Controller) Lease() *Lease {
	return c.lease
}

// Acquire gives holder exclusive use of the browser until Release.
func (c *Controller) Acquire(ctx context.Context, holder string) error {
	return c.lease.Acquire(ctx, holder)
}

// Release ends holder's exclusive use.
func (c *Controller) Release(holder string) {
	c.lease.Release(holder)
}

// EnsureSurface creates the surface if it does not exist yet and returns it.
func (c *Controller) EnsureSurface(ctx context.Context) (Surface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureSurfaceLocked(ctx)
}

func (c *Controller) ensureSurfaceLocked(ctx context.Context) (Surface, error) {
	if c.surface != nil {
		return c.surface, nil
	}
	if c.launch == nil {
		return nil, errors.New("no browser launcher configured")
	}
	surface, err := c.launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser surface: %w", err)
	}
	c.surface = surface
	c.logger.Info("browser surface created")
	return surface, nil
}

// Navigate loads rawURL after normalizing it and returns the canonical URL the
// page settled on. The new page's title and text become the current state.
func (c *Controller) Navigate(ctx context.Context, rawURL string) (string, error) {
	target, err := NormalizeURL(rawURL)
	if err != nil {
		return "", &NavigationError{URL: rawURL, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	surface, err := c.ensureSurfaceLocked(ctx)
	if err != nil {
		return "", &NavigationError{URL: target, Err: err}
	}

	navCtx, cancel := context.WithTimeout(ctx, c.navigationTimeout)
	defer cancel()

	ctx, span := observability.StartSpan(navCtx, "browser.navigate")
	start := time.Now()
	canonical, err := surface.Navigate(ctx, target)
	observability.ObserveNavigation(start)
	observability.EndSpan(span, err)
	if err != nil {
		c.logger.Warn("navigation failed", zap.String("url", target), zap.Error(err))
		return "", &NavigationError{URL: target, Err: err}
	}
	if canonical == "" {
		canonical = target
	}

	c.navigated = true
	c.state = State{URL: canonical}
	if _, err := c.refreshLocked(ctx); err != nil {
		c.logger.Debug("failed to read page after navigation", zap.Error(err))
	}

	c.logger.Info("navigated",
		zap.String("url", canonical),
		zap.Duration("elapsed", time.Since(start)))
	return canonical, nil
}

// refreshLocked re-reads URL, title and text from the surface into state.
func (c *Controller) refreshLocked(ctx context.Context) (*Page, error) {
	if url, err := c.surface.URL(ctx); err == nil && url != "" {
		c.state.URL = url
	}
	if title, err := c.surface.Title(ctx); err == nil {
		c.state.Title = title
	}

	markup, err := c.surface.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}
	text, err := ExtractText(markup)
	if err != nil {
		return nil, err
	}
	if c.state.Title == "" {
		c.state.Title = text.Title
	}

	content, truncated := Truncate(text.Text, c.contentLimit)
	c.state.Content = content
	c.state.Truncated = truncated

	return &Page{
		URL:        c.state.URL,
		Title:      c.state.Title,
		Content:    content,
		Truncated:  truncated,
		TotalChars: len([]rune(text.Text)),
	}, nil
}

// ReadPage extracts the current page's visible text, truncated to the
// content limit. Before any navigation it returns an empty page.
func (c *Controller) ReadPage(ctx context.Context) (*Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.navigated || c.surface == nil {
		return &Page{}, nil
	}
	return c.refreshLocked(ctx)
}

// Content returns the current page's visible text, truncated to the content limit.
func (c *Controller) Content(ctx context.Context) (string, error) {
	page, err := c.ReadPage(ctx)
	if err != nil {
		return "", err
	}
	return page.Content, nil
}

// Title returns the current page title, or "" before any navigation.
func (c *Controller) Title(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.navigated || c.surface == nil {
		return ""
	}
	if title, err := c.surface.Title(ctx); err == nil {
		c.state.Title = title
	}
	return c.state.Title
}

// CurrentURL returns the current page URL, or "" before any navigation.
func (c *Controller) CurrentURL(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.navigated || c.surface == nil {
		return ""
	}
	if url, err := c.surface.URL(ctx); err == nil && url != "" {
		c.state.URL = url
	}
	return c.state.URL
}

// Screenshot captures the current page. It returns nil when no page is
// loaded or the surface fails; callers treat screenshots as optional.
func (c *Controller) Screenshot(ctx context.Context) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.navigated || c.surface == nil {
		return nil
	}
	shot, err := c.surface.Screenshot(ctx)
	if err != nil {
		c.logger.Debug("screenshot unavailable", zap.Error(err))
		return nil
	}
	c.state.Screenshot = shot
	return shot
}

// State returns the last known state without touching the surface.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.state
	if state.Screenshot != nil {
		state.Screenshot = append([]byte(nil), state.Screenshot...)
	}
	return state
}

// Close shuts the surface down. A later operation creates a new one.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.surface == nil {
		return nil
	}
	err := c.surface.Close()
	c.surface = nil
	c.navigated = false
	c.state = State{}
	return err
}
