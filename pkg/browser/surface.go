package browser

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Surface is one navigable page. Implementations need not be safe for
// concurrent use; the Controller serializes access.
type Surface interface {
	// Navigate loads url, waits for the page to settle and returns the URL the
	// surface ended up on.
	Navigate(ctx context.Context, url string) (string, error)
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	// HTML returns the current document markup.
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Launcher creates a surface. It is called at most once per Controller
// unless the surface is closed.
type Launcher func(ctx context.Context) (Surface, error)

// ErrScreenshotUnsupported is returned by surfaces that cannot render.
var ErrScreenshotUnsupported = fmt.Errorf("screenshots are not supported by this surface")

// Backend names accepted by NewLauncher.
const (
	BackendPlaywright = "playwright"
	BackendChromedp   = "chromedp"
	BackendHTTP       = "http"
)

// SurfaceOptions configures the launched surface.
type SurfaceOptions struct {
	HTTPClient        *http.Client
	UserAgent         string
	NavigationTimeout time.Duration
	Headless          bool
	// InstallBrowsers downloads the Playwright driver and browsers on first launch.
	InstallBrowsers bool
}

// NewLauncher returns the launcher for a backend name.
func NewLauncher(backend string, opts SurfaceOptions) (Launcher, error) {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	switch backend {
	case BackendPlaywright, "":
		return func(ctx context.Context) (Surface, error) {
			return newPlaywrightSurface(opts)
		}, nil
	case BackendChromedp:
		return func(ctx context.Context) (Surface, error) {
			return newChromedpSurface(ctx, opts)
		}, nil
	case BackendHTTP:
		return func(ctx context.Context) (Surface, error) {
			return NewFetchSurface(opts), nil
		}, nil
	}
	return nil, fmt.Errorf("unknown browser backend %q", backend)
}

// timeoutFor returns the time left before ctx's deadline, capped at fallback.
func timeoutFor(ctx context.Context, fallback time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < fallback {
			if left < time.Millisecond {
				return time.Millisecond
			}
			return left
		}
	}
	return fallback
}
