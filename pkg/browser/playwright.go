package browser

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/playwright-community/playwright-go"
)

const (
	viewportWidth  = 1280
	viewportHeight = 800
	settleTimeout  = 3 * time.Second
)

type playwrightSurface struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	timeout time.Duration
}

func newPlaywrightSurface(opts SurfaceOptions) (*playwrightSurface, error) {
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if opts.InstallBrowsers {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	headless := opts.Headless
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &headless,
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  viewportWidth,
			Height: viewportHeight,
		},
	}
	if opts.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(opts.NavigationTimeout.Milliseconds()))

	return &playwrightSurface{
		pw:      pw,
		browser: browser,
		context: bctx,
		page:    page,
		timeout: opts.NavigationTimeout,
	}, nil
}

func (s *playwrightSurface) Navigate(ctx context.Context, url string) (string, error) {
	timeout := float64(timeoutFor(ctx, s.timeout).Milliseconds())
	waitUntil := playwright.WaitUntilState("load")

	if _, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: &waitUntil,
		Timeout:   &timeout,
	}); err != nil {
		return "", fmt.Errorf("navigation failed: %w", err)
	}

	// Late XHR-driven content; a page that never goes idle is still usable.
	idle := playwright.LoadState("networkidle")
	settle := float64(timeoutFor(ctx, settleTimeout).Milliseconds())
	_ = s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   &idle,
		Timeout: &settle,
	})

	return s.page.URL(), nil
}

func (s *playwrightSurface) URL(ctx context.Context) (string, error) {
	return s.page.URL(), nil
}

func (s *playwrightSurface) Title(ctx context.Context) (string, error) {
	return s.page.Title()
}

func (s *playwrightSurface) HTML(ctx context.Context) (string, error) {
	return s.page.Content()
}

func (s *playwrightSurface) Screenshot(ctx context.Context) ([]byte, error) {
	return s.page.Screenshot(playwright.PageScreenshotOptions{
		Type: playwright.ScreenshotTypePng,
	})
}

func (s *playwrightSurface) Close() error {
	_ = s.page.Close()
	_ = s.context.Close()
	_ = s.browser.Close()
	return s.pw.Stop()
}
