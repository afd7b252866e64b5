package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
)

type chromedpSurface struct {
	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc
	tab         context.Context
	timeout     time.Duration
}

func newChromedpSurface(ctx context.Context, opts SurfaceOptions) (*chromedpSurface, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.WindowSize(viewportWidth, viewportHeight),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	// The browser outlives the request that created it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tab, tabCancel := chromedp.NewContext(allocCtx)

	startCtx, cancel := context.WithTimeout(tab, timeoutFor(ctx, opts.NavigationTimeout))
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	actions := []chromedp.Action{}
	if opts.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(opts.UserAgent))
	}
	if err := chromedp.Run(startCtx, actions...); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	return &chromedpSurface{
		allocCancel: allocCancel,
		tabCancel:   tabCancel,
		tab:         tab,
		timeout:     opts.NavigationTimeout,
	}, nil
}

// run executes actions on the tab, bounded by ctx and the surface timeout.
func (s *chromedpSurface) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.tab, timeoutFor(ctx, s.timeout))
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *chromedpSurface) Navigate(ctx context.Context, url string) (string, error) {
	var location string
	err := s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		return "", fmt.Errorf("navigation failed: %w", err)
	}
	return location, nil
}

func (s *chromedpSurface) URL(ctx context.Context) (string, error) {
	var location string
	err := s.run(ctx, chromedp.Location(&location))
	return location, err
}

func (s *chromedpSurface) Title(ctx context.Context) (string, error) {
	var title string
	err := s.run(ctx, chromedp.Title(&title))
	return title, err
}

func (s *chromedpSurface) HTML(ctx context.Context) (string, error) {
	var markup string
	err := s.run(ctx, chromedp.OuterHTML("html", &markup, chromedp.ByQuery))
	return markup, err
}

func (s *chromedpSurface) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

func (s *chromedpSurface) Close() error {
	s.tabCancel()
	s.allocCancel()
	return nil
}
