package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; scout/1.0)"
	maxFetchBytes    = 5 << 20
)

// FetchSurface is a Surface backed by plain HTTP requests. It does not run
// JavaScript and cannot take screenshots.
type FetchSurface struct {
	client    *http.Client
	userAgent string
	url       string
	title     string
	html      string
}

// NewFetchSurface creates an HTTP surface.
func NewFetchSurface(opts SurfaceOptions) *FetchSurface {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.NavigationTimeout}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &FetchSurface{client: client, userAgent: ua}
}

// Navigate fetches url, following redirects, and keeps the document.
func (s *FetchSurface) Navigate(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,text/plain;q=0.8,*/*;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("received status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	markup := string(body)
	title := ""
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || strings.Contains(contentType, "html") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
		if err != nil {
			return "", fmt.Errorf("failed to parse HTML: %w", err)
		}
		title = strings.TrimSpace(doc.Find("title").First().Text())
	} else {
		markup = "<html><body><pre>" + html.EscapeString(markup) + "</pre></body></html>"
	}

	s.url = resp.Request.URL.String()
	s.title = strings.Join(strings.Fields(title), " ")
	s.html = markup
	return s.url, nil
}

func (s *FetchSurface) URL(ctx context.Context) (string, error) {
	return s.url, nil
}

func (s *FetchSurface) Title(ctx context.Context) (string, error) {
	return s.title, nil
}

func (s *FetchSurface) HTML(ctx context.Context) (string, error) {
	return s.html, nil
}

func (s *FetchSurface) Screenshot(ctx context.Context) ([]byte, error) {
	return nil, ErrScreenshotUnsupported
}

func (s *FetchSurface) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
