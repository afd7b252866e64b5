package browser

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL turns user or model input into an absolute http(s) URL.
// Bare hosts and partial schemes ("example.com", "//example.com",
// "https:example.com", "http:/example.com") become https. Explicit http://
// and https:// URLs keep their scheme. Other schemes are rejected.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "https://"), strings.HasPrefix(lower, "http://"):
	case strings.HasPrefix(lower, "https:"):
		s = "https://" + strings.TrimLeft(s[len("https:"):], "/")
	case strings.HasPrefix(lower, "http:"):
		s = "https://" + strings.TrimLeft(s[len("http:"):], "/")
	case strings.HasPrefix(s, "//"):
		s = "https:" + s
	case strings.Contains(s, "://"):
		return "", fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidURL, raw)
	default:
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Host == "" || strings.ContainsAny(u.Host, " \t") {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidURL, raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String(), nil
}
