// Package browser owns the process's single hidden browsing surface.
//
// The Controller is the only component allowed to mutate BrowserState. It
// lazily creates a Surface on first use, normalizes URLs, waits for pages to
// settle and extracts bounded visible text for the model.
//
// # Surfaces
//
// Three backends implement Surface:
//
//   - playwright: Chromium driven through playwright-go (default)
//   - chromedp: Chrome driven over the DevTools protocol
//   - http: a plain HTTP fetch parsed with goquery, no JavaScript
//
// All backends hand raw HTML to the controller, which extracts text the same
// way regardless of backend.
//
// # Sharing
//
// There is one Controller per process. Each operation holds the controller's
// mutex, and a Lease lets one agent session own the surface across several
// operations so a navigate followed by a read sees its own page.
package browser
