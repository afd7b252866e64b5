package browser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// DefaultContentLimit bounds the page text handed to the model, in characters.
const DefaultContentLimit = 2000

// PageText is the visible text of a document.
type PageText struct {
	Title string
	Text  string
}

// ExtractText parses an HTML document and returns its title and visible text.
// Scripts, styles, templates and elements marked hidden are skipped. Block
// elements start new lines and runs of whitespace collapse.
func ExtractText(rawHTML string) (*PageText, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	w := &textWriter{}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			if isSkippedElement(tag) || isHidden(n) {
				return
			}
			if isBlockElement(tag) {
				w.newline()
			}
			if tag == "br" {
				w.newline()
			}
		}
		if n.Type == html.TextNode {
			w.write(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlockElement(strings.ToLower(n.Data)) {
			w.newline()
		}
	}
	walk(doc)

	return &PageText{Title: findTitle(doc), Text: w.String()}, nil
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, "svg") {
		return ""
	}
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, "title") {
		return collapseSpace(nodeText(n))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := findTitle(c); title != "" {
			return title
		}
	}
	return ""
}

// Truncate shortens text to at most limit characters (runes). It reports
// whether anything was cut.
func Truncate(text string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	runes := []rune(text)
	return string(runes[:limit]), true
}

type textWriter struct {
	b           strings.Builder
	pendingLine bool
	pendingGap  bool
}

func (w *textWriter) write(s string) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if w.b.Len() > 0 && len(s) > 0 {
			w.pendingGap = true
		}
		return
	}
	leading := s[0] == ' ' || s[0] == '\n' || s[0] == '\t' || s[0] == '\r'
	if w.b.Len() > 0 {
		switch {
		case w.pendingLine:
			w.b.WriteByte('\n')
		case w.pendingGap || leading:
			w.b.WriteByte(' ')
		}
	}
	w.pendingLine = false
	w.b.WriteString(strings.Join(fields, " "))

	last := s[len(s)-1]
	w.pendingGap = last == ' ' || last == '\n' || last == '\t' || last == '\r'
}

func (w *textWriter) newline() {
	if w.b.Len() > 0 {
		w.pendingLine = true
	}
}

func (w *textWriter) String() string {
	return w.b.String()
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isSkippedElement(tag string) bool {
	switch tag {
	case "script", "style", "noscript", "template", "svg", "iframe", "object", "embed", "canvas", "head":
		return true
	}
	return false
}

func isHidden(n *html.Node) bool {
	for _, attr := range n.Attr {
		switch strings.ToLower(attr.Key) {
		case "hidden":
			return true
		case "aria-hidden":
			if strings.EqualFold(strings.TrimSpace(attr.Val), "true") {
				return true
			}
		case "style":
			style := strings.ToLower(strings.ReplaceAll(attr.Val, " ", ""))
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		case "type":
			if strings.ToLower(n.Data) == "input" && strings.EqualFold(attr.Val, "hidden") {
				return true
			}
		}
	}
	return false
}

func isBlockElement(tag string) bool {
	switch tag {
	case "address", "article", "aside", "blockquote", "body", "dd", "details", "div", "dl", "dt",
		"fieldset", "figcaption", "figure", "footer", "form", "h1", "h2", "h3", "h4", "h5", "h6",
		"header", "hr", "li", "main", "nav", "ol", "p", "pre", "section", "summary", "table",
		"tr", "td", "th", "ul":
		return true
	}
	return false
}
