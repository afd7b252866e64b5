package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/browser"
)

// ReadPageTool returns the visible text of the current page.
type ReadPageTool struct {
	controller *browser.Controller
}

// NewReadPageTool creates a new readPage tool.
func NewReadPageTool(controller *browser.Controller) *ReadPageTool {
	return &ReadPageTool{controller: controller}
}

// Name returns the tool name.
func (t *ReadPageTool) Name() string {
	return "readPage"
}

// Description returns the tool description.
func (t *ReadPageTool) Description() string {
	return "Read the title, URL and visible text of the page currently open in the browser. " +
		"Long pages are truncated."
}

// Schema returns the tool's JSON schema.
func (t *ReadPageTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(nil, nil)
}

// Resource marks the tool as needing the browser lease.
func (t *ReadPageTool) Resource() string {
	return Resource
}

// Execute reads the current page.
func (t *ReadPageTool) Execute(ctx context.Context, arguments json.RawMessage) (string, error) {
	page, err := t.controller.ReadPage(ctx)
	if err != nil {
		return "", err
	}
	if page.URL == "" {
		return "No page is open. Use navigate to open one first.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", page.URL)
	fmt.Fprintf(&b, "Title: %s\n\n", page.Title)
	b.WriteString(page.Content)
	if page.Truncated {
		fmt.Fprintf(&b, "\n\n[Content truncated: showing %d of %d characters]",
			len([]rune(page.Content)), page.TotalChars)
	}
	return b.String(), nil
}
