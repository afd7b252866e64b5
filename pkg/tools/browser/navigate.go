package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/browser"
)

// Resource is the name of the lease the browser tools share.
const Resource = "browser"

// NavigateTool loads a URL in the shared browser surface.
type NavigateTool struct {
	controller *browser.Controller
}

// NewNavigateTool creates a new navigate tool.
func NewNavigateTool(controller *browser.Controller) *NavigateTool {
	return &NavigateTool{
		controller: controller,
	}
}

// Name returns the tool name.
func (t *NavigateTool) Name() string {
	return "navigate"
}

// Description returns the tool description.
func (t *NavigateTool) Description() string {
	return "Open a URL in the browser and wait for the page to load. " +
		"Bare hosts such as example.com are opened over https. " +
		"Use readPage afterwards to get the page text."
}

// Schema returns the tool's JSON schema.
func (t *NavigateTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"url": tools.StringProperty("URL or host name to open, e.g. https://example.com or example.com"),
		},
		[]string{"url"},
	)
}

// Resource marks the tool as needing the browser lease.
func (t *NavigateTool) Resource() string {
	return Resource
}

// NavigateInput represents the parameters for navigation.
type NavigateInput struct {
	URL string `json:"url"`
}

// Execute navigates to a URL.
func (t *NavigateTool) Execute(ctx context.Context, arguments json.RawMessage) (string, error) {
	var input NavigateInput
	if err := tools.DecodeArguments(arguments, &input); err != nil {
		return "", err
	}

	url, err := t.controller.Navigate(ctx, input.URL)
	if err != nil {
		return "", err
	}

	title := t.controller.Title(ctx)
	if title == "" {
		title = "(untitled)"
	}

	return fmt.Sprintf(`Navigation successful

Page Details:
- URL: %s
- Title: %s

The page has loaded. Use readPage to read its text.`, url, title), nil
}
