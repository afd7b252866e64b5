package browser

import (
	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/browser"
)

// Tools returns the browser tools bound to controller.
func Tools(controller *browser.Controller) []tools.Tool {
	return []tools.Tool{
		NewNavigateTool(controller),
		NewReadPageTool(controller),
	}
}
