package filesystem

import (
	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/security/workspace"
)

// Tools returns the file tools bound to sandbox.
func Tools(sandbox *workspace.Sandbox) []tools.Tool {
	return []tools.Tool{
		NewGetWorkingDirectoryTool(sandbox),
		NewSetWorkingDirectoryTool(sandbox),
		NewListDirectoryTool(sandbox),
		NewReadFileTool(sandbox),
		NewWriteFileTool(sandbox),
		NewCreateDirectoryTool(sandbox),
	}
}
