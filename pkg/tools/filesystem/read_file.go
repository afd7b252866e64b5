package filesystem

import (
	"context"
	"encoding/json"

	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/security/workspace"
)

// ReadFileTool returns the full content of a file.
type ReadFileTool struct {
	sandbox *workspace.Sandbox
}

// NewReadFileTool creates a new readFile tool.
func NewReadFileTool(sandbox *workspace.Sandbox) *ReadFileTool {
	return &ReadFileTool{sandbox: sandbox}
}

func (t *ReadFileTool) Name() string {
	return "readFile"
}

func (t *ReadFileTool) Description() string {
	return "Read a text file from the working directory. Files larger than 1 MiB are refused."
}

func (t *ReadFileTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"relativePath": tools.StringProperty("File to read, relative to the working directory"),
		},
		[]string{"relativePath"},
	)
}

func (t *ReadFileTool) Execute(ctx context.Context, arguments json.RawMessage) (string, error) {
	var input struct {
		RelativePath string `json:"relativePath"`
	}
	if err := tools.DecodeArguments(arguments, &input); err != nil {
		return "", err
	}
	return t.sandbox.Read(input.RelativePath)
}
