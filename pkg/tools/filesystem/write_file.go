package filesystem

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/security/workspace"
)

// WriteFileTool creates or replaces a file.
type WriteFileTool struct {
	sandbox *workspace.Sandbox
}

// NewWriteFileTool creates a new writeFile tool.
func NewWriteFileTool(sandbox *workspace.Sandbox) *WriteFileTool {
	return &WriteFileTool{sandbox: sandbox}
}

func (t *WriteFileTool) Name() string {
	return "writeFile"
}

func (t *WriteFileTool) Description() string {
	return "Write content to a file in the working directory, replacing any existing content. " +
		"Missing parent directories are created."
}

func (t *WriteFileTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"relativePath": tools.StringProperty("File to write, relative to the working directory"),
			"content":      tools.StringProperty("Complete new content of the file"),
		},
		[]string{"relativePath", "content"},
	)
}

func (t *WriteFileTool) Execute(ctx context.Context, arguments json.RawMessage) (string, error) {
	var input struct {
		RelativePath string `json:"relativePath"`
		Content      string `json:"content"`
	}
	if err := tools.DecodeArguments(arguments, &input); err != nil {
		return "", err
	}

	if err := t.sandbox.Write(input.RelativePath, input.Content); err != nil {
		return "", err
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(input.Content), input.RelativePath), nil
}
