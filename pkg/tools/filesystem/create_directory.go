package filesystem

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/security/workspace"
)

// CreateDirectoryTool creates a directory and its parents.
type CreateDirectoryTool struct {
	sandbox *workspace.Sandbox
}

// NewCreateDirectoryTool creates a new createDirectory tool.
func NewCreateDirectoryTool(sandbox *workspace.Sandbox) *CreateDirectoryTool {
	return &CreateDirectoryTool{sandbox: sandbox}
}

func (t *CreateDirectoryTool) Name() string {
	return "createDirectory"
}

func (t *CreateDirectoryTool) Description() string {
	return "Create a directory in the working directory, including missing parents. " +
		"Succeeds if it already exists."
}

func (t *CreateDirectoryTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"relativePath": tools.StringProperty("Directory to create, relative to the working directory"),
		},
		[]string{"relativePath"},
	)
}

func (t *CreateDirectoryTool) Execute(ctx context.Context, arguments json.RawMessage) (string, error) {
	var input struct {
		RelativePath string `json:"relativePath"`
	}
	if err := tools.DecodeArguments(arguments, &input); err != nil {
		return "", err
	}

	if err := t.sandbox.Mkdir(input.RelativePath); err != nil {
		return "", err
	}
	return fmt.Sprintf("Directory %s is ready", input.RelativePath), nil
}
