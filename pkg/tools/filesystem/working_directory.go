package filesystem

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/security/workspace"
)

// GetWorkingDirectoryTool reports the current sandbox root.
type GetWorkingDirectoryTool struct {
	sandbox *workspace.Sandbox
}

// NewGetWorkingDirectoryTool creates a new getWorkingDirectory tool.
func NewGetWorkingDirectoryTool(sandbox *workspace.Sandbox) *GetWorkingDirectoryTool {
	return &GetWorkingDirectoryTool{sandbox: sandbox}
}

func (t *GetWorkingDirectoryTool) Name() string {
	return "getWorkingDirectory"
}

func (t *GetWorkingDirectoryTool) Description() string {
	return "Return the working directory that file tools operate in, if one has been set."
}

func (t *GetWorkingDirectoryTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(nil, nil)
}

func (t *GetWorkingDirectoryTool) Execute(ctx context.Context, arguments json.RawMessage) (string, error) {
	root, ok := t.sandbox.Root()
	if !ok {
		return "No working directory is set. Ask the user to choose one, or use setWorkingDirectory.", nil
	}
	return "Working directory: " + root, nil
}

// SetWorkingDirectoryTool changes the sandbox root.
type SetWorkingDirectoryTool struct {
	sandbox *workspace.Sandbox
}

// NewSetWorkingDirectoryTool creates a new setWorkingDirectory tool.
func NewSetWorkingDirectoryTool(sandbox *workspace.Sandbox) *SetWorkingDirectoryTool {
	return &SetWorkingDirectoryTool{sandbox: sandbox}
}

func (t *SetWorkingDirectoryTool) Name() string {
	return "setWorkingDirectory"
}

func (t *SetWorkingDirectoryTool) Description() string {
	return "Set the working directory for file tools. The path must be an existing directory. " +
		"All later file paths are relative to it."
}

func (t *SetWorkingDirectoryTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"path": tools.StringProperty("Absolute path of an existing directory"),
		},
		[]string{"path"},
	)
}

func (t *SetWorkingDirectoryTool) Execute(ctx context.Context, arguments json.RawMessage) (string, error) {
	var input struct {
		Path string `json:"path"`
	}
	if err := tools.DecodeArguments(arguments, &input); err != nil {
		return "", err
	}

	root, err := t.sandbox.SetRoot(input.Path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Working directory set to %s", root), nil
}
