package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/security/workspace"
)

// ListDirectoryTool lists the immediate entries of a directory.
type ListDirectoryTool struct {
	sandbox *workspace.Sandbox
}

// NewListDirectoryTool creates a new listDirectory tool.
func NewListDirectoryTool(sandbox *workspace.Sandbox) *ListDirectoryTool {
	return &ListDirectoryTool{sandbox: sandbox}
}

func (t *ListDirectoryTool) Name() string {
	return "listDirectory"
}

func (t *ListDirectoryTool) Description() string {
	return "List the files and directories directly inside a directory of the working directory. " +
		"Omit relativePath to list the working directory itself."
}

func (t *ListDirectoryTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"relativePath": tools.StringProperty("Directory to list, relative to the working directory"),
		},
		nil,
	)
}

func (t *ListDirectoryTool) Execute(ctx context.Context, arguments json.RawMessage) (string, error) {
	var input struct {
		RelativePath string `json:"relativePath"`
	}
	if err := tools.DecodeArguments(arguments, &input); err != nil {
		return "", err
	}

	entries, err := t.sandbox.List(input.RelativePath)
	if err != nil {
		return "", err
	}

	dir := input.RelativePath
	if dir == "" {
		dir = "."
	}
	if len(entries) == 0 {
		return fmt.Sprintf("%s is empty", dir), nil
	}
	return formatEntries(dir, entries), nil
}

func formatEntries(dir string, entries []workspace.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d entries):\n", dir, len(entries))
	for _, e := range entries {
		switch e.Type {
		case workspace.EntryDirectory:
			fmt.Fprintf(&b, "  %s/\n", e.RelativePath)
		case workspace.EntryFile:
			fmt.Fprintf(&b, "  %s (%d bytes)\n", e.RelativePath, e.Size)
		default:
			fmt.Fprintf(&b, "  %s [%s]\n", e.RelativePath, e.Type)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
