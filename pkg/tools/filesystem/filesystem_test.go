package filesystem

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/security/workspace"
	"github.com/entrhq/scout/pkg/types"
)

func setup(t *testing.T, opts ...workspace.Option) (*tools.Registry, *workspace.Sandbox) {
	t.Helper()
	sb, err := workspace.NewSandbox(opts...)
	require.NoError(t, err)
	r := tools.NewRegistry(nil)
	require.NoError(t, r.Register(Tools(sb)...))
	return r, sb
}

func run(t *testing.T, r *tools.Registry, name string, args map[string]string) types.ToolCall {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	call := r.Run(context.Background(), types.ToolCallRequest{ID: "call_" + name, Name: name, Arguments: raw})
	require.True(t, call.Finished())
	return call
}

func TestToolsWithoutWorkingDirectory(t *testing.T) {
	r, _ := setup(t)

	call := run(t, r, "getWorkingDirectory", nil)
	require.NotNil(t, call.Output)
	assert.Contains(t, *call.Output, "No working directory is set")

	for _, tc := range []struct {
		tool string
		args map[string]string
	}{
		{"readFile", map[string]string{"relativePath": "notes.txt"}},
		{"writeFile", map[string]string{"relativePath": "notes.txt", "content": "x"}},
		{"listDirectory", map[string]string{}},
		{"createDirectory", map[string]string{"relativePath": "docs"}},
	} {
		call := run(t, r, tc.tool, tc.args)
		require.NotNil(t, call.Error, tc.tool)
		assert.Equal(t, types.ToolErrorResource, call.Error.Kind, tc.tool)
		assert.Contains(t, call.Error.Message, "no working directory set", tc.tool)
	}
}

func TestSetWorkingDirectory(t *testing.T) {
	r, sb := setup(t)
	dir := t.TempDir()

	call := run(t, r, "setWorkingDirectory", map[string]string{"path": dir})
	require.NotNil(t, call.Output)

	root, ok := sb.Root()
	require.True(t, ok)
	assert.Contains(t, *call.Output, root)

	call = run(t, r, "getWorkingDirectory", nil)
	require.NotNil(t, call.Output)
	assert.Equal(t, "Working directory: "+root, *call.Output)

	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	call = run(t, r, "setWorkingDirectory", map[string]string{"path": file})
	require.NotNil(t, call.Error)
	assert.Equal(t, types.ToolErrorResource, call.Error.Kind)

	stillRoot, _ := sb.Root()
	assert.Equal(t, root, stillRoot)
}

func TestWriteReadListRoundTrip(t *testing.T) {
	r, sb := setup(t)
	_, err := sb.SetRoot(t.TempDir())
	require.NoError(t, err)

	call := run(t, r, "writeFile", map[string]string{"relativePath": "notes/2024/today.md", "content": "# Today\nhello"})
	require.NotNil(t, call.Output, "%+v", call.Error)
	assert.Equal(t, "Wrote 13 bytes to notes/2024/today.md", *call.Output)

	call = run(t, r, "readFile", map[string]string{"relativePath": "notes/2024/today.md"})
	require.NotNil(t, call.Output)
	assert.Equal(t, "# Today\nhello", *call.Output)

	call = run(t, r, "createDirectory", map[string]string{"relativePath": "notes/archive"})
	require.NotNil(t, call.Output)

	call = run(t, r, "listDirectory", map[string]string{"relativePath": "notes"})
	require.NotNil(t, call.Output)
	lines := strings.Split(*call.Output, "\n")
	assert.Equal(t, "notes (2 entries):", lines[0])
	assert.Contains(t, *call.Output, "notes/2024/")
	assert.Contains(t, *call.Output, "notes/archive/")

	call = run(t, r, "listDirectory", map[string]string{"relativePath": "notes/archive"})
	require.NotNil(t, call.Output)
	assert.Equal(t, "notes/archive is empty", *call.Output)
}

func TestFileToolsRejectEscapes(t *testing.T) {
	r, sb := setup(t)
	_, err := sb.SetRoot(t.TempDir())
	require.NoError(t, err)

	call := run(t, r, "readFile", map[string]string{"relativePath": "../outside.txt"})
	require.NotNil(t, call.Error)
	assert.Equal(t, types.ToolErrorResource, call.Error.Kind)

	call = run(t, r, "writeFile", map[string]string{"relativePath": "a/../../outside.txt", "content": "x"})
	require.NotNil(t, call.Error)
	assert.Equal(t, types.ToolErrorResource, call.Error.Kind)

	call = run(t, r, "listDirectory", map[string]string{"relativePath": ".."})
	require.NotNil(t, call.Error)
	assert.Equal(t, types.ToolErrorResource, call.Error.Kind)
}

func TestReadFileTooLarge(t *testing.T) {
	r, sb := setup(t, workspace.WithMaxFileSize(8))
	dir := t.TempDir()
	_, err := sb.SetRoot(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.txt"), []byte("0123456789"), 0o644))

	call := run(t, r, "readFile", map[string]string{"relativePath": "big.txt"})
	require.NotNil(t, call.Error)
	assert.Nil(t, call.Output)
	assert.Equal(t, types.ToolErrorResource, call.Error.Kind)
	assert.Contains(t, call.Error.Message, "too large")
}

func TestFileToolSchemas(t *testing.T) {
	r, _ := setup(t)

	call := run(t, r, "writeFile", map[string]string{"relativePath": "a.txt"})
	require.NotNil(t, call.Error)
	assert.Equal(t, types.ToolErrorValidation, call.Error.Kind)

	call = run(t, r, "readFile", map[string]string{"path": "a.txt"})
	require.NotNil(t, call.Error)
	assert.Equal(t, types.ToolErrorValidation, call.Error.Kind)
}
