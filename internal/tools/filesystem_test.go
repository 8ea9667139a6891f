package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testCtx(t *testing.T) *Context {
	t.Helper()
	dir := t.TempDir()
	return &Context{Context: context.Background(), WorkspaceRoot: dir, TaskID: "t1", StepID: "s1"}
}

func TestFsWriteThenReadText(t *testing.T) {
	ctx := testCtx(t)
	_, err := fsWriteText(ctx, map[string]any{"path": "notes.md", "content": "hello"})
	require.NoError(t, err)

	res, err := fsReadText(ctx, map[string]any{"path": "notes.md"})
	require.NoError(t, err)
	require.Equal(t, "hello", res["content"])
}

func TestFsWriteNormalizesWorkspacePrefix(t *testing.T) {
	ctx := testCtx(t)
	_, err := fsWriteText(ctx, map[string]any{"path": "workspace/notes.md", "content": "hi"})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(ctx.WorkspaceRoot, "notes.md"))
	require.NoError(t, err, "workspace/ prefix should be stripped, not create a nested workspace dir")
}

func TestResolvePathRejectsEscape(t *testing.T) {
	ctx := testCtx(t)
	_, err := resolvePath(ctx, "../../etc/passwd")
	require.Error(t, err)
}

func TestFsDeleteMissingIsOkNotDeleted(t *testing.T) {
	ctx := testCtx(t)
	res, err := fsDelete(ctx, map[string]any{"path": "nope.txt"})
	require.NoError(t, err)
	require.Equal(t, true, res["ok"])
	require.Equal(t, false, res["deleted"])
}

func TestRegistryRunValidatesArgs(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterFilesystem(r))

	ctx := testCtx(t)
	_, err := r.Run(ctx, "filesystem.read_text", map[string]any{})
	require.Error(t, err, "path is required by schema")
}

func TestRegistryRegisterCollision(t *testing.T) {
	r := NewRegistry()
	spec := Spec{Name: "dup", Handler: func(ctx *Context, args map[string]any) (map[string]any, error) { return nil, nil }}
	require.NoError(t, r.Register(spec))
	require.Error(t, r.Register(spec))
}
