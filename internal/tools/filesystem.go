package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// normalizeRelPath strips leading "./" and a conceptual "workspace/"
// prefix models sometimes prepend, so a path like "workspace/notes.md"
// resolves inside the workspace root rather than creating a nested
// "workspace" directory.
func normalizeRelPath(rel string) string {
	s := strings.TrimSpace(rel)
	if s == "" {
		return "."
	}
	s = strings.ReplaceAll(s, "\\", "/")
	for strings.HasPrefix(s, "./") {
		s = s[2:]
	}
	s = strings.TrimPrefix(s, "workspace/")
	if s == "" {
		return "."
	}
	return s
}

// resolvePath confines rel to ctx.WorkspaceRoot, rejecting any path
// that would escape it via ".." or an absolute override.
func resolvePath(ctx *Context, rel string) (string, error) {
	root, err := filepath.Abs(ctx.WorkspaceRoot)
	if err != nil {
		return "", err
	}
	joined := filepath.Join(root, normalizeRelPath(rel))
	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", rel)
	}
	return joined, nil
}

func relToWorkspace(ctx *Context, abs string) string {
	root, _ := filepath.Abs(ctx.WorkspaceRoot)
	r, err := filepath.Rel(root, abs)
	if err != nil {
		return abs
	}
	return r
}

// RegisterFilesystem adds the filesystem.* tool family, grounded on the
// original orchestrator's filesystem tool module.
func RegisterFilesystem(r *Registry) error {
	tools := []Spec{
		{
			Name:        "filesystem.list",
			Description: "List files/folders under the workspace.",
			InputSchema: schemaObj(map[string]any{
				"path":           strProp("relative path under workspace"),
				"recursive":      boolProp(false),
				"include_hidden": boolProp(false),
			}, nil),
			Handler: fsList,
		},
		{
			Name:        "filesystem.read_text",
			Description: "Read a UTF-8 text file (truncates large files).",
			InputSchema: schemaObj(map[string]any{
				"path":      strProp(""),
				"max_bytes": intProp(200000),
			}, []string{"path"}),
			Handler: fsReadText,
		},
		{
			Name:        "filesystem.write_text",
			Description: "Write (or append) a UTF-8 text file under workspace.",
			InputSchema: schemaObj(map[string]any{
				"path":    strProp(""),
				"content": strProp(""),
				"append":  boolProp(false),
			}, []string{"path", "content"}),
			Handler: fsWriteText,
			Risky:   true,
		},
		{
			Name:        "filesystem.mkdir",
			Description: "Create a directory under workspace.",
			InputSchema: schemaObj(map[string]any{
				"path":      strProp(""),
				"exist_ok": boolProp(true),
			}, []string{"path"}),
			Handler: fsMkdir,
			Risky:   true,
		},
		{
			Name:        "filesystem.move",
			Description: "Move/rename a file or folder within workspace.",
			InputSchema: schemaObj(map[string]any{
				"src":       strProp(""),
				"dst":       strProp(""),
				"overwrite": boolProp(false),
			}, []string{"src", "dst"}),
			Handler: fsMove,
			Risky:   true,
		},
		{
			Name:        "filesystem.delete",
			Description: "Delete a file or folder under workspace.",
			InputSchema: schemaObj(map[string]any{
				"path":      strProp(""),
				"recursive": boolProp(false),
			}, []string{"path"}),
			Handler: fsDelete,
			Risky:   true,
		},
		{
			Name:        "filesystem.stat",
			Description: "Get file/folder metadata.",
			InputSchema: schemaObj(map[string]any{
				"path": strProp(""),
			}, []string{"path"}),
			Handler: fsStat,
		},
	}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func fsList(ctx *Context, args map[string]any) (map[string]any, error) {
	rel, _ := args["path"].(string)
	if rel == "" {
		rel = "."
	}
	recursive, _ := args["recursive"].(bool)
	includeHidden, _ := args["include_hidden"].(bool)

	p, err := resolvePath(ctx, rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}

	var items []map[string]any
	if info.IsDir() {
		if recursive {
			err = filepath.Walk(p, func(path string, fi os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if path == p {
					return nil
				}
				name := fi.Name()
				if !includeHidden && strings.HasPrefix(name, ".") {
					if fi.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
				item := map[string]any{"path": relToWorkspace(ctx, path), "type": "file"}
				if fi.IsDir() {
					item["type"] = "dir"
				} else {
					item["size"] = fi.Size()
				}
				items = append(items, item)
				return nil
			})
			if err != nil {
				return nil, err
			}
		} else {
			entries, err := os.ReadDir(p)
			if err != nil {
				return nil, err
			}
			for _, e := range entries {
				if !includeHidden && strings.HasPrefix(e.Name(), ".") {
					continue
				}
				item := map[string]any{"path": relToWorkspace(ctx, filepath.Join(p, e.Name())), "type": "file"}
				if e.IsDir() {
					item["type"] = "dir"
				} else if fi, err := e.Info(); err == nil {
					item["size"] = fi.Size()
				}
				items = append(items, item)
			}
		}
	} else {
		items = append(items, map[string]any{"path": relToWorkspace(ctx, p), "type": "file", "size": info.Size()})
	}
	return map[string]any{"ok": true, "items": items}, nil
}

func fsReadText(ctx *Context, args map[string]any) (map[string]any, error) {
	rel, _ := args["path"].(string)
	maxBytes := 200_000
	if v, ok := args["max_bytes"].(float64); ok {
		maxBytes = int(v)
	}
	p, err := resolvePath(ctx, rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	truncated := false
	if len(data) > maxBytes {
		data = data[:maxBytes]
		truncated = true
	}
	return map[string]any{"ok": true, "path": rel, "truncated": truncated, "content": string(data)}, nil
}

func fsWriteText(ctx *Context, args map[string]any) (map[string]any, error) {
	rel, _ := args["path"].(string)
	content, _ := args["content"].(string)
	appendMode, _ := args["append"].(bool)
	p, err := resolvePath(ctx, rel)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(p, flags, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	n, err := f.WriteString(content)
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "path": rel, "bytes": n}, nil
}

func fsMkdir(ctx *Context, args map[string]any) (map[string]any, error) {
	rel, _ := args["path"].(string)
	existOk := true
	if v, ok := args["exist_ok"].(bool); ok {
		existOk = v
	}
	p, err := resolvePath(ctx, rel)
	if err != nil {
		return nil, err
	}
	if !existOk {
		if _, err := os.Stat(p); err == nil {
			return nil, fmt.Errorf("already exists: %s", rel)
		}
	}
	if err := os.MkdirAll(p, 0o755); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "path": rel}, nil
}

func fsMove(ctx *Context, args map[string]any) (map[string]any, error) {
	src, _ := args["src"].(string)
	dst, _ := args["dst"].(string)
	overwrite, _ := args["overwrite"].(bool)

	sp, err := resolvePath(ctx, src)
	if err != nil {
		return nil, err
	}
	dp, err := resolvePath(ctx, dst)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dp), 0o755); err != nil {
		return nil, err
	}
	if _, err := os.Stat(dp); err == nil {
		if !overwrite {
			return nil, fmt.Errorf("destination exists: %s", dst)
		}
		if err := os.RemoveAll(dp); err != nil {
			return nil, err
		}
	}
	if err := os.Rename(sp, dp); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "src": src, "dst": dst}, nil
}

func fsDelete(ctx *Context, args map[string]any) (map[string]any, error) {
	rel, _ := args["path"].(string)
	recursive, _ := args["recursive"].(bool)
	p, err := resolvePath(ctx, rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return map[string]any{"ok": true, "deleted": false, "path": rel}, nil
	}
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		if recursive {
			err = os.RemoveAll(p)
		} else {
			err = os.Remove(p)
		}
	} else {
		err = os.Remove(p)
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "deleted": true, "path": rel}, nil
}

func fsStat(ctx *Context, args map[string]any) (map[string]any, error) {
	rel, _ := args["path"].(string)
	p, err := resolvePath(ctx, rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"ok":     true,
		"path":   rel,
		"is_dir": info.IsDir(),
		"size":   info.Size(),
		"mtime":  info.ModTime().Unix(),
	}, nil
}
