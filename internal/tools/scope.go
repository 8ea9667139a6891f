package tools

import "strings"

// Scope is the coarse permission domain a tool belongs to.
type Scope string

// Scope values, per spec.md §4.3.
const (
	ScopeShell        Scope = "shell"
	ScopeFSWrite      Scope = "fs_write"
	ScopeFSDelete     Scope = "fs_delete"
	ScopeFSRead       Scope = "fs_read"
	ScopeBrowserClick Scope = "browser_click"
	ScopeNetwork      Scope = "network"
	ScopeMCP          Scope = "mcp"
	ScopeOther        Scope = "other"
)

// ScopeForTool maps a tool name to its coarse permission scope, per the
// pattern table in spec.md §4.3.
func ScopeForTool(name string) Scope {
	switch {
	case name == "shell.exec":
		return ScopeShell
	case strings.HasSuffix(name, ".write_text"), strings.HasSuffix(name, ".mkdir"),
		strings.HasSuffix(name, ".move"), name == "ppt.render":
		return ScopeFSWrite
	case strings.HasSuffix(name, ".delete"):
		return ScopeFSDelete
	case strings.HasSuffix(name, ".list"), strings.HasSuffix(name, ".read_text"), strings.HasSuffix(name, ".stat"):
		return ScopeFSRead
	case name == "browser.click":
		return ScopeBrowserClick
	case strings.HasPrefix(name, "web."), strings.HasPrefix(name, "browser."):
		return ScopeNetwork
	case strings.HasPrefix(name, "mcp/"):
		return ScopeMCP
	default:
		return ScopeOther
	}
}
