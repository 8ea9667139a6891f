package agentloop

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	"github.com/benchforge/workbench/internal/llm"
)

// artifactSummary mirrors internal/agentroles.ArtifactSummary; kept as
// its own small type here since the two run backends report
// independently and neither needs to import the other's package for it.
type artifactSummary struct {
	Path string
	Size int64
}

// collectArtifacts walks artifactsDir/<taskID> the same way
// internal/orchestrator's report writer does.
func collectArtifacts(artifactsDir, taskID string) ([]artifactSummary, error) {
	base := filepath.Join(artifactsDir, taskID)
	info, err := os.Stat(base)
	if err != nil || !info.IsDir() {
		return []artifactSummary{}, nil
	}
	var out []artifactSummary
	err = filepath.Walk(base, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		out = append(out, artifactSummary{Path: path, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("agentloop: collect artifacts: %w", err)
	}
	return out, nil
}

// writeRunReport renders report.md/report.html under
// <wsRoot>/outputs/<taskID>, adding a "Backend" section naming the
// run/thread id so a reader can tell an agent-loop run apart from a
// classic one, grounded on the ported implementation's _write_uak_report.
func writeRunReport(wsRoot, taskID, runID, goal string, messages []llm.Message, artifacts []artifactSummary) (mdPath, htmlPath string, err error) {
	outDir := filepath.Join(wsRoot, "outputs", taskID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", "", fmt.Errorf("agentloop: create report dir: %w", err)
	}
	mdPath = filepath.Join(outDir, "report.md")
	htmlPath = filepath.Join(outDir, "report.html")

	var b strings.Builder
	fmt.Fprintf(&b, "# Run Report: %s\n\n", taskID)
	b.WriteString("## Backend\n")
	fmt.Fprintf(&b, "- runtime: agent-loop\n- run_id: %s\n\n", runID)
	b.WriteString("## Goal\n")
	b.WriteString(goal + "\n\n")
	b.WriteString("## Transcript\n")
	for _, m := range messages {
		switch m.Role {
		case llm.RoleAssistant:
			if len(m.ToolCalls) > 0 {
				for _, tc := range m.ToolCalls {
					fmt.Fprintf(&b, "- **assistant called** `%s` (%s)\n", tc.Name, tc.ID)
				}
			}
			if m.Content != "" {
				fmt.Fprintf(&b, "- **assistant**: %s\n", m.Content)
			}
		case llm.RoleTool:
			fmt.Fprintf(&b, "- **tool %s**: %s\n", m.Name, m.Content)
		case llm.RoleUser:
			fmt.Fprintf(&b, "- **user**: %s\n", m.Content)
		}
	}
	b.WriteString("\n## Artifacts\n")
	if len(artifacts) == 0 {
		b.WriteString("_No artifacts generated._\n")
	} else {
		for _, a := range artifacts {
			fmt.Fprintf(&b, "- `%s` (%d bytes)\n", a.Path, a.Size)
		}
	}

	md := b.String()
	if err := os.WriteFile(mdPath, []byte(md), 0o644); err != nil {
		return "", "", fmt.Errorf("agentloop: write report.md: %w", err)
	}

	htmlBody := "<html><head><meta charset=\"utf-8\"><title>Run Report</title></head><body><pre>" +
		html.EscapeString(md) + "</pre></body></html>"
	if err := os.WriteFile(htmlPath, []byte(htmlBody), 0o644); err != nil {
		return "", "", fmt.Errorf("agentloop: write report.html: %w", err)
	}

	return mdPath, htmlPath, nil
}
