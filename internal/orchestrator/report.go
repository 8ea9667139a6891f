package orchestrator

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	"github.com/benchforge/workbench/internal/agentroles"
	"github.com/benchforge/workbench/internal/models"
)

// collectArtifacts walks artifactsDir/<taskID> and reports every file
// found, relative paths kept as full paths the way the ported
// implementation does (callers display them as-is in the report).
func collectArtifacts(artifactsDir, taskID string) ([]agentroles.ArtifactSummary, error) {
	base := filepath.Join(artifactsDir, taskID)
	info, err := os.Stat(base)
	if err != nil || !info.IsDir() {
		return []agentroles.ArtifactSummary{}, nil
	}
	var out []agentroles.ArtifactSummary
	err = filepath.Walk(base, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		out = append(out, agentroles.ArtifactSummary{Path: path, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: collect artifacts: %w", err)
	}
	return out, nil
}

// writeRunReport renders report.md and report.html under
// <wsRoot>/outputs/<taskID> and returns their paths.
func writeRunReport(wsRoot, taskID, goal string, plan *models.Plan, steps []models.Step, artifacts []agentroles.ArtifactSummary) (mdPath, htmlPath string, err error) {
	outDir := filepath.Join(wsRoot, "outputs", taskID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", "", fmt.Errorf("orchestrator: create report dir: %w", err)
	}
	mdPath = filepath.Join(outDir, "report.md")
	htmlPath = filepath.Join(outDir, "report.html")

	var b strings.Builder
	fmt.Fprintf(&b, "# Run Report: %s\n\n", taskID)
	b.WriteString("## Goal\n")
	b.WriteString(goal + "\n\n")
	b.WriteString("## Plan Summary\n")
	if plan != nil {
		b.WriteString(plan.Summary + "\n\n")
	} else {
		b.WriteString("\n")
	}
	b.WriteString("## Steps\n")
	for _, s := range steps {
		fmt.Fprintf(&b, "- **%d. %s** (`%s`) — %s\n", s.Idx+1, s.Name, s.Tool, s.Status)
		if s.Error != "" {
			fmt.Fprintf(&b, "  - Error: %s\n", s.Error)
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
		return "", "", fmt.Errorf("orchestrator: write report.md: %w", err)
	}

	htmlBody := "<html><head><meta charset=\"utf-8\"><title>Run Report</title></head><body><pre>" +
		html.EscapeString(md) + "</pre></body></html>"
	if err := os.WriteFile(htmlPath, []byte(htmlBody), 0o644); err != nil {
		return "", "", fmt.Errorf("orchestrator: write report.html: %w", err)
	}

	return mdPath, htmlPath, nil
}
