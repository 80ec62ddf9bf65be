package agentic

import (
	"context"
	"strings"

	"github.com/reviewloop/internal/llm"
)

// Agent is one independent review perspective. Execute returns an
// error only for transport-level failures worth retrying; parse
// problems degrade inside the Result instead.
type Agent interface {
	Key() string
	Execute(ctx context.Context, client llm.Client, p *Payload) (Result, error)
}

// structuredReport is the JSON shape requested from agents that emit
// machine-readable output.
type structuredReport struct {
	Summary          []string          `json:"summary"`
	Gaps             []string          `json:"gaps"`
	RecommendedTests []string          `json:"recommended_tests"`
	Findings         []structuredIssue `json:"findings"`
}

type structuredIssue struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Comment string `json:"comment"`
}

// parseStructured decodes an agent reply that was asked for JSON. Non
// JSON replies degrade to raw text content with no findings. Malformed
// findings entries are dropped; valid ones survive. A report with no
// findings and a summary that says there is nothing to flag suppresses
// the content so no vacuous section is posted.
func parseStructured(key, raw string) Result {
	text := strings.TrimSpace(raw)
	var report structuredReport
	if err := llm.DecodeStructured(text, &report); err != nil {
		return Result{Key: key, Content: text, Success: true}
	}

	findings := make([]Finding, 0, len(report.Findings))
	for _, f := range report.Findings {
		if f.Path == "" || f.Line <= 0 || strings.TrimSpace(f.Comment) == "" {
			continue
		}
		findings = append(findings, Finding{Path: f.Path, Line: f.Line, Body: f.Comment, Source: key})
	}

	content := renderReport(report)
	if len(findings) == 0 && nothingToReport(report.Summary) {
		content = ""
	}
	return Result{Key: key, Content: content, Success: true, Findings: findings}
}

func renderReport(report structuredReport) string {
	var sections []string
	if bullets := bulletList(report.Summary); bullets != "" {
		sections = append(sections, bullets)
	}
	if bullets := bulletList(report.Gaps); bullets != "" {
		sections = append(sections, "**Gaps**\n"+bullets)
	}
	if bullets := bulletList(report.RecommendedTests); bullets != "" {
		sections = append(sections, "**Recommended Tests**\n"+bullets)
	}
	return strings.Join(sections, "\n\n")
}

func bulletList(items []string) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		lines = append(lines, "- "+item)
	}
	return strings.Join(lines, "\n")
}

func nothingToReport(summary []string) bool {
	if len(summary) == 0 {
		return false
	}
	joined := strings.ToLower(strings.Join(summary, " "))
	for _, phrase := range []string{"nothing to report", "no issues", "looks good", "no concerns"} {
		if strings.Contains(joined, phrase) {
			return true
		}
	}
	return false
}

func joinList(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, ", ")
}
