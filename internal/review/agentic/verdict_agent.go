package agentic

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/reviewloop/internal/llm"
)

// VerdictAgent runs after the fan-out and turns the aggregated agent
// output into an approve / needs-fixes / reject call. It is a second
// pass consumer, not part of the concurrent fan-out.
type VerdictAgent struct {
	findings  []Finding
	summaries map[string]string
}

func (a *VerdictAgent) Key() string { return "verdict" }

// SetContext hands the agent the merged findings and per-agent
// summaries gathered by the first pass.
func (a *VerdictAgent) SetContext(findings []Finding, summaries map[string]string) {
	a.findings = findings
	a.summaries = summaries
}

func (a *VerdictAgent) Execute(ctx context.Context, client llm.Client, p *Payload) (Result, error) {
	raw, err := client.Generate(ctx, a.buildPrompt(p))
	if err != nil {
		return Result{}, err
	}
	return a.parseOutput(raw), nil
}

func (a *VerdictAgent) buildPrompt(p *Payload) string {
	desc := p.Description
	if desc == "" {
		desc = "No description provided"
	}
	return fmt.Sprintf(`You are a RUTHLESS senior code reviewer who makes the final call on merge requests.
Your reputation depends on NOT letting bugs into production, but also NOT blocking good code.

ROLE: You are the last line of defense. Be paranoid but fair.

TASK: Analyze the findings from other review agents and determine the verdict.

OUTPUT FORMAT (STRICT JSON, no extra text):
{
    "verdict": "approve" | "needs_fixes" | "reject",
    "confidence": 0.0-1.0,
    "summary": "One sentence explaining the decision",
    "blocking_issues": ["List of issues that MUST be fixed before merge"],
    "suggestions": ["Nice-to-have improvements, not blocking"]
}

DECISION RULES:
1. REJECT if:
   - Security vulnerability (SQL injection, XSS, hardcoded secrets, etc.)
   - Will definitely cause runtime crash or data loss
   - Breaks existing tests or CI
   - Missing critical error handling that could crash production

2. NEEDS_FIXES if:
   - Missing tests for new functionality
   - Poor naming that hurts maintainability
   - Missing documentation for public APIs
   - Code duplication that should be refactored
   - > 3 warning-level issues

3. APPROVE if:
   - Code is functional and safe
   - Only minor style/preference issues
   - Tests are present or not needed
   - Changes are low-risk

BE RUTHLESS ON:
- Security issues (always REJECT)
- Missing error handling in critical paths
- Changes that break backward compatibility without migration

BE LENIENT ON:
- Style preferences (unless egregiously bad)
- Minor naming improvements
- Optional optimizations
- Documentation for internal code

---

MR TITLE: %s

MR DESCRIPTION:
%s

FINDINGS FROM OTHER AGENTS:
%s

AGENT SUMMARIES:
%s

CHANGED FILES: %d files
COMMIT MESSAGES:
%s

Now provide your verdict as JSON:`, p.Title, desc, a.formatFindings(), a.formatSummaries(), len(p.ChangedFiles), p.CommitsBlob(10))
}

func (a *VerdictAgent) formatFindings() string {
	if len(a.findings) == 0 {
		return "No issues found by other agents."
	}
	lines := make([]string, 0, len(a.findings))
	for _, f := range a.findings {
		lines = append(lines, fmt.Sprintf("- [WARNING] %s:%d - %s", f.Path, f.Line, f.Body))
	}
	return strings.Join(lines, "\n")
}

func (a *VerdictAgent) formatSummaries() string {
	if len(a.summaries) == 0 {
		return "No summaries available."
	}
	keys := make([]string, 0, len(a.summaries))
	for k := range a.summaries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	blocks := make([]string, 0, len(keys))
	for _, k := range keys {
		blocks = append(blocks, fmt.Sprintf("## %s\n%s", k, a.summaries[k]))
	}
	return strings.Join(blocks, "\n\n")
}

type verdictReport struct {
	Verdict        string   `json:"verdict"`
	Confidence     float64  `json:"confidence"`
	Summary        string   `json:"summary"`
	BlockingIssues []string `json:"blocking_issues"`
	Suggestions    []string `json:"suggestions"`
}

func (a *VerdictAgent) parseOutput(raw string) Result {
	text := strings.TrimSpace(raw)
	var report verdictReport
	if err := llm.DecodeStructured(text, &report); err != nil {
		return a.fallbackParse(text)
	}

	verdict := strings.ToLower(report.Verdict)
	if verdict == "" {
		verdict = "needs_fixes"
	}
	confidence := report.Confidence
	if confidence == 0 {
		confidence = 0.7
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	summary := report.Summary
	if summary == "" {
		summary = "Review completed."
	}

	emoji, label := verdictBadge(verdict)
	parts := []string{
		fmt.Sprintf("## %s Verdict: **%s**", emoji, label),
		fmt.Sprintf("*Confidence: %.0f%%*", confidence*100),
		"",
		summary,
	}
	if len(report.BlockingIssues) > 0 {
		parts = append(parts, "\n### 🚫 Blocking Issues")
		for _, issue := range report.BlockingIssues {
			parts = append(parts, "- "+issue)
		}
	}
	if len(report.Suggestions) > 0 {
		parts = append(parts, "\n### 💡 Suggestions (non-blocking)")
		for _, s := range report.Suggestions {
			parts = append(parts, "- "+s)
		}
	}

	var findings []Finding
	if verdict == "reject" {
		blocking := report.BlockingIssues
		if len(blocking) > 3 {
			blocking = blocking[:3]
		}
		for _, issue := range blocking {
			findings = append(findings, Finding{Body: "[BLOCKING] " + issue, Source: a.Key()})
		}
	}

	return Result{Key: a.Key(), Content: strings.Join(parts, "\n"), Success: true, Findings: findings}
}

// fallbackParse extracts a verdict by keyword when the reply is not
// valid JSON.
func (a *VerdictAgent) fallbackParse(text string) Result {
	lower := strings.ToLower(text)
	var emoji, label string
	switch {
	case strings.Contains(lower, "reject"):
		emoji, label = "❌", "REJECTED"
	case strings.Contains(lower, "approve") || strings.Contains(lower, "lgtm"):
		emoji, label = "✅", "APPROVED"
	default:
		emoji, label = "⚠️", "NEEDS FIXES"
	}
	if len(text) > 500 {
		text = text[:500]
	}
	return Result{
		Key:     a.Key(),
		Content: fmt.Sprintf("## %s Verdict: **%s**\n\n%s", emoji, label, text),
		Success: true,
	}
}

func verdictBadge(verdict string) (string, string) {
	switch verdict {
	case "approve":
		return "✅", "APPROVED"
	case "needs_fixes":
		return "⚠️", "NEEDS FIXES"
	case "reject":
		return "❌", "REJECTED"
	default:
		return "❓", strings.ToUpper(verdict)
	}
}
