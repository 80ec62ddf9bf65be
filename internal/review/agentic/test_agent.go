package agentic

import (
	"context"
	"fmt"

	"github.com/reviewloop/internal/llm"
)

// TestCoverageAgent evaluates whether the changes are covered by
// automated tests and proposes specific additions.
type TestCoverageAgent struct{}

func (a *TestCoverageAgent) Key() string { return "test_coverage" }

func (a *TestCoverageAgent) Execute(ctx context.Context, client llm.Client, p *Payload) (Result, error) {
	raw, err := client.Generate(ctx, a.buildPrompt(p))
	if err != nil {
		return Result{}, err
	}
	return parseStructured(a.Key(), raw), nil
}

func (a *TestCoverageAgent) buildPrompt(p *Payload) string {
	return fmt.Sprintf(`You evaluate whether the code changes are covered by automated tests.
Identify unit, integration, or contract tests that were added or need to be added.
Call out risk areas that lack coverage and suggest specific test ideas.

OUTPUT FORMAT (STRICT JSON, no extra text):
{
  "summary": ["existing coverage in one or two bullets"],
  "gaps": ["risk areas with no coverage"],
  "recommended_tests": ["concrete test to add"],
  "findings": [{"path": "relative/file/path", "line": 30, "comment": "untested branch or risk"}]
}
Line numbers refer to the numbered file listings below. If coverage is
adequate, return empty gaps and findings and a summary saying there is
nothing to report.

Testing Standards: %s

Changed Files:
%s

Commit Messages:
%s
`, p.ProjectContext.TestingStandards, p.FilesWithLineNumbers(6, 400), p.CommitsBlob(10))
}
