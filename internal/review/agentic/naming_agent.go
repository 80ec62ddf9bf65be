package agentic

import (
	"context"
	"fmt"

	"github.com/reviewloop/internal/llm"
)

// NamingQualityAgent reviews identifiers and inline documentation and
// reports line-anchored findings as structured JSON.
type NamingQualityAgent struct{}

func (a *NamingQualityAgent) Key() string { return "naming_quality" }

func (a *NamingQualityAgent) Execute(ctx context.Context, client llm.Client, p *Payload) (Result, error) {
	raw, err := client.Generate(ctx, a.buildPrompt(p))
	if err != nil {
		return Result{}, err
	}
	return parseStructured(a.Key(), raw), nil
}

func (a *NamingQualityAgent) buildPrompt(p *Payload) string {
	return fmt.Sprintf(`You review naming, function signatures, and inline documentation.
List any identifiers that are unclear, misleading, or violate the project's guidelines.
Highlight missing docstrings, parameter descriptions, or mismatched behavior.

OUTPUT FORMAT (STRICT JSON, no extra text):
{
  "summary": ["short bullet", "..."],
  "findings": [{"path": "relative/file/path", "line": 12, "comment": "what is wrong and the fix"}]
}
Line numbers refer to the numbered file listings below. Only report
lines you can point at. If everything looks good, return an empty
findings list and a summary saying there is nothing to report.

Coding Guidelines:
%s

Changed Files:
%s
`, p.ProjectContext.CodingGuidelines, p.FilesWithLineNumbers(6, 400))
}
