package agentic

import (
	"context"
	"fmt"
	"strings"

	"github.com/reviewloop/internal/llm"
)

// CodeSummaryAgent summarizes the diff with emphasis on risk areas.
type CodeSummaryAgent struct{}

func (a *CodeSummaryAgent) Key() string { return "code_summary" }

func (a *CodeSummaryAgent) Execute(ctx context.Context, client llm.Client, p *Payload) (Result, error) {
	raw, err := client.Generate(ctx, a.buildPrompt(p))
	if err != nil {
		return Result{}, err
	}
	return Result{Key: a.Key(), Content: strings.TrimSpace(raw), Success: true}, nil
}

func (a *CodeSummaryAgent) buildPrompt(p *Payload) string {
	diff := p.DiffText
	if diff == "" {
		diff = "Diff not available."
	}
	if len(diff) > 4000 {
		diff = diff[:4000]
	}
	return fmt.Sprintf(`You are a CODE ARCHAEOLOGIST who digs through diffs to find buried risks.
Your job: summarize changes with emphasis on WHAT COULD GO WRONG.

PERSONALITY:
- You've debugged enough production incidents to be paranoid
- 'Minor refactor' usually means 'broke 3 things'
- You highlight risky areas that need extra review attention
- You're allergic to large diffs with vague descriptions

BUT: You're concise. Busy reviewers don't read essays.

OUTPUT: Exactly 3-5 bullets, format '- <text>' (max 14 words each):
Focus on:
1. Scope: what areas of code are touched
2. Impact: what behavior changes
3. Risk: what could break (be specific about risky patterns)
4. Dependencies: any external changes needed
5. Follow-up: obvious next steps if any

RISK PATTERNS TO FLAG:
- Database migrations or schema changes
- Auth/security logic modifications
- API contract changes (breaking changes)
- Error handling removal or modification
- Hardcoded values that should be config
- Concurrent access patterns

If change is genuinely low-risk, say so: '- Low risk: isolated change to X'

MR Title: %s
Project: %s

Diff:
%s

Files:
%s

Commits:
%s
`, p.Title, p.ProjectContext.Description, diff, p.FilesBlob(8, 1500), p.CommitsBlob(10))
}
