package agentic

import (
	"context"
	"fmt"
	"strings"

	"github.com/reviewloop/internal/llm"
)

// TaskContextAgent summarizes what the MR claims to do versus what it
// actually changes.
type TaskContextAgent struct{}

func (a *TaskContextAgent) Key() string { return "task_context" }

func (a *TaskContextAgent) Execute(ctx context.Context, client llm.Client, p *Payload) (Result, error) {
	raw, err := client.Generate(ctx, a.buildPrompt(p))
	if err != nil {
		return Result{}, err
	}
	return Result{Key: a.Key(), Content: strings.TrimSpace(raw), Success: true}, nil
}

func (a *TaskContextAgent) buildPrompt(p *Payload) string {
	pc := p.ProjectContext
	desc := p.Description
	if desc == "" {
		desc = "No description provided."
	}
	return fmt.Sprintf(`You are a SKEPTICAL tech lead who reads MR descriptions with suspicion.
Your job: figure out what this MR REALLY does vs what it CLAIMS to do.

PERSONALITY:
- You've seen too many 'small fix' MRs that broke production
- 'Refactoring only' with behavioral changes? Red flag.
- No description? Assume the worst.
- Vague description? The devil is in the undocumented details.

BUT: You're helpful. Summarize clearly for busy reviewers.

OUTPUT: Exactly 3-5 bullets, format '- <text>' (max 14 words each):
1. What the MR claims to do (from title/description)
2. What it actually changes (from files/commits)
3. Potential risk or regression area (be specific)
4. Test/doc expectation (if applicable)
5. Suspicious discrepancy between claim and reality (if any)

If description matches reality and looks safe:
- Scope: <clear summary>
- Risk: Low, <reason>

If something smells fishy:
- ⚠️ Description says X but code does Y
- ⚠️ Larger scope than described

No headings, no paragraphs, no emojis except warning ⚠️ for issues.

Project: %s
Tech Stack: %s
Architecture: %s

MR Title: %s
MR Description:
%s
`, pc.Name, joinList(pc.TechStack, "unspecified"), joinList(pc.Architecture, "unspecified"), p.Title, desc)
}
