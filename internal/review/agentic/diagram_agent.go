package agentic

import (
	"context"
	"fmt"
	"strings"

	"github.com/reviewloop/internal/llm"
)

// DiagramAgent asks for a Mermaid diagram of the changed components.
type DiagramAgent struct{}

func (a *DiagramAgent) Key() string { return "architecture_diagram" }

func (a *DiagramAgent) Execute(ctx context.Context, client llm.Client, p *Payload) (Result, error) {
	raw, err := client.Generate(ctx, a.buildPrompt(p))
	if err != nil {
		return Result{}, err
	}
	return Result{Key: a.Key(), Content: ensureMermaidFence(raw), Success: true}, nil
}

func (a *DiagramAgent) buildPrompt(p *Payload) string {
	return fmt.Sprintf(`You are a system designer. Explain MR changes with a valid Mermaid diagram.
STRICT rules:
- Return ONLY a Mermaid code block, nothing else.
- Prefer 'graph TD' for components or 'sequenceDiagram' for interactions.
- Use concise node names, show data flow directions, highlight changed areas.
- Do not invent components beyond what files imply.

Project Architecture Notes:
%s

Changed Files:
%s
`, joinList(p.ProjectContext.Architecture, "unspecified"), p.FilesBlob(12, 800))
}

// ensureMermaidFence wraps bare diagram text in a mermaid code block
// when the model forgot the fence.
func ensureMermaidFence(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.Contains(strings.ToLower(text), "```mermaid") {
		return text
	}
	return fmt.Sprintf("```mermaid\n%s\n```", text)
}
