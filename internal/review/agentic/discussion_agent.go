package agentic

import (
	"context"
	"fmt"
	"strings"

	"github.com/reviewloop/internal/llm"
)

// DiscussionAgent replies inside an existing review thread when a
// developer responds to one of the posted notes.
type DiscussionAgent struct{}

func (a *DiscussionAgent) Key() string { return "discussion" }

// GenerateReply produces a short thread reply from the original review
// note and the developer's response.
func (a *DiscussionAgent) GenerateReply(ctx context.Context, client llm.Client, originalNote, developerReply string) (string, error) {
	var parts []string
	if note := strings.TrimSpace(originalNote); note != "" {
		if len(note) > 4000 {
			note = note[:4000]
		}
		parts = append(parts, "Original review note:\n"+note)
	}
	if reply := strings.TrimSpace(developerReply); reply != "" {
		if len(reply) > 4000 {
			reply = reply[:4000]
		}
		parts = append(parts, "Developer reply:\n"+reply)
	}
	prompt := fmt.Sprintf(`You are an AI code review assistant collaborating in a GitLab MR thread.
Respond concisely and constructively. If you were wrong, acknowledge and correct.
If a code change is needed, propose the minimal fix with a short snippet.
%s

Your response (aim for <= 8 lines):`, strings.Join(parts, "\n"))

	raw, err := client.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}
