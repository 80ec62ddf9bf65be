// Package tagging assigns merge-request labels from a configured
// candidate set using the LLM backend.
package tagging

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/reviewloop/internal/llm"
	"github.com/reviewloop/internal/review"
)

// Classifier picks labels for one merge request. Classification is
// best effort; an empty result is always a valid outcome.
type Classifier interface {
	Classify(ctx context.Context, in review.Input, candidates []string) []string
}

// LLMClassifier implements Classifier with a single prompt asking for
// a JSON array of labels.
type LLMClassifier struct {
	client    llm.Client
	maxLabels int
}

// NewLLMClassifier builds a classifier capped at maxLabels per MR.
func NewLLMClassifier(client llm.Client, maxLabels int) *LLMClassifier {
	if maxLabels < 1 {
		maxLabels = 1
	}
	return &LLMClassifier{client: client, maxLabels: maxLabels}
}

func (c *LLMClassifier) Classify(ctx context.Context, in review.Input, candidates []string) []string {
	if c.client == nil || !c.client.Available() || len(candidates) == 0 {
		return nil
	}
	raw, err := c.client.Generate(ctx, c.buildPrompt(in, candidates))
	if err != nil {
		log.Warn().Err(err).Msg("Label classification failed")
		return nil
	}
	return normalizeLabels(parseLabels(raw), candidates, c.maxLabels)
}

func (c *LLMClassifier) buildPrompt(in review.Input, candidates []string) string {
	var files strings.Builder
	for i, f := range in.ChangedFiles {
		if i >= 10 {
			break
		}
		files.WriteString(fmt.Sprintf("File: %s\nContent:\n%s\n\n", f.Path, f.Content))
	}
	var commits strings.Builder
	for i, m := range in.CommitMessages {
		if i >= 20 {
			break
		}
		commits.WriteString("- " + m + "\n")
	}
	return fmt.Sprintf(`You are labeling a merge request with up to N labels from the provided set.
- Return ONLY a JSON array of strings (no prose), e.g.: ["bug", "docs"]
- Choose at most N labels, all from the allowed set, no extras.
- If none apply, return []

N = %d
Allowed labels: %s

Merge Request Title: %s

Description:
%s

Unified Diff:
%s

Changed Files:
%s

Commit Messages:
%s
`, c.maxLabels, strings.Join(candidates, ", "), in.Title, in.Description, in.DiffText, files.String(), commits.String())
}

var labelSplit = regexp.MustCompile(`[,;\n]+`)

// parseLabels decodes the model reply as a JSON string array, falling
// back to splitting on separators when the reply is not JSON.
func parseLabels(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var labels []string
	if err := llm.DecodeStructured(raw, &labels); err == nil {
		return labels
	}
	stripped := llm.StripCodeFence(raw)
	var parts []string
	for _, part := range labelSplit.Split(stripped, -1) {
		part = strings.Trim(part, "`'\" \t\r[]")
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// normalizeLabels filters to the candidate set case-insensitively,
// dedupes, and caps at maxLabels, returning candidate casing.
func normalizeLabels(selected, candidates []string, maxLabels int) []string {
	allowed := make(map[string]string, len(candidates))
	for _, c := range candidates {
		allowed[strings.ToLower(c)] = c
	}
	var final []string
	seen := make(map[string]bool)
	for _, s := range selected {
		key := strings.ToLower(strings.TrimSpace(s))
		if canonical, ok := allowed[key]; ok && !seen[key] {
			final = append(final, canonical)
			seen[key] = true
		}
		if len(final) >= maxLabels {
			break
		}
	}
	return final
}
