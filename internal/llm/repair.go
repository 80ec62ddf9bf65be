package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var fenceOpen = regexp.MustCompile("^```[a-zA-Z0-9_-]*\\s*")
var fenceClose = regexp.MustCompile("\\s*```$")

// StripCodeFence removes a single leading/trailing Markdown code fence.
// Models routinely wrap structured output in ```json blocks even when
// told not to.
func StripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = fenceOpen.ReplaceAllString(trimmed, "")
	trimmed = fenceClose.ReplaceAllString(trimmed, "")
	return strings.TrimSpace(trimmed)
}

// DecodeStructured parses model output into target: strip a code fence,
// try a plain decode, then fall back to jsonrepair for the usual LLM
// JSON defects (trailing commas, truncated arrays, single quotes).
// Returns an error only when the text is unusable as JSON.
func DecodeStructured(raw string, target interface{}) error {
	text := StripCodeFence(raw)

	if err := json.Unmarshal([]byte(text), target); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(repaired), target)
}
