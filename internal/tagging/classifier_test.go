package tagging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reviewloop/internal/review"
)

type stubClient struct {
	reply string
	err   error
	down  bool
}

func (c *stubClient) Available() bool           { return !c.down }
func (c *stubClient) UnavailableReason() string { return "stub down" }
func (c *stubClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.reply, c.err
}

var candidates = []string{"bug", "docs", "Backend"}

func TestClassifyParsesJSONArray(t *testing.T) {
	c := NewLLMClassifier(&stubClient{reply: `["bug", "docs"]`}, 2)
	labels := c.Classify(context.Background(), review.Input{Title: "fix"}, candidates)
	assert.Equal(t, []string{"bug", "docs"}, labels)
}

func TestClassifyStripsFence(t *testing.T) {
	c := NewLLMClassifier(&stubClient{reply: "```json\n[\"docs\"]\n```"}, 2)
	labels := c.Classify(context.Background(), review.Input{}, candidates)
	assert.Equal(t, []string{"docs"}, labels)
}

func TestClassifyFallsBackToSeparators(t *testing.T) {
	c := NewLLMClassifier(&stubClient{reply: "bug, docs"}, 2)
	labels := c.Classify(context.Background(), review.Input{}, candidates)
	assert.Equal(t, []string{"bug", "docs"}, labels)
}

func TestClassifyNormalizesToCandidateCasing(t *testing.T) {
	c := NewLLMClassifier(&stubClient{reply: `["backend", "BUG", "made-up"]`}, 5)
	labels := c.Classify(context.Background(), review.Input{}, candidates)
	assert.Equal(t, []string{"Backend", "bug"}, labels)
}

func TestClassifyCapsAndDedupes(t *testing.T) {
	c := NewLLMClassifier(&stubClient{reply: `["bug", "bug", "docs", "Backend"]`}, 2)
	labels := c.Classify(context.Background(), review.Input{}, candidates)
	assert.Equal(t, []string{"bug", "docs"}, labels)
}

func TestClassifyDegradesToEmpty(t *testing.T) {
	assert.Nil(t, NewLLMClassifier(&stubClient{err: errors.New("quota")}, 2).
		Classify(context.Background(), review.Input{}, candidates))
	assert.Nil(t, NewLLMClassifier(&stubClient{down: true}, 2).
		Classify(context.Background(), review.Input{}, candidates))
	assert.Nil(t, NewLLMClassifier(&stubClient{reply: `["bug"]`}, 2).
		Classify(context.Background(), review.Input{}, nil))
}
