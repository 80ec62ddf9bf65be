package vcs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

func TestBuildDiffTextSkipsDeletedFiles(t *testing.T) {
	diffs := []*gitlab.MergeRequestDiff{
		{OldPath: "a.go", NewPath: "a.go", Diff: "@@ -1 +1 @@\n-old\n+new"},
		{OldPath: "gone.go", NewPath: "gone.go", Diff: "@@ -1 +0,0 @@\n-x", DeletedFile: true},
		{OldPath: "b.go", NewPath: "b.go", Diff: "@@ -0,0 +1 @@\n+added"},
	}

	text := buildDiffText(diffs, 50000)
	assert.Contains(t, text, "+++ a.go")
	assert.Contains(t, text, "+++ b.go")
	assert.NotContains(t, text, "gone.go")
}

func TestBuildDiffTextCaps(t *testing.T) {
	big := strings.Repeat("+x\n", 40000)
	diffs := []*gitlab.MergeRequestDiff{
		{OldPath: "big.go", NewPath: "big.go", Diff: big},
		{OldPath: "after.go", NewPath: "after.go", Diff: "+y"},
	}

	text := buildDiffText(diffs, 1000)
	assert.Len(t, text, 1000)
	assert.NotContains(t, text, "after.go")
}

func TestBuildDiffTextSkipsEmptyDiffs(t *testing.T) {
	diffs := []*gitlab.MergeRequestDiff{
		{OldPath: "same.go", NewPath: "same.go", Diff: ""},
	}
	assert.Empty(t, buildDiffText(diffs, 1000))
}

func TestMergeLabelsIsAdditive(t *testing.T) {
	merged := mergeLabels([]string{"backend", "urgent"}, []string{"ai-review", "backend"})
	assert.Equal(t, []string{"backend", "urgent", "ai-review"}, merged)
}

func TestMergeLabelsDropsEmpty(t *testing.T) {
	merged := mergeLabels([]string{"", "keep"}, []string{"", "keep"})
	assert.Equal(t, []string{"keep"}, merged)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
