// Package agentic runs a set of independent review agents against one
// merge request and composes their outputs into ordered comments and
// line-anchored findings.
package agentic

import (
	"fmt"
	"strings"

	"github.com/reviewloop/internal/review"
)

// ProjectContext is static descriptive metadata about the reviewed
// project, loaded from an external JSON document.
type ProjectContext struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	TechStack        []string `json:"tech_stack"`
	Architecture     []string `json:"architecture"`
	TestingStandards string   `json:"testing_standards"`
	CodingGuidelines string   `json:"coding_guidelines"`
}

// DefaultProjectContext is used when no context document is available.
func DefaultProjectContext() ProjectContext {
	return ProjectContext{Name: "Default Project"}
}

// Payload is the immutable bundle of MR data every agent receives.
type Payload struct {
	Title          string
	Description    string
	DiffText       string
	ChangedFiles   []review.File
	CommitMessages []string
	ProjectContext ProjectContext
}

// FilesBlob renders up to maxFiles changed files, each capped at
// maxCharsPerFile, for prompt embedding.
func (p *Payload) FilesBlob(maxFiles, maxCharsPerFile int) string {
	if len(p.ChangedFiles) == 0 {
		return ""
	}
	files := p.ChangedFiles
	if len(files) > maxFiles {
		files = files[:maxFiles]
	}
	blocks := make([]string, 0, len(files))
	for _, f := range files {
		snippet := f.Content
		if len(snippet) > maxCharsPerFile {
			snippet = snippet[:maxCharsPerFile]
		}
		blocks = append(blocks, fmt.Sprintf("File: %s\n%s", f.Path, snippet))
	}
	return strings.Join(blocks, "\n\n")
}

// CommitsBlob renders up to maxCommits commit messages as bullets.
func (p *Payload) CommitsBlob(maxCommits int) string {
	if len(p.CommitMessages) == 0 {
		return ""
	}
	msgs := p.CommitMessages
	if len(msgs) > maxCommits {
		msgs = msgs[:maxCommits]
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, "- "+m)
	}
	return strings.Join(lines, "\n")
}

// FilesWithLineNumbers renders changed files with zero-padded line
// numbers so agents can cite exact positions.
func (p *Payload) FilesWithLineNumbers(maxFiles, maxLines int) string {
	if len(p.ChangedFiles) == 0 {
		return ""
	}
	files := p.ChangedFiles
	if len(files) > maxFiles {
		files = files[:maxFiles]
	}
	blocks := make([]string, 0, len(files))
	for _, f := range files {
		var b strings.Builder
		b.WriteString("File: " + f.Path)
		for i, line := range strings.Split(f.Content, "\n") {
			if i >= maxLines {
				break
			}
			b.WriteString(fmt.Sprintf("\n%04d: %s", i+1, line))
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

// Finding is one line-anchored remark produced by an agent.
type Finding struct {
	Path   string
	Line   int
	Body   string
	Source string
}

// Result is the outcome of one agent execution. Success false with a
// populated Err marks a recoverable per-agent failure.
type Result struct {
	Key      string
	Content  string
	Success  bool
	Err      string
	Findings []Finding
}
