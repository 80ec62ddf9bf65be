// Package review defines the output contract shared by review
// generators and the webhook pipeline that posts their results.
package review

import (
	"context"
	"fmt"
)

// File is one changed file handed to a generator.
type File struct {
	Path    string
	Content string
}

// Input carries everything a generator needs about one merge request.
type Input struct {
	Title          string
	Description    string
	DiffText       string
	ChangedFiles   []File
	CommitMessages []string
}

// Comment is a top-level rendered section of the final review.
type Comment struct {
	Title string
	Body  string
}

// Markdown renders the comment. A non-empty title becomes a heading;
// bodies that carry their own heading use an empty title.
func (c Comment) Markdown() string {
	if c.Title == "" {
		return c.Body
	}
	return fmt.Sprintf("## %s\n\n%s", c.Title, c.Body)
}

// InlineFinding is a single line-anchored remark.
type InlineFinding struct {
	Path   string
	Line   int
	Body   string
	Source string
}

// Output is a generator's full result for one merge request.
type Output struct {
	Comments       []Comment
	InlineFindings []InlineFinding
}

// Generator produces a review for one merge request.
type Generator interface {
	GenerateReview(ctx context.Context, in Input) (*Output, error)
}
