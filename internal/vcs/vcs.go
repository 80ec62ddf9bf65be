package vcs

import "context"

// Project is the subset of repository metadata the review pipeline
// needs.
type Project struct {
	ID                int
	PathWithNamespace string
	DefaultBranch     string
	WebURL            string
}

// ChangedFile is one file touched by a merge request, with its content
// at the MR head. Content may be truncated.
type ChangedFile struct {
	Path      string
	Content   string
	Truncated bool
}

// Commit is a single commit on a merge request.
type Commit struct {
	ShortID string
	Title   string
	Author  string
}

// MRInfo is the merge-request metadata needed outside of diff
// collection.
type MRInfo struct {
	SourceBranch string
	TargetBranch string
	Labels       []string
	WebURL       string
	CreatedAt    string
}

// Service is the host-side surface the review pipeline talks to. A
// single implementation exists for GitLab; the interface keeps the
// webhook processor and generators testable without a live instance.
type Service interface {
	GetProject(ctx context.Context, projectID int) (*Project, error)
	CollectMRDiffText(ctx context.Context, projectID, mrIID int) (string, error)
	GetChangedFilesWithContent(ctx context.Context, projectID, mrIID int) ([]ChangedFile, error)
	GetMRCommits(ctx context.Context, projectID, mrIID int) ([]Commit, error)
	GetMRInfo(ctx context.Context, projectID, mrIID int) (*MRInfo, error)
	GetLatestMRVersionID(ctx context.Context, projectID, mrIID int) (string, error)

	PostMRNote(ctx context.Context, projectID, mrIID int, body string) error
	ReviewLine(ctx context.Context, projectID, mrIID int, path string, line int, body string) error
	ListRecentNotes(ctx context.Context, projectID, mrIID, limit int) ([]string, error)
	UpdateMRLabels(ctx context.Context, projectID, mrIID int, labels []string) error

	EnsureWebhookForProject(ctx context.Context, projectID int, hookURL, secret string) error
	CreateTestMR(ctx context.Context, projectID int, branch, title string) (string, error)
}
