package vcs

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

const (
	maxDiffChars = 50000
	maxFileChars = 20000
	maxCommits   = 50
)

// GitLabConfig contains configuration for the GitLab service
type GitLabConfig struct {
	URL   string `koanf:"url"`
	Token string `koanf:"token"`
}

// GitLabService implements Service against the GitLab REST API.
type GitLabService struct {
	client *gitlab.Client
	config GitLabConfig
}

// NewGitLabService creates a GitLab-backed Service
func NewGitLabService(config GitLabConfig) (*GitLabService, error) {
	opts := []gitlab.ClientOptionFunc{}
	if config.URL != "" {
		opts = append(opts, gitlab.WithBaseURL(fmt.Sprintf("%s/api/v4", strings.TrimRight(config.URL, "/"))))
	}
	client, err := gitlab.NewClient(config.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}
	return &GitLabService{client: client, config: config}, nil
}

func (s *GitLabService) GetProject(ctx context.Context, projectID int) (*Project, error) {
	p, _, err := s.client.Projects.GetProject(projectID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch project %d: %w", projectID, err)
	}
	return &Project{
		ID:                p.ID,
		PathWithNamespace: p.PathWithNamespace,
		DefaultBranch:     p.DefaultBranch,
		WebURL:            p.WebURL,
	}, nil
}

// CollectMRDiffText concatenates the per-file diffs of an MR into one
// unified text block, capped at maxDiffChars.
func (s *GitLabService) CollectMRDiffText(ctx context.Context, projectID, mrIID int) (string, error) {
	diffs, _, err := s.client.MergeRequests.ListMergeRequestDiffs(projectID, mrIID,
		&gitlab.ListMergeRequestDiffsOptions{ListOptions: gitlab.ListOptions{PerPage: 100}},
		gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to fetch MR diffs: %w", err)
	}
	return buildDiffText(diffs, maxDiffChars), nil
}

func buildDiffText(diffs []*gitlab.MergeRequestDiff, maxChars int) string {
	var b strings.Builder
	for _, d := range diffs {
		if d.DeletedFile || d.Diff == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("--- %s\n+++ %s\n%s\n", d.OldPath, d.NewPath, d.Diff))
		if b.Len() >= maxChars {
			break
		}
	}
	return truncate(b.String(), maxChars)
}

// GetChangedFilesWithContent fetches each changed file's content at the
// MR head. Deleted files are skipped and unfetchable files are omitted
// rather than failing the whole collection.
func (s *GitLabService) GetChangedFilesWithContent(ctx context.Context, projectID, mrIID int) ([]ChangedFile, error) {
	mr, _, err := s.client.MergeRequests.GetMergeRequest(projectID, mrIID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch MR: %w", err)
	}
	ref := mr.SourceBranch
	if mr.SHA != "" {
		ref = mr.SHA
	}

	diffs, _, err := s.client.MergeRequests.ListMergeRequestDiffs(projectID, mrIID,
		&gitlab.ListMergeRequestDiffsOptions{ListOptions: gitlab.ListOptions{PerPage: 100}},
		gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch MR diffs: %w", err)
	}

	files := make([]ChangedFile, 0, len(diffs))
	for _, d := range diffs {
		if d.DeletedFile {
			continue
		}
		raw, _, err := s.client.RepositoryFiles.GetRawFile(projectID, d.NewPath,
			&gitlab.GetRawFileOptions{Ref: gitlab.Ptr(ref)}, gitlab.WithContext(ctx))
		if err != nil {
			log.Debug().Str("path", d.NewPath).Err(err).Msg("Skipping unfetchable file")
			continue
		}
		content := string(raw)
		truncated := len(content) > maxFileChars
		files = append(files, ChangedFile{
			Path:      d.NewPath,
			Content:   truncate(content, maxFileChars),
			Truncated: truncated,
		})
	}
	return files, nil
}

func (s *GitLabService) GetMRCommits(ctx context.Context, projectID, mrIID int) ([]Commit, error) {
	raw, _, err := s.client.MergeRequests.GetMergeRequestCommits(projectID, mrIID,
		&gitlab.GetMergeRequestCommitsOptions{PerPage: maxCommits},
		gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch MR commits: %w", err)
	}
	commits := make([]Commit, 0, len(raw))
	for _, c := range raw {
		commits = append(commits, Commit{ShortID: c.ShortID, Title: c.Title, Author: c.AuthorName})
	}
	return commits, nil
}

func (s *GitLabService) GetMRInfo(ctx context.Context, projectID, mrIID int) (*MRInfo, error) {
	mr, _, err := s.client.MergeRequests.GetMergeRequest(projectID, mrIID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch MR: %w", err)
	}
	info := &MRInfo{
		SourceBranch: mr.SourceBranch,
		TargetBranch: mr.TargetBranch,
		Labels:       []string(mr.Labels),
		WebURL:       mr.WebURL,
	}
	if mr.CreatedAt != nil {
		info.CreatedAt = mr.CreatedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return info, nil
}

// GetLatestMRVersionID returns the newest diff version identifier, used
// to tag posted reviews so reruns on the same code are detectable.
func (s *GitLabService) GetLatestMRVersionID(ctx context.Context, projectID, mrIID int) (string, error) {
	versions, _, err := s.client.MergeRequests.GetMergeRequestDiffVersions(projectID, mrIID,
		&gitlab.GetMergeRequestDiffVersionsOptions{PerPage: 100},
		gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to fetch MR versions: %w", err)
	}
	if len(versions) == 0 {
		return "", nil
	}
	return strconv.Itoa(versions[len(versions)-1].ID), nil
}

func (s *GitLabService) PostMRNote(ctx context.Context, projectID, mrIID int, body string) error {
	_, _, err := s.client.Notes.CreateMergeRequestNote(projectID, mrIID,
		&gitlab.CreateMergeRequestNoteOptions{Body: gitlab.Ptr(body)},
		gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to post MR note: %w", err)
	}
	return nil
}

// ReviewLine posts an inline discussion on the new side of the diff.
// When GitLab rejects the position (the line is not part of the diff)
// it falls back to a plain note carrying the location in its text.
func (s *GitLabService) ReviewLine(ctx context.Context, projectID, mrIID int, path string, line int, body string) error {
	mr, _, err := s.client.MergeRequests.GetMergeRequest(projectID, mrIID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to fetch MR for positioning: %w", err)
	}
	if mr.DiffRefs.BaseSha != "" {
		_, _, err = s.client.Discussions.CreateMergeRequestDiscussion(projectID, mrIID,
			&gitlab.CreateMergeRequestDiscussionOptions{
				Body: gitlab.Ptr(body),
				Position: &gitlab.PositionOptions{
					BaseSHA:      gitlab.Ptr(mr.DiffRefs.BaseSha),
					HeadSHA:      gitlab.Ptr(mr.DiffRefs.HeadSha),
					StartSHA:     gitlab.Ptr(mr.DiffRefs.StartSha),
					NewPath:      gitlab.Ptr(path),
					NewLine:      gitlab.Ptr(line),
					PositionType: gitlab.Ptr("text"),
				},
			}, gitlab.WithContext(ctx))
		if err == nil {
			return nil
		}
		log.Debug().Str("path", path).Int("line", line).Err(err).Msg("Inline position rejected, falling back to plain note")
	}
	return s.PostMRNote(ctx, projectID, mrIID, fmt.Sprintf("**%s:%d**\n\n%s", path, line, body))
}

func (s *GitLabService) ListRecentNotes(ctx context.Context, projectID, mrIID, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	notes, _, err := s.client.Notes.ListMergeRequestNotes(projectID, mrIID,
		&gitlab.ListMergeRequestNotesOptions{
			OrderBy:     gitlab.Ptr("created_at"),
			Sort:        gitlab.Ptr("desc"),
			ListOptions: gitlab.ListOptions{PerPage: limit},
		}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list MR notes: %w", err)
	}
	bodies := make([]string, 0, len(notes))
	for _, n := range notes {
		bodies = append(bodies, n.Body)
	}
	return bodies, nil
}

// UpdateMRLabels merges the given labels into the MR's existing set.
// Labels already on the MR are never removed.
func (s *GitLabService) UpdateMRLabels(ctx context.Context, projectID, mrIID int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	mr, _, err := s.client.MergeRequests.GetMergeRequest(projectID, mrIID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to fetch MR for labels: %w", err)
	}
	merged := mergeLabels(mr.Labels, labels)
	opts := gitlab.LabelOptions(merged)
	_, _, err = s.client.MergeRequests.UpdateMergeRequest(projectID, mrIID,
		&gitlab.UpdateMergeRequestOptions{Labels: &opts},
		gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to update MR labels: %w", err)
	}
	return nil
}

func mergeLabels(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing)+len(extra))
	merged := make([]string, 0, len(existing)+len(extra))
	for _, l := range existing {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		merged = append(merged, l)
	}
	for _, l := range extra {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		merged = append(merged, l)
	}
	return merged
}

// EnsureWebhookForProject registers the merge request webhook if no
// hook with the same URL exists yet.
func (s *GitLabService) EnsureWebhookForProject(ctx context.Context, projectID int, hookURL, secret string) error {
	hooks, _, err := s.client.Projects.ListProjectHooks(projectID,
		&gitlab.ListProjectHooksOptions{PerPage: 100}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to list project hooks: %w", err)
	}
	for _, h := range hooks {
		if h.URL == hookURL {
			log.Info().Int("project_id", projectID).Str("url", hookURL).Msg("Webhook already registered")
			return nil
		}
	}
	_, _, err = s.client.Projects.AddProjectHook(projectID, &gitlab.AddProjectHookOptions{
		URL:                 gitlab.Ptr(hookURL),
		Token:               gitlab.Ptr(secret),
		MergeRequestsEvents: gitlab.Ptr(true),
		PushEvents:          gitlab.Ptr(false),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to add project hook: %w", err)
	}
	log.Info().Int("project_id", projectID).Str("url", hookURL).Msg("Webhook registered")
	return nil
}

// CreateTestMR creates a throwaway branch with one file change and
// opens an MR from it, returning the MR web URL.
func (s *GitLabService) CreateTestMR(ctx context.Context, projectID int, branch, title string) (string, error) {
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	target := project.DefaultBranch
	if target == "" {
		target = "main"
	}
	_, _, err = s.client.Branches.CreateBranch(projectID, &gitlab.CreateBranchOptions{
		Branch: gitlab.Ptr(branch),
		Ref:    gitlab.Ptr(target),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to create branch %s: %w", branch, err)
	}
	_, _, err = s.client.RepositoryFiles.CreateFile(projectID, fmt.Sprintf("review-smoke/%s.md", branch),
		&gitlab.CreateFileOptions{
			Branch:        gitlab.Ptr(branch),
			Content:       gitlab.Ptr(fmt.Sprintf("# Review smoke test\n\nBranch %s created for a pipeline check.\n", branch)),
			CommitMessage: gitlab.Ptr("Add review smoke test file"),
		}, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to create file on %s: %w", branch, err)
	}
	mr, _, err := s.client.MergeRequests.CreateMergeRequest(projectID, &gitlab.CreateMergeRequestOptions{
		Title:              gitlab.Ptr(title),
		SourceBranch:       gitlab.Ptr(branch),
		TargetBranch:       gitlab.Ptr(target),
		RemoveSourceBranch: gitlab.Ptr(true),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to create MR: %w", err)
	}
	return mr.WebURL, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
