package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewloop/internal/infra"
	"github.com/reviewloop/internal/review"
	"github.com/reviewloop/internal/vcs"
	"github.com/reviewloop/internal/webhook"
)

type memService struct {
	mu     sync.Mutex
	notes  []string
	inline []review.InlineFinding
}

func (s *memService) GetProject(ctx context.Context, projectID int) (*vcs.Project, error) {
	return &vcs.Project{ID: projectID, DefaultBranch: "main"}, nil
}
func (s *memService) CollectMRDiffText(ctx context.Context, projectID, mrIID int) (string, error) {
	return "+change\n", nil
}
func (s *memService) GetChangedFilesWithContent(ctx context.Context, projectID, mrIID int) ([]vcs.ChangedFile, error) {
	return []vcs.ChangedFile{{Path: "a.go", Content: "package a\n"}}, nil
}
func (s *memService) GetMRCommits(ctx context.Context, projectID, mrIID int) ([]vcs.Commit, error) {
	return []vcs.Commit{{ShortID: "abc", Title: "change"}}, nil
}
func (s *memService) GetMRInfo(ctx context.Context, projectID, mrIID int) (*vcs.MRInfo, error) {
	return &vcs.MRInfo{SourceBranch: "f", TargetBranch: "main"}, nil
}
func (s *memService) GetLatestMRVersionID(ctx context.Context, projectID, mrIID int) (string, error) {
	return "3", nil
}
func (s *memService) PostMRNote(ctx context.Context, projectID, mrIID int, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, body)
	return nil
}
func (s *memService) ReviewLine(ctx context.Context, projectID, mrIID int, path string, line int, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inline = append(s.inline, review.InlineFinding{Path: path, Line: line, Body: body})
	return nil
}
func (s *memService) ListRecentNotes(ctx context.Context, projectID, mrIID, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.notes))
	copy(out, s.notes)
	return out, nil
}
func (s *memService) UpdateMRLabels(ctx context.Context, projectID, mrIID int, labels []string) error {
	return nil
}
func (s *memService) EnsureWebhookForProject(ctx context.Context, projectID int, hookURL, secret string) error {
	return nil
}
func (s *memService) CreateTestMR(ctx context.Context, projectID int, branch, title string) (string, error) {
	return "", nil
}

func (s *memService) noteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notes)
}

func (s *memService) firstNote() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.notes) == 0 {
		return ""
	}
	return s.notes[0]
}

type staticGenerator struct{}

func (staticGenerator) GenerateReview(ctx context.Context, in review.Input) (*review.Output, error) {
	return &review.Output{
		Comments: []review.Comment{{Title: "Task and Diff Summary", Body: "- small change"}},
	}, nil
}

const secret = "s3cret"

func newTestServer(t *testing.T, svc vcs.Service) *Server {
	t.Helper()
	processor := webhook.NewProcessor(svc, staticGenerator{}, secret, nil, nil, nil, nil)
	pool := infra.NewTaskPool(2, 16)
	t.Cleanup(pool.Shutdown)
	return NewServer(processor,
		infra.NewDedupeStore(time.Minute, 128),
		infra.NewCooldownStore(time.Minute, 128),
		infra.NewIPRateLimiter(100, 100),
		pool)
}

func postEvent(srv *Server, token, eventType, uuid, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/gitlab/webhook", strings.NewReader(body))
	req.Header.Set(echoContentType, "application/json")
	if token != "" {
		req.Header.Set("X-Gitlab-Token", token)
	}
	if eventType != "" {
		req.Header.Set("X-Gitlab-Event", eventType)
	}
	if uuid != "" {
		req.Header.Set("X-Gitlab-Event-UUID", uuid)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func mrEventBody(action, sha string) string {
	return `{
		"object_kind": "merge_request",
		"project": {"id": 1},
		"object_attributes": {
			"iid": 2,
			"action": "` + action + `",
			"title": "Fix parser",
			"description": "desc",
			"updated_at": "2026-08-30T10:00:00Z",
			"last_commit": {"id": "` + sha + `"}
		}
	}`
}

func TestWebhookQueuesAndPostsMarkedReview(t *testing.T) {
	svc := &memService{}
	srv := newTestServer(t, svc)

	rec := postEvent(srv, secret, "Merge Request Hook", "uuid-a", mrEventBody("open", "sha1"))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"queued"`)

	require.Eventually(t, func() bool { return svc.noteCount() > 0 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, strings.HasPrefix(svc.firstNote(), "[ai-review v:3]\n"))
}

func TestWebhookRejectsBadToken(t *testing.T) {
	srv := newTestServer(t, &memService{})

	rec := postEvent(srv, "wrong", "Merge Request Hook", "", mrEventBody("open", "sha1"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postEvent(srv, "", "Merge Request Hook", "", mrEventBody("open", "sha1"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookIgnoresNonMergeRequestHook(t *testing.T) {
	svc := &memService{}
	srv := newTestServer(t, svc)

	rec := postEvent(srv, secret, "Push Hook", "", `{"object_kind": "push"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ignored"`)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, svc.noteCount())
}

func TestWebhookSkipsDuplicateDelivery(t *testing.T) {
	svc := &memService{}
	srv := newTestServer(t, svc)

	rec := postEvent(srv, secret, "Merge Request Hook", "uuid-dup", mrEventBody("open", "sha1"))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = postEvent(srv, secret, "Merge Request Hook", "uuid-dup", mrEventBody("open", "sha1"))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"duplicate_skipped"`)

	require.Eventually(t, func() bool { return svc.noteCount() > 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, svc.noteCount())
}

func TestWebhookCooldownSkipsRapidRedelivery(t *testing.T) {
	svc := &memService{}
	srv := newTestServer(t, svc)

	rec := postEvent(srv, secret, "Merge Request Hook", "uuid-1", mrEventBody("open", "sha1"))
	require.Equal(t, http.StatusAccepted, rec.Code)

	// Different event identity, same MR, inside the cooldown window.
	rec = postEvent(srv, secret, "Merge Request Hook", "uuid-2", mrEventBody("update", "sha2"))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"cooldown_skipped"`)
}

func TestWebhookQueueFullReleasesDedupeAndCooldown(t *testing.T) {
	svc := &memService{}
	processor := webhook.NewProcessor(svc, staticGenerator{}, secret, nil, nil, nil, nil)
	pool := infra.NewTaskPool(1, 1)
	t.Cleanup(pool.Shutdown)
	srv := NewServer(processor,
		infra.NewDedupeStore(time.Minute, 128),
		infra.NewCooldownStore(time.Minute, 128),
		infra.NewIPRateLimiter(100, 100),
		pool)

	// Occupy the worker and fill the queue.
	release := make(chan struct{})
	require.True(t, pool.Submit(func(ctx context.Context) { <-release }))
	require.Eventually(t, func() bool {
		return pool.Submit(func(ctx context.Context) {}) == false
	}, 2*time.Second, time.Millisecond)

	rec := postEvent(srv, secret, "Merge Request Hook", "uuid-full", mrEventBody("open", "sha1"))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// Once capacity returns, GitLab's redelivery of the same event must
	// not be swallowed by stale dedupe or cooldown state.
	close(release)
	require.Eventually(t, func() bool {
		rec := postEvent(srv, secret, "Merge Request Hook", "uuid-full", mrEventBody("open", "sha1"))
		return strings.Contains(rec.Body.String(), `"status":"queued"`)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebhookRejectsMalformedEvent(t *testing.T) {
	srv := newTestServer(t, &memService{})

	rec := postEvent(srv, secret, "Merge Request Hook", "", `{"object_kind": "merge_request", "project": {}, "object_attributes": {"action": "open"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postEvent(srv, secret, "Merge Request Hook", "", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRateLimitsPerIP(t *testing.T) {
	svc := &memService{}
	processor := webhook.NewProcessor(svc, staticGenerator{}, secret, nil, nil, nil, nil)
	pool := infra.NewTaskPool(1, 4)
	t.Cleanup(pool.Shutdown)
	srv := NewServer(processor,
		infra.NewDedupeStore(time.Minute, 128),
		infra.NewCooldownStore(time.Minute, 128),
		infra.NewIPRateLimiter(1, 1),
		pool)

	rec := postEvent(srv, secret, "Merge Request Hook", "u1", mrEventBody("open", "sha1"))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = postEvent(srv, secret, "Merge Request Hook", "u2", mrEventBody("open", "sha1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &memService{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
