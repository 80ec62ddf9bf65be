package jira

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewService(Config{
		BaseURL:  srv.URL,
		Email:    "bot@example.com",
		APIToken: "token",
	})
}

func TestSearchRelatedIssuesDedupesAcrossQueries(t *testing.T) {
	var calls int
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/rest/api/3/search/jql", r.URL.Path)
		user, _, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "bot@example.com", user)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"issues": [
			{"key": "PROJ-1", "fields": {"summary": "Retry bug", "status": {"name": "Open"}, "updated": "2026-08-01"}},
			{"key": "PROJ-2", "fields": {"summary": "Other", "status": {"name": "Done"}, "updated": ""}}
		]}`))
	})

	issues := s.SearchRelatedIssues(context.Background(), "Fix retry logic", "Retries transient failures now", nil, "", "")
	require.Len(t, issues, 2)
	assert.Equal(t, "PROJ-1", issues[0].Key)
	assert.Equal(t, "Open", issues[0].Status)
	assert.Contains(t, issues[0].URL, "/browse/PROJ-1")
	assert.GreaterOrEqual(t, calls, 1)
}

func TestSearchRelatedIssuesSkipsFailedQueries(t *testing.T) {
	var calls int
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "bad jql", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"issues": [{"key": "PROJ-9", "fields": {"summary": "s", "status": {"name": ""}, "updated": ""}}]}`))
	})

	issues := s.SearchRelatedIssues(context.Background(), "Fix retry logic", "", nil, "", "")
	require.NotEmpty(t, issues)
	assert.Equal(t, "PROJ-9", issues[0].Key)
}

func TestSearchRelatedIssuesNarrowsByDateAndWindow(t *testing.T) {
	var jqls []string
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			JQL string `json:"jql"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		jqls = append(jqls, body.JQL)
		_, _ = w.Write([]byte(`{"issues": []}`))
	})

	s.SearchRelatedIssues(context.Background(), "Fix retry logic", "", nil, "2026-08-20T10:30:00Z", "")
	assert.Contains(t, jqls, `created >= "2026-08-20"`)
	assert.Contains(t, jqls, "updated >= -30d")
}

func TestSearchRelatedIssuesDisabled(t *testing.T) {
	s := NewService(Config{})
	assert.Nil(t, s.SearchRelatedIssues(context.Background(), "t", "d", nil, "", ""))
}

func TestCreateIssueSendsADF(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/3/issue", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fields := body["fields"].(map[string]interface{})
		assert.Equal(t, "Review follow-up", fields["summary"])
		desc := fields["description"].(map[string]interface{})
		assert.Equal(t, "doc", desc["type"])
		_, _ = w.Write([]byte(`{"key": "PROJ-3"}`))
	})

	key, err := s.CreateIssue(context.Background(), "PROJ", "Review follow-up", "First para.\n\nSecond para.", []string{"ai-review"})
	require.NoError(t, err)
	assert.Equal(t, "PROJ-3", key)
}

func TestAddRemoteLink(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/3/issue/PROJ-1/remotelink", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		obj := body["object"].(map[string]interface{})
		assert.Equal(t, "https://gitlab.example.com/mr/1", obj["url"])
		w.WriteHeader(http.StatusCreated)
	})

	err := s.AddRemoteLink(context.Background(), "PROJ-1", "https://gitlab.example.com/mr/1", "MR !1")
	assert.NoError(t, err)
}

func TestBuildQueries(t *testing.T) {
	queries := buildQueries([]string{"PROJ"}, "Fix retry logic", "Retries transient failures", []string{"bug"}, "", "", "https://git/mr/1")

	require.NotEmpty(t, queries)
	assert.Contains(t, queries[0], `project in (PROJ) AND (summary ~ "Fix"`)
	last := queries[len(queries)-1]
	assert.Contains(t, last, `description ~ "https://git/mr/1"`)
}

func TestBuildQueriesTimeNarrowing(t *testing.T) {
	queries := buildQueries([]string{"PROJ"}, "Fix retry logic", "", nil, "2026-08-20T10:30:00Z", "-30d", "")

	assert.Contains(t, queries, `project in (PROJ) AND created >= "2026-08-20"`)
	assert.Contains(t, queries, "project in (PROJ) AND updated >= -30d")
}

func TestBuildQueriesFallback(t *testing.T) {
	assert.Equal(t, []string{"ORDER BY updated DESC"}, buildQueries(nil, "", "", nil, "", "", ""))
}

func TestEscapeJQL(t *testing.T) {
	assert.Equal(t, `a \"b\" c\\d`, escapeJQL(`a "b" c\d`))
}

func TestFormatRelatedIssues(t *testing.T) {
	out := FormatRelatedIssues([]RelatedIssue{
		{Key: "PROJ-1", Summary: "Retry bug", Status: "Open", URL: "https://jira/browse/PROJ-1"},
	})
	assert.Contains(t, out, "Related Jira issues:")
	assert.Contains(t, out, "[PROJ-1](https://jira/browse/PROJ-1) Retry bug (Open)")
	assert.Empty(t, FormatRelatedIssues(nil))
}
