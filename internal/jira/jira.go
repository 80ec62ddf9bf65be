// Package jira cross-links merge requests with tracker issues over the
// Jira Cloud REST API.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config contains configuration for the Jira integration
type Config struct {
	BaseURL      string   `koanf:"base_url"`
	Email        string   `koanf:"email"`
	APIToken     string   `koanf:"api_token"`
	ProjectKeys  []string `koanf:"project_keys"`
	MaxIssues    int      `koanf:"max_issues"`
	SearchWindow string   `koanf:"search_window"`
}

// RelatedIssue is one tracker issue matched against an MR.
type RelatedIssue struct {
	Key     string
	Summary string
	Status  string
	Updated string
	URL     string
}

// Service talks to one Jira instance. All methods are best effort; the
// review pipeline works without tracker access.
type Service struct {
	cfg        Config
	httpClient *http.Client
}

// NewService builds a Jira client
func NewService(cfg Config) *Service {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxIssues < 1 {
		cfg.MaxIssues = 5
	}
	if cfg.SearchWindow == "" {
		cfg.SearchWindow = "-30d"
	}
	return &Service{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Enabled reports whether the integration is configured.
func (s *Service) Enabled() bool {
	return s.cfg.BaseURL != "" && s.cfg.Email != "" && s.cfg.APIToken != ""
}

// SearchRelatedIssues runs several focused JQL queries and returns
// distinct issues, capped at the configured maximum. Query failures
// are logged and skipped rather than failing the set.
func (s *Service) SearchRelatedIssues(ctx context.Context, title, description string, labels []string, createdAt, mrURL string) []RelatedIssue {
	if !s.Enabled() {
		return nil
	}
	queries := buildQueries(s.cfg.ProjectKeys, title, description, labels, createdAt, s.cfg.SearchWindow, mrURL)
	seen := make(map[string]bool)
	var issues []RelatedIssue

	for _, jql := range queries {
		body := map[string]interface{}{
			"jql":        jql,
			"maxResults": s.cfg.MaxIssues,
			"fields":     []string{"summary", "status", "updated"},
		}
		var result struct {
			Issues []struct {
				Key    string `json:"key"`
				Fields struct {
					Summary string `json:"summary"`
					Status  struct {
						Name string `json:"name"`
					} `json:"status"`
					Updated string `json:"updated"`
				} `json:"fields"`
			} `json:"issues"`
		}
		if err := s.postJSON(ctx, "/rest/api/3/search/jql", body, &result); err != nil {
			log.Warn().Str("jql", jql).Err(err).Msg("Jira search failed")
			continue
		}
		for _, it := range result.Issues {
			if it.Key == "" || seen[it.Key] {
				continue
			}
			seen[it.Key] = true
			issues = append(issues, RelatedIssue{
				Key:     it.Key,
				Summary: it.Fields.Summary,
				Status:  it.Fields.Status.Name,
				Updated: it.Fields.Updated,
				URL:     fmt.Sprintf("%s/browse/%s", s.cfg.BaseURL, it.Key),
			})
		}
		if len(issues) >= s.cfg.MaxIssues {
			break
		}
	}
	if len(issues) > s.cfg.MaxIssues {
		issues = issues[:s.cfg.MaxIssues]
	}
	log.Info().Int("matched", len(issues)).Msg("Jira search finished")
	return issues
}

// CreateIssue opens a new issue and returns its key.
func (s *Service) CreateIssue(ctx context.Context, projectKey, summary, description string, labels []string) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("jira integration not configured")
	}
	body := map[string]interface{}{
		"fields": map[string]interface{}{
			"project":     map[string]string{"key": projectKey},
			"summary":     summary,
			"issuetype":   map[string]string{"name": "Task"},
			"labels":      labels,
			"description": toADF(description),
		},
	}
	var result struct {
		Key string `json:"key"`
	}
	if err := s.postJSON(ctx, "/rest/api/3/issue", body, &result); err != nil {
		return "", fmt.Errorf("failed to create Jira issue: %w", err)
	}
	return result.Key, nil
}

// AddRemoteLink attaches an external URL (the MR) to an issue.
func (s *Service) AddRemoteLink(ctx context.Context, issueKey, url, title string) error {
	if !s.Enabled() || issueKey == "" || url == "" {
		return nil
	}
	if title == "" {
		title = url
	}
	body := map[string]interface{}{
		"object": map[string]string{"url": url, "title": title},
	}
	path := fmt.Sprintf("/rest/api/3/issue/%s/remotelink", issueKey)
	if err := s.postJSON(ctx, path, body, nil); err != nil {
		return fmt.Errorf("failed to add remote link to %s: %w", issueKey, err)
	}
	return nil
}

func (s *Service) postJSON(ctx context.Context, path string, body interface{}, target interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.cfg.Email, s.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if target == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}

// toADF wraps plain text paragraphs in the Atlassian document format
// required by the v3 API.
func toADF(text string) map[string]interface{} {
	var content []interface{}
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		content = append(content, map[string]interface{}{
			"type": "paragraph",
			"content": []interface{}{
				map[string]interface{}{"type": "text", "text": para},
			},
		})
	}
	if len(content) == 0 {
		content = append(content, map[string]interface{}{"type": "paragraph", "content": []interface{}{}})
	}
	return map[string]interface{}{"type": "doc", "version": 1, "content": content}
}

// FormatRelatedIssues renders matched issues as a markdown block for
// appending to the MR description context.
func FormatRelatedIssues(issues []RelatedIssue) string {
	if len(issues) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Related Jira issues:\n")
	for _, it := range issues {
		b.WriteString(fmt.Sprintf("- [%s](%s) %s", it.Key, it.URL, it.Summary))
		if it.Status != "" {
			b.WriteString(fmt.Sprintf(" (%s)", it.Status))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
