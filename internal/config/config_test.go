package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 300*time.Second, cfg.Webhook.DedupeTTL)
	assert.Equal(t, 20*time.Second, cfg.Webhook.CooldownTTL)
	assert.Equal(t, 2, cfg.Review.MaxRetries)
	assert.Equal(t, 4, cfg.Review.MaxConcurrency)
	assert.Equal(t, 2, cfg.Tagging.MaxLabels)
	assert.Equal(t, 5, cfg.Jira.MaxIssues)
	assert.Equal(t, "-30d", cfg.Jira.SearchWindow)
}

func TestLoadConfigFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reviewloop.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9999
webhook_secret = "hunter2"

[gitlab]
url = "https://gitlab.example.com"
token = "glpat-x"

[webhook]
cooldown_ttl = "45s"

[tagging]
enabled = true
label_candidates = ["bug"]
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "hunter2", cfg.Server.WebhookSecret)
	assert.Equal(t, 45*time.Second, cfg.Webhook.CooldownTTL)
	assert.Equal(t, 300*time.Second, cfg.Webhook.DedupeTTL)
	assert.True(t, cfg.Tagging.Enabled)
	assert.NoError(t, Validate(cfg))
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("REVIEWLOOP_SERVER_PORT", "7070")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Error(t, Validate(cfg), "missing secret must fail")
	cfg.Server.WebhookSecret = "s"
	assert.Error(t, Validate(cfg), "missing gitlab url must fail")
	cfg.GitLab.URL = "https://gitlab.example.com"
	cfg.GitLab.Token = "t"
	assert.NoError(t, Validate(cfg))

	cfg.Tagging.Enabled = true
	assert.Error(t, Validate(cfg), "enabled tagging needs candidates")
}

func TestInitConfigRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reviewloop.toml")

	require.NoError(t, InitConfig(path))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "[server]")

	assert.Error(t, InitConfig(path))
}
