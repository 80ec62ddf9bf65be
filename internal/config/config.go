// Package config loads the service configuration from defaults, an
// optional TOML file, and REVIEWLOOP_-prefixed environment variables,
// in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/reviewloop/internal/jira"
	"github.com/reviewloop/internal/llm"
	"github.com/reviewloop/internal/vcs"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Host          string  `koanf:"host"`
		Port          int     `koanf:"port"`
		WebhookSecret string  `koanf:"webhook_secret"`
		RatePerSec    float64 `koanf:"rate_per_sec"`
		RateBurst     int     `koanf:"rate_burst"`
	} `koanf:"server"`

	GitLab vcs.GitLabConfig `koanf:"gitlab"`
	LLM    llm.Config       `koanf:"llm"`

	Review struct {
		ProjectContextPath string `koanf:"project_context_path"`
		MaxRetries         int    `koanf:"max_retries"`
		MaxConcurrency     int    `koanf:"max_concurrency"`
		EnableVerdict      bool   `koanf:"enable_verdict"`
	} `koanf:"review"`

	Webhook struct {
		DedupeTTL   time.Duration `koanf:"dedupe_ttl"`
		CooldownTTL time.Duration `koanf:"cooldown_ttl"`
		Workers     int           `koanf:"workers"`
		QueueSize   int           `koanf:"queue_size"`
	} `koanf:"webhook"`

	Tagging struct {
		Enabled         bool     `koanf:"enabled"`
		LabelCandidates []string `koanf:"label_candidates"`
		MaxLabels       int      `koanf:"max_labels"`
	} `koanf:"tagging"`

	Jira jira.Config `koanf:"jira"`

	Storage struct {
		DataDir string `koanf:"data_dir"`
	} `koanf:"storage"`
}

// LoadConfig loads the configuration from a file
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"server.host":            "0.0.0.0",
		"server.port":            8080,
		"server.rate_per_sec":    5.0,
		"server.rate_burst":      10,
		"llm.provider":           "openai",
		"llm.timeout":            "60s",
		"review.max_retries":     2,
		"review.max_concurrency": 4,
		"webhook.dedupe_ttl":     "300s",
		"webhook.cooldown_ttl":   "20s",
		"webhook.workers":        4,
		"webhook.queue_size":     64,
		"tagging.max_labels":     2,
		"jira.max_issues":        5,
		"jira.search_window":     "-30d",
		"storage.data_dir":       "./rldata",
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./rldata/reviewloop.toml", "./reviewloop.toml", "$HOME/.reviewloop.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix REVIEWLOOP_
	k.Load(env.Provider("REVIEWLOOP_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "REVIEWLOOP_")), "_", ".", -1)
	}), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# ReviewLoop Configuration

[server]
host = "0.0.0.0"
port = 8080
webhook_secret = "your-webhook-secret"

[gitlab]
url = "https://gitlab.example.com"
token = "your-gitlab-token"

[llm]
provider = "openai"
model = "gpt-4o-mini"
openai_api_key = "your-openai-api-key"
# google_api_key = "your-gemini-api-key"

[review]
project_context_path = "./rldata/project_context.json"
max_retries = 2
max_concurrency = 4
enable_verdict = false

[tagging]
enabled = false
label_candidates = ["bug", "feature", "docs"]
max_labels = 2

# [jira]
# base_url = "https://your-org.atlassian.net"
# email = "bot@example.com"
# api_token = "your-jira-token"
# project_keys = ["PROJ"]
# search_window = "-30d"
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.Server.WebhookSecret == "" {
		return fmt.Errorf("server webhook_secret is required")
	}
	if config.GitLab.URL == "" {
		return fmt.Errorf("gitlab url is required")
	}
	if config.GitLab.Token == "" {
		return fmt.Errorf("gitlab token is required")
	}
	if config.Tagging.Enabled && len(config.Tagging.LabelCandidates) == 0 {
		return fmt.Errorf("tagging is enabled but label_candidates is empty")
	}
	return nil
}
