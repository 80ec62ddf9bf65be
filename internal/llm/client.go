package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// Client is the minimal text-generation surface the review pipeline needs.
// A client that failed to initialize reports Available() == false and
// returns its construction error from Generate instead of panicking.
type Client interface {
	Available() bool
	UnavailableReason() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config selects and configures the LLM backend
type Config struct {
	Provider     string        `koanf:"provider"` // "openai" or "google"/"gemini"
	Model        string        `koanf:"model"`
	OpenAIAPIKey string        `koanf:"openai_api_key"`
	GoogleAPIKey string        `koanf:"google_api_key"`
	Timeout      time.Duration `koanf:"timeout"`
}

// LangchainClient wraps a langchaingo model behind the Client interface
type LangchainClient struct {
	model   llms.Model
	timeout time.Duration
	reason  string
}

// NewClient builds a client for the configured provider. Construction
// failures produce an unavailable client rather than an error so that a
// misconfigured LLM degrades the review pipeline instead of killing it.
func NewClient(ctx context.Context, config Config) *LangchainClient {
	model, err := buildModel(ctx, config)
	if err != nil {
		log.Warn().Err(err).Str("provider", config.Provider).Msg("LLM backend disabled")
		return &LangchainClient{reason: err.Error(), timeout: config.Timeout}
	}
	return &LangchainClient{model: model, timeout: config.Timeout}
}

func buildModel(ctx context.Context, config Config) (llms.Model, error) {
	provider := strings.ToLower(strings.TrimSpace(config.Provider))
	if provider == "" {
		provider = "openai"
	}

	switch provider {
	case "openai":
		if config.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai_api_key is required for provider openai")
		}
		return openai.New(
			openai.WithToken(config.OpenAIAPIKey),
			openai.WithModel(config.Model),
		)
	case "google", "gemini":
		if config.GoogleAPIKey == "" {
			return nil, fmt.Errorf("google_api_key is required for provider %s", provider)
		}
		return googleai.New(ctx,
			googleai.WithAPIKey(config.GoogleAPIKey),
			googleai.WithDefaultModel(config.Model),
		)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// Available reports whether the backend initialized successfully
func (c *LangchainClient) Available() bool {
	return c.model != nil
}

// UnavailableReason returns the construction error, if any
func (c *LangchainClient) UnavailableReason() string {
	return c.reason
}

// Generate runs one prompt through the backend and returns the raw text
func (c *LangchainClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c.model == nil {
		reason := c.reason
		if reason == "" {
			reason = "LLM backend is not configured"
		}
		return "", fmt.Errorf("%s", reason)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	response, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt)
	if err != nil {
		return "", fmt.Errorf("LLM generation failed: %w", err)
	}
	return response, nil
}
