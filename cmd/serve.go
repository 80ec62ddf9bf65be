package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/reviewloop/internal/api"
	"github.com/reviewloop/internal/config"
	"github.com/reviewloop/internal/infra"
	"github.com/reviewloop/internal/jira"
	"github.com/reviewloop/internal/llm"
	"github.com/reviewloop/internal/review/agentic"
	"github.com/reviewloop/internal/storage"
	"github.com/reviewloop/internal/tagging"
	"github.com/reviewloop/internal/vcs"
	"github.com/reviewloop/internal/webhook"
)

// ServeCommand returns the CLI command for starting the webhook server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the ReviewLoop webhook server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the webhook server (overrides config)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
				Value: "info",
			},
		},
		Action: func(c *cli.Context) error {
			setupLogging(c.String("log-level"))

			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if c.IsSet("port") {
				cfg.Server.Port = c.Int("port")
			}

			processor, err := buildProcessor(c.Context, cfg)
			if err != nil {
				return err
			}

			pool := infra.NewTaskPool(cfg.Webhook.Workers, cfg.Webhook.QueueSize)
			server := api.NewServer(processor,
				infra.NewDedupeStore(cfg.Webhook.DedupeTTL, 4096),
				infra.NewCooldownStore(cfg.Webhook.CooldownTTL, 8192),
				infra.NewIPRateLimiter(cfg.Server.RatePerSec, cfg.Server.RateBurst),
				pool)

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("Starting webhook server")
				errCh <- server.Start(cfg.Server.Host, cfg.Server.Port)
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case sig := <-stop:
				log.Info().Str("signal", sig.String()).Msg("Shutting down")
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(ctx)
			}
		},
	}
}

func setupLogging(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}

// buildProcessor wires the full review pipeline from configuration.
func buildProcessor(ctx context.Context, cfg *config.Config) (*webhook.Processor, error) {
	gitlabSvc, err := vcs.NewGitLabService(cfg.GitLab)
	if err != nil {
		return nil, fmt.Errorf("gitlab service: %w", err)
	}

	llmClient := llm.NewClient(ctx, cfg.LLM)
	generator := agentic.NewGenerator(llmClient, agentic.Config{
		ProjectContextPath: cfg.Review.ProjectContextPath,
		MaxRetries:         cfg.Review.MaxRetries,
		MaxConcurrency:     cfg.Review.MaxConcurrency,
		EnableVerdict:      cfg.Review.EnableVerdict,
	})

	var classifier tagging.Classifier
	var candidates []string
	if cfg.Tagging.Enabled {
		classifier = tagging.NewLLMClassifier(llmClient, cfg.Tagging.MaxLabels)
		candidates = cfg.Tagging.LabelCandidates
	}

	var markers *storage.Markers
	if cfg.Storage.DataDir != "" {
		store, err := storage.NewFileStore(cfg.Storage.DataDir)
		if err != nil {
			log.Warn().Str("dir", cfg.Storage.DataDir).Err(err).Msg("Marker persistence disabled")
		} else {
			markers = storage.NewMarkers(store)
		}
	}

	return webhook.NewProcessor(gitlabSvc, generator, cfg.Server.WebhookSecret,
		classifier, candidates, jira.NewService(cfg.Jira), markers), nil
}
