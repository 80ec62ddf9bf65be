package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/reviewloop/internal/config"
	"github.com/reviewloop/internal/vcs"
)

// SetupWebhookCommand returns the CLI command that registers the
// merge-request webhook on a GitLab project
func SetupWebhookCommand() *cli.Command {
	return &cli.Command{
		Name:  "setup-webhook",
		Usage: "Register the merge-request webhook for a GitLab project",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "project",
				Usage:    "GitLab project ID",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "url",
				Usage:    "Publicly reachable webhook URL (e.g. https://host/gitlab/webhook)",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			svc, err := vcs.NewGitLabService(cfg.GitLab)
			if err != nil {
				return err
			}
			projectID := c.Int("project")
			if err := svc.EnsureWebhookForProject(c.Context, projectID, c.String("url"), cfg.Server.WebhookSecret); err != nil {
				return err
			}
			fmt.Printf("Webhook configured for project %d\n", projectID)
			return nil
		},
	}
}

// TestMRCommand returns the CLI command that opens a throwaway MR to
// exercise the review pipeline end to end
func TestMRCommand() *cli.Command {
	return &cli.Command{
		Name:  "test-mr",
		Usage: "Create a smoke-test merge request on a GitLab project",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "project",
				Usage:    "GitLab project ID",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "title",
				Usage: "Title for the test MR",
				Value: "ReviewLoop smoke test",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			svc, err := vcs.NewGitLabService(cfg.GitLab)
			if err != nil {
				return err
			}
			branch := fmt.Sprintf("review-smoke-%s", uuid.NewString()[:8])
			url, err := svc.CreateTestMR(c.Context, c.Int("project"), branch, c.String("title"))
			if err != nil {
				return err
			}
			fmt.Printf("Test MR created: %s\n", url)
			return nil
		},
	}
}
