// Package api exposes the webhook ingress over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/reviewloop/internal/infra"
	"github.com/reviewloop/internal/webhook"
)

const (
	headerGitlabToken     = "X-Gitlab-Token"
	headerGitlabEvent     = "X-Gitlab-Event"
	headerGitlabEventUUID = "X-Gitlab-Event-UUID"

	mergeRequestHook = "Merge Request Hook"
)

// Server wires the ingress middleware chain around the webhook
// processor. All stores are injected so tests can construct a server
// without global state.
type Server struct {
	echo      *echo.Echo
	processor *webhook.Processor
	dedupe    *infra.DedupeStore
	cooldown  *infra.CooldownStore
	limiter   *infra.IPRateLimiter
	pool      *infra.TaskPool
}

// NewServer builds the HTTP server and registers its routes
func NewServer(processor *webhook.Processor, dedupe *infra.DedupeStore, cooldown *infra.CooldownStore,
	limiter *infra.IPRateLimiter, pool *infra.TaskPool) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		processor: processor,
		dedupe:    dedupe,
		cooldown:  cooldown,
		limiter:   limiter,
		pool:      pool,
	}
	e.GET("/health", s.handleHealth)
	e.POST("/gitlab/webhook", s.handleGitlabWebhook)
	return s
}

// Start blocks serving HTTP until the listener fails or Shutdown runs.
func (s *Server) Start(host string, port int) error {
	return s.echo.Start(fmt.Sprintf("%s:%d", host, port))
}

// Shutdown stops the listener and drains the background pool.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	s.pool.Shutdown()
	return err
}

// Handler exposes the HTTP handler for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

// handleGitlabWebhook runs only the cheap synchronous checks and hands
// accepted events to the worker pool, so GitLab never waits on LLM
// latency.
func (s *Server) handleGitlabWebhook(c echo.Context) error {
	if err := s.processor.ValidateSecret(c.Request().Header.Get(headerGitlabToken)); err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"status": "error", "message": "invalid webhook token"})
	}
	if eventType := c.Request().Header.Get(headerGitlabEvent); eventType != mergeRequestHook {
		return c.JSON(http.StatusAccepted, map[string]string{"status": "ignored", "reason": "unsupported_event"})
	}
	if !s.limiter.Allow(c.RealIP()) {
		return c.JSON(http.StatusTooManyRequests, map[string]string{"status": "error", "message": "rate limited"})
	}

	var event webhook.Event
	if err := json.NewDecoder(c.Request().Body).Decode(&event); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"status": "error", "message": "malformed JSON body"})
	}

	result := s.processor.HandleMergeRequestEvent(&event)
	switch result.Status {
	case webhook.StatusIgnored:
		return c.JSON(http.StatusAccepted, map[string]string{"status": "ignored", "reason": result.Reason})
	case webhook.StatusError:
		return c.JSON(result.Code, map[string]string{"status": "error", "message": result.Message})
	}

	eventUUID := c.Request().Header.Get(headerGitlabEventUUID)
	dedupeKey := event.DedupeKey(eventUUID)
	if !s.dedupe.ShouldProcess(dedupeKey) {
		log.Info().Str("event_uuid", eventUUID).Int("mr_iid", result.MRIID).Msg("Duplicate delivery skipped")
		return c.JSON(http.StatusAccepted, map[string]string{"status": "duplicate_skipped"})
	}
	cooldownKey := event.CooldownKey()
	if !s.cooldown.Acquire(cooldownKey) {
		log.Info().Int("project_id", result.ProjectID).Int("mr_iid", result.MRIID).Msg("MR in cooldown, skipping")
		return c.JSON(http.StatusAccepted, map[string]string{"status": "cooldown_skipped"})
	}

	title := event.ObjectAttributes.Title
	description := event.ObjectAttributes.Description
	queued := s.pool.Submit(func(ctx context.Context) {
		s.processor.ProcessMergeRequest(ctx, result.ProjectID, result.MRIID, title, description, eventUUID)
	})
	if !queued {
		// The event was dropped, so do not hold dedupe or cooldown
		// state that would suppress GitLab's redelivery.
		s.cooldown.Release(cooldownKey)
		s.dedupe.Release(dedupeKey)
		log.Warn().Int("project_id", result.ProjectID).Int("mr_iid", result.MRIID).Msg("Worker queue full, dropping event")
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "error", "message": "processing queue full"})
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}
