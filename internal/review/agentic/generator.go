package agentic

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/reviewloop/internal/llm"
	"github.com/reviewloop/internal/retry"
	"github.com/reviewloop/internal/review"
)

// Config controls the generator's fan-out behavior.
type Config struct {
	ProjectContextPath string
	MaxRetries         int
	MaxConcurrency     int
	EnableVerdict      bool
}

// Generator implements review.Generator by running every agent against
// the same payload, tolerating individual agent failure, and composing
// a deterministic set of comments.
type Generator struct {
	client  llm.Client
	agents  []Agent
	verdict *VerdictAgent
	cfg     Config
}

// NewGenerator builds a generator with the standard agent set.
func NewGenerator(client llm.Client, cfg Config) *Generator {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	g := &Generator{
		client: client,
		agents: []Agent{
			&TaskContextAgent{},
			&CodeSummaryAgent{},
			&DiagramAgent{},
			&NamingQualityAgent{},
			&TestCoverageAgent{},
		},
		cfg: cfg,
	}
	if cfg.EnableVerdict {
		g.verdict = &VerdictAgent{}
	}
	return g
}

func (g *Generator) GenerateReview(ctx context.Context, in review.Input) (*review.Output, error) {
	payload := &Payload{
		Title:          in.Title,
		Description:    in.Description,
		DiffText:       in.DiffText,
		ChangedFiles:   in.ChangedFiles,
		CommitMessages: in.CommitMessages,
		ProjectContext: LoadProjectContext(g.cfg.ProjectContextPath),
	}
	if len(g.agents) == 0 {
		return &review.Output{}, nil
	}

	results := g.fanOut(ctx, payload)

	var findings []Finding
	for _, agent := range g.agents {
		res, ok := results[agent.Key()]
		if !ok {
			continue
		}
		for _, f := range res.Findings {
			if f.Path == "" || f.Line <= 0 {
				continue
			}
			findings = append(findings, f)
		}
	}
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Path != findings[j].Path {
			return findings[i].Path < findings[j].Path
		}
		return findings[i].Line < findings[j].Line
	})

	comments := g.composeComments(payload, results)
	if g.verdict != nil && anySuccess(results) {
		if verdictComment := g.runVerdict(ctx, payload, results, findings); verdictComment != nil {
			comments = append(comments, *verdictComment)
		}
	}

	out := &review.Output{Comments: comments}
	for _, f := range findings {
		out.InlineFindings = append(out.InlineFindings, review.InlineFinding{
			Path: f.Path, Line: f.Line, Body: f.Body, Source: f.Source,
		})
	}
	return out, nil
}

// fanOut runs all agents on a bounded worker set and collects one
// result per agent key regardless of completion order.
func (g *Generator) fanOut(ctx context.Context, payload *Payload) map[string]Result {
	workers := g.cfg.MaxConcurrency
	if workers > len(g.agents) {
		workers = len(g.agents)
	}

	jobs := make(chan Agent)
	results := make(map[string]Result, len(g.agents))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for agent := range jobs {
				res := g.runAgent(ctx, agent, payload)
				mu.Lock()
				results[agent.Key()] = res
				mu.Unlock()
			}
		}()
	}
	for _, agent := range g.agents {
		jobs <- agent
	}
	close(jobs)
	wg.Wait()
	return results
}

// runAgent executes one agent with per-agent retries. Failures degrade
// to an unsuccessful Result so one agent never sinks the whole review.
func (g *Generator) runAgent(ctx context.Context, agent Agent, payload *Payload) Result {
	if !g.client.Available() {
		reason := g.client.UnavailableReason()
		if reason == "" {
			reason = "LLM unavailable"
		}
		return Result{Key: agent.Key(), Success: false, Err: reason}
	}

	var res Result
	cfg := retry.LLMConfig()
	cfg.MaxRetries = g.cfg.MaxRetries
	outcome := retry.Do(ctx, cfg, func() error {
		var err error
		res, err = agent.Execute(ctx, g.client, payload)
		return err
	})
	if outcome.Success {
		return res
	}
	errText := "Agent failed without error"
	if outcome.LastError != nil {
		errText = outcome.LastError.Error()
	}
	log.Warn().Str("agent", agent.Key()).Str("error", errText).Msg("Agent execution failed")
	return Result{Key: agent.Key(), Success: false, Err: errText}
}

func (g *Generator) runVerdict(ctx context.Context, payload *Payload, results map[string]Result, findings []Finding) *review.Comment {
	summaries := make(map[string]string, len(results))
	for key, res := range results {
		if res.Success && res.Content != "" {
			summaries[key] = res.Content
		}
	}
	g.verdict.SetContext(findings, summaries)
	res := g.runAgent(ctx, g.verdict, payload)
	if !res.Success || res.Content == "" {
		return nil
	}
	// Verdict content carries its own heading.
	return &review.Comment{Body: res.Content}
}

func (g *Generator) composeComments(payload *Payload, results map[string]Result) []review.Comment {
	if len(results) == 0 {
		return nil
	}
	if !anySuccess(results) {
		return []review.Comment{{Title: "Agentic Reviewer", Body: g.fallbackBody(payload, results)}}
	}

	var comments []review.Comment
	if body := g.summaryBody(results); body != "" {
		comments = append(comments, review.Comment{Title: "Task and Diff Summary", Body: body})
	}
	if body := renderSection("Mermaid", results, "architecture_diagram"); body != "" {
		comments = append(comments, review.Comment{Title: "Architecture Diagram", Body: body})
	}
	if body := renderSection("Findings", results, "naming_quality"); body != "" {
		comments = append(comments, review.Comment{Title: "Naming and Documentation", Body: body})
	}
	if body := renderSection("Analysis", results, "test_coverage"); body != "" {
		comments = append(comments, review.Comment{Title: "Test Coverage Review", Body: body})
	}
	if len(comments) == 0 {
		return []review.Comment{{Title: "Agentic Reviewer", Body: g.fallbackBody(payload, results)}}
	}
	return comments
}

// summaryBody merges task-context and code-summary bullets, capped at
// five.
func (g *Generator) summaryBody(results map[string]Result) string {
	var bullets []string
	for _, key := range []string{"task_context", "code_summary"} {
		res, ok := results[key]
		if !ok || res.Content == "" {
			continue
		}
		for _, line := range strings.Split(res.Content, "\n") {
			line = strings.TrimSpace(line)
			line = strings.TrimSpace(strings.TrimPrefix(line, "-"))
			if line == "" {
				continue
			}
			bullets = append(bullets, line)
		}
	}
	if len(bullets) > 5 {
		bullets = bullets[:5]
	}
	return bulletList(bullets)
}

// renderSection renders one agent's section body. A failed agent shows
// its error; a suppressed (empty) success renders nothing so the
// section is omitted.
func renderSection(label string, results map[string]Result, key string) string {
	res, ok := results[key]
	if !ok {
		return ""
	}
	if res.Success {
		if res.Content == "" {
			return ""
		}
		return fmt.Sprintf("**%s**\n%s", label, strings.TrimSpace(res.Content))
	}
	errText := res.Err
	if errText == "" {
		errText = "No output produced."
	}
	return fmt.Sprintf("**%s**\nAgent error: %s", label, errText)
}

func (g *Generator) fallbackBody(payload *Payload, results map[string]Result) string {
	reason := "agent pipeline unavailable"
	for _, agent := range g.agents {
		if res, ok := results[agent.Key()]; ok && res.Err != "" {
			reason = res.Err
			break
		}
	}
	preview := payload.DiffText
	if len(preview) > 2000 {
		preview = preview[:2000]
	}
	return fmt.Sprintf("Agentic pipeline unavailable: %s\n\nDiff preview:\n```\n%s\n```", reason, preview)
}

func anySuccess(results map[string]Result) bool {
	for _, res := range results {
		if res.Success {
			return true
		}
	}
	return false
}
