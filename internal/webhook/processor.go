package webhook

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/reviewloop/internal/jira"
	"github.com/reviewloop/internal/review"
	"github.com/reviewloop/internal/storage"
	"github.com/reviewloop/internal/tagging"
	"github.com/reviewloop/internal/vcs"
)

const maxInlineFindings = 10

// Processor owns the full lifecycle of one merge-request event: secret
// validation, cheap filtering, and the asynchronous review pipeline.
type Processor struct {
	service         vcs.Service
	reviewer        review.Generator
	webhookSecret   string
	classifier      tagging.Classifier
	labelCandidates []string
	jiraService     *jira.Service
	markers         *storage.Markers
}

// NewProcessor wires the processor's collaborators. classifier, jira
// and markers are optional.
func NewProcessor(service vcs.Service, reviewer review.Generator, webhookSecret string,
	classifier tagging.Classifier, labelCandidates []string, jiraService *jira.Service,
	markers *storage.Markers) *Processor {
	return &Processor{
		service:         service,
		reviewer:        reviewer,
		webhookSecret:   webhookSecret,
		classifier:      classifier,
		labelCandidates: labelCandidates,
		jiraService:     jiraService,
		markers:         markers,
	}
}

// ValidateSecret checks the shared-secret header value.
func (p *Processor) ValidateSecret(provided string) error {
	if provided == "" || provided != p.webhookSecret {
		return fmt.Errorf("invalid webhook token")
	}
	return nil
}

// HandleMergeRequestEvent performs the cheap synchronous validation
// and filtering pass. It never touches the network.
func (p *Processor) HandleMergeRequestEvent(event *Event) FilterResult {
	if event.ObjectKind != "merge_request" {
		return FilterResult{Status: StatusIgnored, Reason: "not_merge_request"}
	}

	projectIDRaw := event.Project.ID.String()
	mrIIDRaw := event.ObjectAttributes.IID.String()
	if projectIDRaw == "" || mrIIDRaw == "" {
		return FilterResult{Status: StatusError, Code: 400, Message: "Missing project_id or mr_iid"}
	}
	projectID, errP := event.Project.ID.Int64()
	mrIID, errM := event.ObjectAttributes.IID.Int64()
	if errP != nil || errM != nil {
		return FilterResult{Status: StatusError, Code: 400, Message: "project_id and mr_iid must be integers"}
	}
	if projectID <= 0 || mrIID <= 0 {
		return FilterResult{Status: StatusError, Code: 400, Message: "project_id and mr_iid must be positive integers"}
	}

	action := event.ObjectAttributes.Action
	if !allowedActions[action] {
		return FilterResult{Status: StatusIgnored, Reason: action}
	}
	if action == "update" && len(event.Changes) > 0 {
		meaningful := false
		for field := range event.Changes {
			if !nonMeaningfulUpdateFields[field] {
				meaningful = true
				break
			}
		}
		if !meaningful {
			log.Info().Int64("project_id", projectID).Int64("mr_iid", mrIID).Msg("Skipping non-meaningful update")
			return FilterResult{Status: StatusIgnored, Reason: "non_meaningful_update"}
		}
	}

	return FilterResult{
		Status:    StatusOK,
		ProjectID: int(projectID),
		MRIID:     int(mrIID),
		Action:    action,
	}
}

// ProcessMergeRequest runs the heavy pipeline for one validated event:
// gather MR data, augment with tracker issues, generate the review,
// and post the outcome. Every side effect is individually guarded so
// partial failure never aborts the rest.
func (p *Processor) ProcessMergeRequest(ctx context.Context, projectID, mrIID int, title, description, eventUUID string) {
	log.Info().
		Str("event_uuid", eventUUID).
		Int("project_id", projectID).
		Int("mr_iid", mrIID).
		Msg("Processing MR start")

	if _, err := p.service.GetProject(ctx, projectID); err != nil {
		log.Error().Int("project_id", projectID).Err(err).Msg("Failed to fetch project for processing")
		return
	}

	diffText, changedFiles, commitMessages := p.gatherMRData(ctx, projectID, mrIID)
	description = p.augmentWithTickets(ctx, projectID, mrIID, title, description)

	in := review.Input{
		Title:          title,
		Description:    description,
		DiffText:       diffText,
		ChangedFiles:   changedFiles,
		CommitMessages: commitMessages,
	}
	output, labels := p.reviewAndClassify(ctx, in, projectID, mrIID)
	p.handleReviewOutcome(ctx, projectID, mrIID, output, labels, eventUUID)

	log.Info().
		Str("event_uuid", eventUUID).
		Int("project_id", projectID).
		Int("mr_iid", mrIID).
		Msg("Processing MR done")
}

// gatherMRData fetches diff, files, and commits concurrently. A failed
// fetch degrades to its zero value.
func (p *Processor) gatherMRData(ctx context.Context, projectID, mrIID int) (string, []review.File, []string) {
	var (
		wg             sync.WaitGroup
		diffText       string
		changedFiles   []review.File
		commitMessages []string
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		text, err := p.service.CollectMRDiffText(ctx, projectID, mrIID)
		if err != nil {
			log.Error().Int("mr_iid", mrIID).Err(err).Msg("Failed to fetch MR diff")
			return
		}
		diffText = text
	}()
	go func() {
		defer wg.Done()
		files, err := p.service.GetChangedFilesWithContent(ctx, projectID, mrIID)
		if err != nil {
			log.Error().Int("mr_iid", mrIID).Err(err).Msg("Failed to fetch changed files")
			return
		}
		for _, f := range files {
			changedFiles = append(changedFiles, review.File{Path: f.Path, Content: f.Content})
		}
	}()
	go func() {
		defer wg.Done()
		commits, err := p.service.GetMRCommits(ctx, projectID, mrIID)
		if err != nil {
			log.Error().Int("mr_iid", mrIID).Err(err).Msg("Failed to fetch MR commits")
			return
		}
		for _, c := range commits {
			if c.Title != "" {
				commitMessages = append(commitMessages, c.Title)
			}
		}
	}()
	wg.Wait()
	return diffText, changedFiles, commitMessages
}

// augmentWithTickets appends related tracker issues to the description
// when the integration is configured. Any failure returns the original
// description.
func (p *Processor) augmentWithTickets(ctx context.Context, projectID, mrIID int, title, description string) string {
	if p.jiraService == nil || !p.jiraService.Enabled() {
		return description
	}
	var labels []string
	var createdAt, mrURL string
	if info, err := p.service.GetMRInfo(ctx, projectID, mrIID); err == nil {
		labels = info.Labels
		createdAt = info.CreatedAt
		mrURL = info.WebURL
	}
	issues := p.jiraService.SearchRelatedIssues(ctx, title, description, labels, createdAt, mrURL)
	if len(issues) == 0 {
		log.Info().Int("mr_iid", mrIID).Msg("No related Jira tickets found")
		return description
	}
	log.Info().Int("mr_iid", mrIID).Int("count", len(issues)).Msg("Appending related Jira tickets")
	return description + "\n\n" + jira.FormatRelatedIssues(issues)
}

// reviewAndClassify runs the generator and the optional classifier in
// parallel.
func (p *Processor) reviewAndClassify(ctx context.Context, in review.Input, projectID, mrIID int) (*review.Output, []string) {
	var (
		wg     sync.WaitGroup
		output *review.Output
		labels []string
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		out, err := p.reviewer.GenerateReview(ctx, in)
		if err != nil {
			log.Error().Int("mr_iid", mrIID).Int("project_id", projectID).Err(err).Msg("Failed to generate review")
			return
		}
		output = out
	}()
	if p.classifier != nil && len(p.labelCandidates) > 0 {
		log.Info().Int("candidates_count", len(p.labelCandidates)).Int("mr_iid", mrIID).Msg("Tagging enabled; classifying MR")
		wg.Add(1)
		go func() {
			defer wg.Done()
			labels = p.classifier.Classify(ctx, in, p.labelCandidates)
		}()
	}
	wg.Wait()

	if output == nil {
		output = &review.Output{}
	}
	return output, labels
}

func (p *Processor) handleReviewOutcome(ctx context.Context, projectID, mrIID int, output *review.Output, labels []string, eventUUID string) {
	if len(output.Comments) > 0 {
		versionID := p.safeLatestVersionID(ctx, projectID, mrIID)
		marker := buildVersionMarker(versionID)
		if p.hasExistingMarker(ctx, projectID, mrIID, marker) {
			log.Info().Int("mr_iid", mrIID).Str("version", versionID).Msg("Duplicate review detected for version, skipping post")
		} else {
			p.postReviewComments(ctx, projectID, mrIID, output.Comments, marker, eventUUID, versionID)
		}
	}
	if len(output.InlineFindings) > 0 {
		p.postInlineFindings(ctx, projectID, mrIID, output.InlineFindings)
	}
	if len(labels) > 0 {
		if err := p.service.UpdateMRLabels(ctx, projectID, mrIID, labels); err != nil {
			log.Error().Int("mr_iid", mrIID).Err(err).Msg("Failed to apply MR label")
		} else {
			log.Info().Str("event_uuid", eventUUID).Strs("labels", labels).Int("mr_iid", mrIID).Msg("Applied MR labels")
		}
	}
}

func (p *Processor) safeLatestVersionID(ctx context.Context, projectID, mrIID int) string {
	versionID, err := p.service.GetLatestMRVersionID(ctx, projectID, mrIID)
	if err != nil {
		return ""
	}
	return versionID
}

func buildVersionMarker(versionID string) string {
	if versionID == "" {
		versionID = "unknown"
	}
	return fmt.Sprintf("[ai-review v:%s]", versionID)
}

// hasExistingMarker reports whether a review for this version was
// already posted, consulting the durable marker store and then the
// MR's recent notes.
func (p *Processor) hasExistingMarker(ctx context.Context, projectID, mrIID int, marker string) bool {
	key := fmt.Sprintf("%d:%d", projectID, mrIID)
	if p.markers != nil && p.markers.Seen(key, marker) {
		return true
	}
	notes, err := p.service.ListRecentNotes(ctx, projectID, mrIID, 20)
	if err != nil {
		return false
	}
	for _, body := range notes {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

// postReviewComments posts the ordered comments with the idempotency
// marker prefixed to the first one. A failed post stops the remainder
// so a retry does not shuffle ordering.
func (p *Processor) postReviewComments(ctx context.Context, projectID, mrIID int, comments []review.Comment, marker, eventUUID, versionID string) {
	bodies := make([]string, 0, len(comments))
	for _, c := range comments {
		bodies = append(bodies, c.Markdown())
	}
	if len(bodies) > 0 && bodies[0] != "" {
		bodies[0] = marker + "\n" + bodies[0]
	} else if len(bodies) > 0 {
		bodies[0] = marker
	}

	for _, body := range bodies {
		if body == "" {
			continue
		}
		if err := p.service.PostMRNote(ctx, projectID, mrIID, body); err != nil {
			log.Error().Int("mr_iid", mrIID).Int("project_id", projectID).Err(err).Msg("Failed to post MR note")
			return
		}
	}
	if p.markers != nil {
		p.markers.Record(fmt.Sprintf("%d:%d", projectID, mrIID), marker)
	}
	log.Info().
		Str("event_uuid", eventUUID).
		Int("project_id", projectID).
		Int("mr_iid", mrIID).
		Str("version", versionID).
		Msg("Posted MR review")
}

// postInlineFindings posts up to maxInlineFindings line comments, each
// independently fault isolated.
func (p *Processor) postInlineFindings(ctx context.Context, projectID, mrIID int, findings []review.InlineFinding) {
	capped := findings
	if len(capped) > maxInlineFindings {
		capped = capped[:maxInlineFindings]
	}
	for _, f := range capped {
		if err := p.service.ReviewLine(ctx, projectID, mrIID, f.Path, f.Line, f.Body); err != nil {
			log.Error().
				Int("mr_iid", mrIID).
				Str("path", f.Path).
				Int("line", f.Line).
				Err(err).
				Msg("Failed to post inline finding")
		}
	}
}
