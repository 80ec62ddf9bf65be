// Package webhook validates, filters, and processes GitLab merge
// request webhook events.
package webhook

import (
	"encoding/json"
	"fmt"
)

var allowedActions = map[string]bool{
	"open":   true,
	"reopen": true,
	"update": true,
}

// Update events touching only these fields carry no reviewable change.
var nonMeaningfulUpdateFields = map[string]bool{
	"labels":         true,
	"updated_at":     true,
	"last_edited_at": true,
	"assignee_id":    true,
	"assignee_ids":   true,
	"updated_by_id":  true,
}

// Event is the merge-request webhook payload subset this service
// consumes.
type Event struct {
	ObjectKind       string                     `json:"object_kind"`
	Project          ProjectInfo                `json:"project"`
	ObjectAttributes Attributes                 `json:"object_attributes"`
	Changes          map[string]json.RawMessage `json:"changes"`
}

type ProjectInfo struct {
	ID json.Number `json:"id"`
}

type Attributes struct {
	IID         json.Number `json:"iid"`
	Action      string      `json:"action"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	UpdatedAt   string      `json:"updated_at"`
	LastCommit  struct {
		ID string `json:"id"`
	} `json:"last_commit"`
}

// FilterStatus is the terminal classification of the cheap synchronous
// event check.
type FilterStatus string

const (
	StatusOK      FilterStatus = "ok"
	StatusIgnored FilterStatus = "ignored"
	StatusError   FilterStatus = "error"
)

// FilterResult carries the filter verdict plus the parsed identifiers
// for events that passed.
type FilterResult struct {
	Status    FilterStatus
	Reason    string
	Code      int
	Message   string
	ProjectID int
	MRIID     int
	Action    string
}

// DedupeKey returns the identity used to suppress redelivery of the
// same logical event. The event UUID wins when the sender provided
// one; otherwise identity derives from the payload itself.
func (e *Event) DedupeKey(eventUUID string) string {
	if eventUUID != "" {
		return eventUUID
	}
	shaOrTime := e.ObjectAttributes.LastCommit.ID
	if shaOrTime == "" {
		shaOrTime = e.ObjectAttributes.UpdatedAt
	}
	return fmt.Sprintf("%s:%s:%s:%s",
		e.Project.ID.String(), e.ObjectAttributes.IID.String(), shaOrTime, e.ObjectAttributes.Action)
}

// CooldownKey identifies the MR for the short per-MR quiet period.
func (e *Event) CooldownKey() string {
	return fmt.Sprintf("mr:%s:%s", e.Project.ID.String(), e.ObjectAttributes.IID.String())
}
