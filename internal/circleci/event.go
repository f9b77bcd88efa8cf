package circleci

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	// EventTypeJobCompleted is the only webhook type the service acts on.
	EventTypeJobCompleted = "job-completed"
	// WorkflowStatusSuccess marks a workflow that finished successfully.
	WorkflowStatusSuccess = "success"
)

// ErrMalformedEvent indicates a webhook body that cannot be interpreted.
var ErrMalformedEvent = errors.New("malformed webhook event")

// WebhookEvent is the subset of a CircleCI webhook delivery the service reads.
// Unknown fields are ignored.
type WebhookEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	HappenedAt string    `json:"happened_at"`
	Project    *Project  `json:"project,omitempty"`
	Workflow   *Workflow `json:"workflow,omitempty"`
	Pipeline   *Pipeline `json:"pipeline,omitempty"`
	Job        *Job      `json:"job,omitempty"`
}

type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Workflow struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	URL    string `json:"url"`
}

type Pipeline struct {
	ID     string `json:"id"`
	Number int64  `json:"number"`
}

type Job struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number int    `json:"number"`
	Status string `json:"status"`
}

// ParseWebhookEvent decodes a webhook body.
//
// A job-completed event must carry job.name, job.number and workflow.status.
// Other event types are returned as-is so callers can ignore them.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	event.Type = strings.TrimSpace(event.Type)
	if event.Type == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	if event.Type != EventTypeJobCompleted {
		return event, nil
	}

	switch {
	case event.Job == nil:
		return WebhookEvent{}, fmt.Errorf("%w: missing job", ErrMalformedEvent)
	case strings.TrimSpace(event.Job.Name) == "":
		return WebhookEvent{}, fmt.Errorf("%w: missing job.name", ErrMalformedEvent)
	case event.Job.Number <= 0:
		return WebhookEvent{}, fmt.Errorf("%w: missing job.number", ErrMalformedEvent)
	case event.Workflow == nil || strings.TrimSpace(event.Workflow.Status) == "":
		return WebhookEvent{}, fmt.Errorf("%w: missing workflow.status", ErrMalformedEvent)
	}
	return event, nil
}

// IsSuccessfulJob reports whether the event is a successful completion of jobName.
func (e WebhookEvent) IsSuccessfulJob(jobName string) bool {
	if e.Type != EventTypeJobCompleted || e.Job == nil || e.Workflow == nil {
		return false
	}
	return e.Job.Name == jobName && e.Workflow.Status == WorkflowStatusSuccess
}

// JobNumber returns the job number, or zero when the event has no job.
func (e WebhookEvent) JobNumber() int {
	if e.Job == nil {
		return 0
	}
	return e.Job.Number
}
