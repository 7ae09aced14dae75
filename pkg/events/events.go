// Package events defines the workflow lifecycle notifications published on the event bus.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/dukex/notiflow/pkg/models"
)

type EventType string

// Topic carries every workflow event.
const Topic = "notiflow.workflows"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowUpsertedEvent      EventType = "workflow.upserted"
	WorkflowStatusChangedEvent EventType = "workflow.status_changed"
	WorkflowDeletedEvent       EventType = "workflow.deleted"
)

type BaseEvent struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	Timestamp      time.Time `json:"timestamp"`
	WorkflowID     string    `json:"workflow_id"`
	EnvironmentID  string    `json:"environment_id"`
	OrganizationID string    `json:"organization_id"`
}

// NewBaseEvent stamps a new event for the given workflow.
func NewBaseEvent(eventType EventType, wf *models.Workflow) BaseEvent {
	return BaseEvent{
		ID:             uuid.New().String(),
		Type:           eventType,
		Timestamp:      time.Now().UTC(),
		WorkflowID:     wf.ID,
		EnvironmentID:  wf.EnvironmentID,
		OrganizationID: wf.OrganizationID,
	}
}

// WorkflowUpserted is published after a workflow and its control values are stored.
type WorkflowUpserted struct {
	BaseEvent

	TriggerID  string                `json:"trigger_id"`
	Status     models.WorkflowStatus `json:"status"`
	StepCount  int                   `json:"step_count"`
	IssueCount int                   `json:"issue_count"`
	Created    bool                  `json:"created"`
}

func (e WorkflowUpserted) GetType() EventType {
	return WorkflowUpsertedEvent
}

// WorkflowStatusChanged is published when a save or a revalidation changes the status.
type WorkflowStatusChanged struct {
	BaseEvent

	PreviousStatus models.WorkflowStatus `json:"previous_status"`
	Status         models.WorkflowStatus `json:"status"`
}

func (e WorkflowStatusChanged) GetType() EventType {
	return WorkflowStatusChangedEvent
}

type WorkflowDeleted struct {
	BaseEvent

	TriggerID string `json:"trigger_id"`
}

func (e WorkflowDeleted) GetType() EventType {
	return WorkflowDeletedEvent
}

// CountIssues returns the number of workflow-level and step issues of wf.
func CountIssues(wf *models.Workflow) int {
	count := 0

	for _, fieldIssues := range wf.Issues {
		count += len(fieldIssues)
	}

	for _, step := range wf.Steps {
		if step.Issues == nil {
			continue
		}

		count += len(step.Issues.Body)

		for _, controlIssues := range step.Issues.Controls {
			count += len(controlIssues)
		}
	}

	return count
}
