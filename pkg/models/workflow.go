// Package models defines the core domain models for notification workflows and their validation results.
package models

import "time"

// WorkflowStatus represents the computed state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusActive   WorkflowStatus = "active"   // Enabled, no issues
	WorkflowStatusInactive WorkflowStatus = "inactive" // Disabled by the user
	WorkflowStatusError    WorkflowStatus = "error"    // Enabled, but workflow or steps carry issues
)

// Workflow is a multi-step, multi-channel notification template.
type Workflow struct {
	ID             string                     `json:"id"`
	WorkflowID     string                     `json:"workflowId"` // Trigger identifier, unique per environment
	EnvironmentID  string                     `json:"environmentId"`
	OrganizationID string                     `json:"organizationId"`
	Name           string                     `json:"name"`
	Description    string                     `json:"description,omitempty"`
	Tags           []string                   `json:"tags,omitempty"`
	Active         bool                       `json:"active"`
	Status         WorkflowStatus             `json:"status"`
	PayloadSchema  *JSONSchema                `json:"payloadSchema,omitempty"`
	Steps          []*Step                    `json:"steps"`
	Issues         map[string][]WorkflowIssue `json:"issues,omitempty"`
	CreatedAt      time.Time                  `json:"createdAt"`
	UpdatedAt      time.Time                  `json:"updatedAt"`
}

// StepIndex returns the position of the step identified by its internal ID
// or its step ID, or -1.
func (w *Workflow) StepIndex(stepID string) int {
	for i, step := range w.Steps {
		if step.ID == stepID || step.StepID == stepID {
			return i
		}
	}

	return -1
}

// FindStep returns the step identified by its internal ID or its step ID, or nil.
func (w *Workflow) FindStep(stepID string) *Step {
	idx := w.StepIndex(stepID)
	if idx < 0 {
		return nil
	}

	return w.Steps[idx]
}

// Tier is the billing plan of an organization, used for tier restrictions.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierTeam       Tier = "team"
	TierBusiness   Tier = "business"
	TierEnterprise Tier = "enterprise"
)
