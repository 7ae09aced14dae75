package models

import "time"

// StepType is the channel or action type of a workflow step.
type StepType string

const (
	StepTypeInApp    StepType = "in_app"
	StepTypeEmail    StepType = "email"
	StepTypeSMS      StepType = "sms"
	StepTypeChat     StepType = "chat"
	StepTypePush     StepType = "push"
	StepTypeDigest   StepType = "digest"
	StepTypeDelay    StepType = "delay"
	StepTypeThrottle StepType = "throttle"
	StepTypeCustom   StepType = "custom"
)

// StepTypes lists every supported step type.
var StepTypes = []StepType{
	StepTypeInApp,
	StepTypeEmail,
	StepTypeSMS,
	StepTypeChat,
	StepTypePush,
	StepTypeDigest,
	StepTypeDelay,
	StepTypeThrottle,
	StepTypeCustom,
}

// IsValid reports whether t is a known step type.
func (t StepType) IsValid() bool {
	for _, known := range StepTypes {
		if t == known {
			return true
		}
	}

	return false
}

// Step is a single node of a workflow. Its control values are stored separately.
type Step struct {
	ID            string      `json:"id"`
	StepID        string      `json:"stepId"` // Slug referenced as steps.<stepId> by later steps
	Name          string      `json:"name"`
	Type          StepType    `json:"type"`
	ControlSchema *JSONSchema `json:"controlSchema,omitempty"` // Overrides the built-in schema of the step type
	Issues        *StepIssues `json:"issues,omitempty"`
}

// ControlValuesLevel is the level a set of control values is stored at.
type ControlValuesLevel string

const ControlValuesLevelStep ControlValuesLevel = "step_controls"

// ControlValuesKey identifies the control values of a single step.
type ControlValuesKey struct {
	EnvironmentID  string
	OrganizationID string
	WorkflowID     string // Workflow.ID, not the trigger identifier
	StepID         string // Step.ID
	Level          ControlValuesLevel
}

// ControlValues holds the user-editable fields of a step, one entry per control key.
type ControlValues struct {
	ID             string             `json:"id"`
	EnvironmentID  string             `json:"environmentId"`
	OrganizationID string             `json:"organizationId"`
	WorkflowID     string             `json:"workflowId"`
	StepID         string             `json:"stepId"`
	Level          ControlValuesLevel `json:"level"`
	Controls       map[string]any     `json:"controls"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// Key returns the lookup key of the control values.
func (c *ControlValues) Key() ControlValuesKey {
	return ControlValuesKey{
		EnvironmentID:  c.EnvironmentID,
		OrganizationID: c.OrganizationID,
		WorkflowID:     c.WorkflowID,
		StepID:         c.StepID,
		Level:          c.Level,
	}
}
