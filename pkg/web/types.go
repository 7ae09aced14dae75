// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/services"
)

const (
	EnvironmentHeader  = "X-Environment-Id"
	OrganizationHeader = "X-Organization-Id"
)

// StepRequest represents a step of an upserted workflow.
type StepRequest struct {
	ID            string             `json:"_id,omitempty"`
	StepID        string             `json:"stepId"`
	Name          string             `json:"name"`
	Type          string             `json:"type"                    validate:"required,oneof=in_app email sms chat push digest delay throttle custom"`
	ControlSchema *models.JSONSchema `json:"controlSchema,omitempty"`
	ControlValues map[string]any     `json:"controlValues,omitempty"`
}

// UpsertWorkflowRequest represents the request body for creating or replacing a workflow.
// Content problems are reported as workflow issues, not rejected.
type UpsertWorkflowRequest struct {
	WorkflowID    string             `json:"workflowId"`
	Name          string             `json:"name"`
	Description   string             `json:"description,omitempty"`
	Tags          []string           `json:"tags,omitempty"`
	Active        *bool              `json:"active,omitempty"`
	PayloadSchema *models.JSONSchema `json:"payloadSchema,omitempty"`
	Steps         []StepRequest      `json:"steps"                   validate:"dive"`
}

// Command converts the request into a service command. Workflows are active
// unless stated otherwise.
func (r UpsertWorkflowRequest) Command(id string) services.UpsertCommand {
	active := true
	if r.Active != nil {
		active = *r.Active
	}

	steps := make([]services.StepInput, 0, len(r.Steps))
	for _, step := range r.Steps {
		steps = append(steps, services.StepInput{
			ID:            step.ID,
			StepID:        step.StepID,
			Name:          step.Name,
			Type:          models.StepType(step.Type),
			ControlSchema: step.ControlSchema,
			ControlValues: step.ControlValues,
		})
	}

	return services.UpsertCommand{
		ID:            id,
		WorkflowID:    r.WorkflowID,
		Name:          r.Name,
		Description:   r.Description,
		Tags:          r.Tags,
		Active:        active,
		PayloadSchema: r.PayloadSchema,
		Steps:         steps,
	}
}

// PatchWorkflowRequest represents the request body for updating an existing workflow.
// All fields are optional to support partial updates.
type PatchWorkflowRequest struct {
	Name          *string            `json:"name,omitempty"`
	Description   *string            `json:"description,omitempty"`
	Tags          *[]string          `json:"tags,omitempty"`
	Active        *bool              `json:"active,omitempty"`
	PayloadSchema *models.JSONSchema `json:"payloadSchema,omitempty"`
}

func (r PatchWorkflowRequest) Command() services.PatchCommand {
	return services.PatchCommand{
		Name:          r.Name,
		Description:   r.Description,
		Tags:          r.Tags,
		Active:        r.Active,
		PayloadSchema: r.PayloadSchema,
	}
}

// PatchStepRequest replaces the control values of a step.
type PatchStepRequest struct {
	ControlValues map[string]any `json:"controlValues" validate:"required"`
}

// PreviewRequest represents the request body of a step preview. Both fields
// are optional.
type PreviewRequest struct {
	ControlValues  map[string]any `json:"controlValues,omitempty"`
	PreviewPayload map[string]any `json:"previewPayload,omitempty"`
}

// ValidateRequest represents the request body for validating free-standing content.
type ValidateRequest struct {
	StepType       string             `json:"stepType"                 validate:"required,oneof=in_app email sms chat push digest delay throttle custom"`
	ControlValues  map[string]any     `json:"controlValues"            validate:"required"`
	PreviewPayload map[string]any     `json:"previewPayload,omitempty"`
	PayloadSchema  *models.JSONSchema `json:"payloadSchema,omitempty"`
	Tier           string             `json:"tier,omitempty"           validate:"omitempty,oneof=free pro team business enterprise"`
}

func (r ValidateRequest) Command() services.ValidateCommand {
	return services.ValidateCommand{
		StepType:       models.StepType(r.StepType),
		ControlValues:  r.ControlValues,
		PreviewPayload: r.PreviewPayload,
		PayloadSchema:  r.PayloadSchema,
		Tier:           models.Tier(r.Tier),
	}
}

// ValidateResponse is the outcome of ValidateContent.
type ValidateResponse struct {
	FinalControlValues map[string]any       `json:"finalControlValues"`
	FinalPayload       map[string]any       `json:"finalPayload"`
	Issues             models.ContentIssues `json:"issues"`
}
