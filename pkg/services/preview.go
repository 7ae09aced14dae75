package services

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dukex/notiflow/pkg/content"
	"github.com/dukex/notiflow/pkg/controlvalue"
	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/otelhelper"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/dukex/notiflow/pkg/preview"
)

// StepPreviewer renders the content of a step.
type StepPreviewer interface {
	Generate(ctx context.Context, cmd content.Command) (preview.Result, error)
}

// PreviewCommand overrides the stored state of a previewed step.
type PreviewCommand struct {
	// ControlValues replaces the stored control values when not nil.
	ControlValues  map[string]any
	PreviewPayload map[string]any
}

// ValidateCommand validates control values outside of any stored workflow.
type ValidateCommand struct {
	StepType       models.StepType
	ControlValues  map[string]any
	PreviewPayload map[string]any
	PayloadSchema  *models.JSONSchema
	Tier           models.Tier // Defaults to the service tier
}

// Preview renders steps of stored workflows and validates free-standing content.
type Preview struct {
	workflows *Workflow
	previewer StepPreviewer
}

func NewPreview(workflows *Workflow, previewer StepPreviewer) *Preview {
	return &Preview{
		workflows: workflows,
		previewer: previewer,
	}
}

// PreviewStep renders a step of a tenant's workflow.
func (p *Preview) PreviewStep(ctx context.Context, tenant Tenant, workflowID, stepID string, cmd PreviewCommand) (preview.Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, p.workflows.tracer, "workflow.preview_step",
		attribute.String(otelhelper.EnvironmentIDKey, tenant.EnvironmentID),
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.String(otelhelper.StepIDKey, stepID),
	)
	defer span.End()

	result, err := p.previewStep(ctx, tenant, workflowID, stepID, cmd)
	if err != nil {
		otelhelper.SetError(span, err)

		return preview.Result{}, err
	}

	otelhelper.RecordIssues(span, len(result.Issues))

	return result, nil
}

func (p *Preview) previewStep(ctx context.Context, tenant Tenant, workflowID, stepID string, cmd PreviewCommand) (preview.Result, error) {
	err := tenant.validate("PreviewStep")
	if err != nil {
		return preview.Result{}, err
	}

	wf, err := p.workflows.resolve(ctx, tenant, workflowID)
	if err != nil {
		return preview.Result{}, err
	}

	step := wf.FindStep(stepID)
	if step == nil {
		return preview.Result{}, persistence.NewStepError("PreviewStep", wf.ID, stepID, ErrStepNotFound)
	}

	controls, err := p.workflows.loadControls(ctx, wf)
	if err != nil {
		return preview.Result{}, err
	}

	if cmd.ControlValues != nil {
		controls[step.ID] = controlvalue.CloneMap(cmd.ControlValues)
	}

	payloadSchema, err := payloadSchemaFor(wf, controls)
	if err != nil {
		return preview.Result{}, err
	}

	command, err := stepCommand(wf, step, controls[step.ID], payloadSchema, cmd.PreviewPayload, p.workflows.tier)
	if err != nil {
		return preview.Result{}, err
	}

	result, err := p.previewer.Generate(ctx, command)
	if err != nil {
		return preview.Result{}, fmt.Errorf("failed to generate preview: %w", err)
	}

	return result, nil
}

// Validate runs the content pipeline on control values of the given step
// type, as if they belonged to the only step of a workflow.
func (p *Preview) Validate(ctx context.Context, cmd ValidateCommand) (content.ValidatedContent, error) {
	if !cmd.StepType.IsValid() {
		return content.ValidatedContent{}, NewValidationError("Validate", "INVALID_STEP_TYPE",
			fmt.Sprintf("invalid step type '%s'", cmd.StepType), ErrInvalidStepType)
	}

	step := &models.Step{ID: string(cmd.StepType), StepID: string(cmd.StepType), Type: cmd.StepType}
	wf := &models.Workflow{PayloadSchema: cmd.PayloadSchema, Steps: []*models.Step{step}}

	payloadSchema, err := payloadSchemaFor(wf, map[string]map[string]any{step.ID: cmd.ControlValues})
	if err != nil {
		return content.ValidatedContent{}, err
	}

	tier := cmd.Tier
	if tier == "" {
		tier = p.workflows.tier
	}

	command, err := stepCommand(wf, step, cmd.ControlValues, payloadSchema, cmd.PreviewPayload, tier)
	if err != nil {
		return content.ValidatedContent{}, err
	}

	return p.workflows.validator.PrepareAndValidate(ctx, command)
}
