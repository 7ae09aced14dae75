package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/notiflow/pkg/content"
	"github.com/dukex/notiflow/pkg/controlvalue"
	"github.com/dukex/notiflow/pkg/eventbus"
	"github.com/dukex/notiflow/pkg/events"
	"github.com/dukex/notiflow/pkg/issues"
	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/otelhelper"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/dukex/notiflow/pkg/preview"
	"github.com/dukex/notiflow/pkg/schema"
)

// Tenant scopes every operation to an environment of an organization.
type Tenant struct {
	EnvironmentID  string
	OrganizationID string
}

func (t Tenant) validate(op string) error {
	if strings.TrimSpace(t.EnvironmentID) == "" || strings.TrimSpace(t.OrganizationID) == "" {
		return NewValidationError(op, "TENANT_REQUIRED", ErrTenantRequired.Error(), ErrTenantRequired)
	}

	return nil
}

func (t Tenant) owns(wf *models.Workflow) bool {
	return wf.EnvironmentID == t.EnvironmentID && wf.OrganizationID == t.OrganizationID
}

// StepInput describes a step of an upserted workflow.
type StepInput struct {
	ID            string // Internal ID of an existing step; generated when empty
	StepID        string
	Name          string
	Type          models.StepType
	ControlSchema *models.JSONSchema
	// ControlValues replaces the stored values of the step. Nil keeps them.
	ControlValues map[string]any
}

// UpsertCommand creates a workflow, or replaces the one identified by ID.
type UpsertCommand struct {
	ID            string
	WorkflowID    string
	Name          string
	Description   string
	Tags          []string
	Active        bool
	PayloadSchema *models.JSONSchema
	Steps         []StepInput
}

// PatchCommand updates the non-nil fields of a workflow.
type PatchCommand struct {
	Name          *string
	Description   *string
	Tags          *[]string
	Active        *bool
	PayloadSchema *models.JSONSchema
}

// StepDetails is a step with everything an editor needs to render it.
type StepDetails struct {
	WorkflowID     string             `json:"workflowId"`
	Step           *models.Step       `json:"step"`
	ControlValues  map[string]any     `json:"controlValues"`
	ControlSchema  *models.JSONSchema `json:"controlSchema"`
	VariableSchema *models.JSONSchema `json:"variableSchema"`
}

// RevalidationResult summarizes a Revalidate run.
type RevalidationResult struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

type Workflow struct {
	persistence persistence.Persistence
	validator   preview.ContentValidator
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
	tier        models.Tier
}

// NewWorkflow creates a new workflow service. tier is the plan used for tier
// restrictions. publisher may be nil.
func NewWorkflow(
	logger *slog.Logger,
	persistence persistence.Persistence,
	validator preview.ContentValidator,
	publisher eventbus.EventPublisher,
	tracer trace.Tracer,
	tier models.Tier,
) *Workflow {
	return &Workflow{
		persistence: persistence,
		validator:   validator,
		publisher:   publisher,
		tracer:      tracer,
		logger:      logger.With("module", "workflow_service"),
		tier:        tier,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Upsert creates or replaces a workflow with its steps and step control
// values, then recomputes every issue and the workflow status.
func (w *Workflow) Upsert(ctx context.Context, tenant Tenant, cmd UpsertCommand) (*models.Workflow, error) {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "workflow.upsert",
		attribute.String(otelhelper.EnvironmentIDKey, tenant.EnvironmentID),
		attribute.String(otelhelper.TriggerIDKey, cmd.WorkflowID),
	)
	defer span.End()

	wf, err := w.upsert(ctx, tenant, cmd)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(
		attribute.String(otelhelper.WorkflowIDKey, wf.ID),
		attribute.Int(otelhelper.IssueCountKey, events.CountIssues(wf)),
	)

	return wf, nil
}

func (w *Workflow) upsert(ctx context.Context, tenant Tenant, cmd UpsertCommand) (*models.Workflow, error) {
	err := tenant.validate("Upsert")
	if err != nil {
		return nil, err
	}

	var existing *models.Workflow

	storedControls := map[string]map[string]any{}

	if cmd.ID != "" {
		existing, err = w.resolve(ctx, tenant, cmd.ID)
		if err != nil {
			return nil, err
		}

		storedControls, err = w.loadControls(ctx, existing)
		if err != nil {
			return nil, err
		}
	}

	wf := &models.Workflow{
		WorkflowID:     strings.TrimSpace(cmd.WorkflowID),
		EnvironmentID:  tenant.EnvironmentID,
		OrganizationID: tenant.OrganizationID,
		Name:           cmd.Name,
		Description:    cmd.Description,
		Tags:           cmd.Tags,
		Active:         cmd.Active,
		PayloadSchema:  cmd.PayloadSchema,
		Steps:          make([]*models.Step, 0, len(cmd.Steps)),
	}

	var previousStatus models.WorkflowStatus

	if existing != nil {
		wf.ID = existing.ID
		wf.CreatedAt = existing.CreatedAt
		previousStatus = existing.Status
	} else {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		wf.ID = id.String()
	}

	controls := map[string]map[string]any{}
	used := map[string]bool{}

	for _, input := range cmd.Steps {
		step, err := buildStep(existing, input, used)
		if err != nil {
			return nil, err
		}

		wf.Steps = append(wf.Steps, step)

		if input.ControlValues != nil {
			controls[step.ID] = controlvalue.CloneMap(input.ControlValues)
		} else {
			controls[step.ID] = storedControls[step.ID]
		}
	}

	err = w.validate(ctx, wf, controls)
	if err != nil {
		return nil, err
	}

	err = w.save(ctx, wf, controls, existing)
	if err != nil {
		return nil, err
	}

	w.publishUpserted(ctx, wf, previousStatus, existing == nil)

	return wf, nil
}

// buildStep resolves the identity of a step against the stored workflow. A
// step is matched by internal ID, then by step ID; its type may not change.
func buildStep(existing *models.Workflow, input StepInput, used map[string]bool) (*models.Step, error) {
	if !input.Type.IsValid() {
		return nil, NewValidationError("Upsert", "INVALID_STEP_TYPE",
			fmt.Sprintf("invalid step type '%s'", input.Type), ErrInvalidStepType)
	}

	step := &models.Step{
		ID:            input.ID,
		StepID:        strings.TrimSpace(input.StepID),
		Name:          input.Name,
		Type:          input.Type,
		ControlSchema: input.ControlSchema,
	}

	var prior *models.Step

	if existing != nil {
		for _, key := range []string{input.ID, step.StepID} {
			if key != "" && prior == nil {
				prior = existing.FindStep(key)
			}
		}
	}

	if prior != nil && !used[prior.ID] {
		if prior.Type != input.Type {
			return nil, &ServiceError{
				Op:      "Upsert",
				Code:    "STEP_TYPE_CHANGED",
				Message: fmt.Sprintf("step %s is of type %s", prior.StepID, prior.Type),
				Err:     ErrStepTypeChanged,
			}
		}

		step.ID = prior.ID
	}

	if step.ID == "" || used[step.ID] {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate step ID: %w", err)
		}

		step.ID = id.String()
	}

	used[step.ID] = true

	return step, nil
}

// Patch updates the given workflow fields and recomputes issues and status.
func (w *Workflow) Patch(ctx context.Context, tenant Tenant, id string, cmd PatchCommand) (*models.Workflow, error) {
	err := tenant.validate("Patch")
	if err != nil {
		return nil, err
	}

	wf, err := w.resolve(ctx, tenant, id)
	if err != nil {
		return nil, err
	}

	previousStatus := wf.Status

	if cmd.Name != nil {
		wf.Name = *cmd.Name
	}

	if cmd.Description != nil {
		wf.Description = *cmd.Description
	}

	if cmd.Tags != nil {
		wf.Tags = *cmd.Tags
	}

	if cmd.Active != nil {
		wf.Active = *cmd.Active
	}

	if cmd.PayloadSchema != nil {
		wf.PayloadSchema = cmd.PayloadSchema
	}

	controls, err := w.loadControls(ctx, wf)
	if err != nil {
		return nil, err
	}

	err = w.validate(ctx, wf, controls)
	if err != nil {
		return nil, err
	}

	err = w.persistence.Workflows().Save(ctx, wf)
	if err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	w.publishUpserted(ctx, wf, previousStatus, false)

	return wf, nil
}

// PatchStepControls replaces the control values of a step and revalidates the workflow.
func (w *Workflow) PatchStepControls(ctx context.Context, tenant Tenant, workflowID, stepID string, values map[string]any) (*StepDetails, error) {
	err := tenant.validate("PatchStepControls")
	if err != nil {
		return nil, err
	}

	wf, err := w.resolve(ctx, tenant, workflowID)
	if err != nil {
		return nil, err
	}

	step := wf.FindStep(stepID)
	if step == nil {
		return nil, persistence.NewStepError("PatchStepControls", wf.ID, stepID, ErrStepNotFound)
	}

	previousStatus := wf.Status

	controls, err := w.loadControls(ctx, wf)
	if err != nil {
		return nil, err
	}

	if values == nil {
		values = map[string]any{}
	}

	controls[step.ID] = controlvalue.CloneMap(values)

	err = w.validate(ctx, wf, controls)
	if err != nil {
		return nil, err
	}

	err = w.save(ctx, wf, controls, wf)
	if err != nil {
		return nil, err
	}

	w.publishUpserted(ctx, wf, previousStatus, false)

	return w.stepDetails(wf, step, controls)
}

// Get returns a workflow by internal ID or trigger identifier.
func (w *Workflow) Get(ctx context.Context, tenant Tenant, id string) (*models.Workflow, error) {
	err := tenant.validate("Get")
	if err != nil {
		return nil, err
	}

	return w.resolve(ctx, tenant, id)
}

// List returns the workflows of a tenant, newest first.
func (w *Workflow) List(ctx context.Context, tenant Tenant) ([]*models.Workflow, error) {
	err := tenant.validate("List")
	if err != nil {
		return nil, err
	}

	workflows, err := w.persistence.Workflows().List(ctx, persistence.WorkflowFilter{
		EnvironmentID:  tenant.EnvironmentID,
		OrganizationID: tenant.OrganizationID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// Delete removes a workflow with its control values.
func (w *Workflow) Delete(ctx context.Context, tenant Tenant, id string) error {
	err := tenant.validate("Delete")
	if err != nil {
		return err
	}

	wf, err := w.resolve(ctx, tenant, id)
	if err != nil {
		return err
	}

	err = w.persistence.Workflows().Delete(ctx, wf.ID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	err = w.persistence.ControlValues().DeleteByWorkflow(ctx, wf.ID)
	if err != nil {
		return fmt.Errorf("failed to delete control values: %w", err)
	}

	w.publish(ctx, wf.ID, events.WorkflowDeleted{
		BaseEvent: events.NewBaseEvent(events.WorkflowDeletedEvent, wf),
		TriggerID: wf.WorkflowID,
	})

	return nil
}

// GetStep returns a step with its control values and schemas.
func (w *Workflow) GetStep(ctx context.Context, tenant Tenant, workflowID, stepID string) (*StepDetails, error) {
	err := tenant.validate("GetStep")
	if err != nil {
		return nil, err
	}

	wf, err := w.resolve(ctx, tenant, workflowID)
	if err != nil {
		return nil, err
	}

	step := wf.FindStep(stepID)
	if step == nil {
		return nil, persistence.NewStepError("GetStep", wf.ID, stepID, ErrStepNotFound)
	}

	controls, err := w.loadControls(ctx, wf)
	if err != nil {
		return nil, err
	}

	return w.stepDetails(wf, step, controls)
}

// Revalidate recomputes the issues and status of every stored workflow and
// saves the ones that changed. Failures are logged and counted.
func (w *Workflow) Revalidate(ctx context.Context) (RevalidationResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "workflow.revalidate")
	defer span.End()

	var result RevalidationResult

	workflows, err := w.persistence.Workflows().List(ctx, persistence.WorkflowFilter{})
	if err != nil {
		otelhelper.SetError(span, err)

		return result, fmt.Errorf("failed to list workflows: %w", err)
	}

	for _, wf := range workflows {
		result.Checked++

		changed, err := w.revalidate(ctx, wf)
		if err != nil {
			result.Failed++

			w.logger.ErrorContext(ctx, "Failed to revalidate workflow", "workflow_id", wf.ID, "error", err)

			continue
		}

		if changed {
			result.Updated++
		}
	}

	w.logger.InfoContext(ctx, "Revalidation finished",
		"checked", result.Checked, "updated", result.Updated, "failed", result.Failed)

	return result, nil
}

func (w *Workflow) revalidate(ctx context.Context, wf *models.Workflow) (bool, error) {
	previousStatus := wf.Status

	before, err := issuesFingerprint(wf)
	if err != nil {
		return false, err
	}

	controls, err := w.loadControls(ctx, wf)
	if err != nil {
		return false, err
	}

	err = w.validate(ctx, wf, controls)
	if err != nil {
		return false, err
	}

	after, err := issuesFingerprint(wf)
	if err != nil {
		return false, err
	}

	if previousStatus == wf.Status && bytes.Equal(before, after) {
		return false, nil
	}

	err = w.persistence.Workflows().Save(ctx, wf)
	if err != nil {
		return false, fmt.Errorf("failed to save workflow: %w", err)
	}

	w.publishStatusChange(ctx, wf, previousStatus)

	return true, nil
}

// issuesFingerprint serializes the workflow and step issues in their persisted form.
func issuesFingerprint(wf *models.Workflow) ([]byte, error) {
	stepIssues := make([]*models.StepIssues, len(wf.Steps))
	for i, step := range wf.Steps {
		stepIssues[i] = step.Issues
	}

	return json.Marshal(struct {
		Workflow map[string][]models.WorkflowIssue `json:"workflow,omitempty"`
		Steps    []*models.StepIssues              `json:"steps"`
	}{wf.Issues, stepIssues})
}

// resolve finds a tenant's workflow by internal ID, falling back to the
// trigger identifier.
func (w *Workflow) resolve(ctx context.Context, tenant Tenant, id string) (*models.Workflow, error) {
	wf, err := w.persistence.Workflows().GetByID(ctx, id)
	if persistence.IsWorkflowNotFound(err) {
		wf, err = w.persistence.Workflows().FindByWorkflowID(ctx, tenant.EnvironmentID, id)
	}

	if err != nil {
		return nil, err
	}

	if !tenant.owns(wf) {
		return nil, persistence.NewWorkflowError("Resolve", id, ErrWorkflowNotFound)
	}

	return wf, nil
}

// loadControls returns the stored control values of wf keyed by step ID.
func (w *Workflow) loadControls(ctx context.Context, wf *models.Workflow) (map[string]map[string]any, error) {
	stored, err := w.persistence.ControlValues().ListByWorkflow(ctx, wf.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load control values: %w", err)
	}

	controls := make(map[string]map[string]any, len(stored))

	for _, values := range stored {
		if values.Level != models.ControlValuesLevelStep ||
			values.EnvironmentID != wf.EnvironmentID || values.OrganizationID != wf.OrganizationID {
			continue
		}

		controls[values.StepID] = values.Controls
	}

	return controls, nil
}

// validate recomputes workflow issues, step issues and status in place.
func (w *Workflow) validate(ctx context.Context, wf *models.Workflow, controls map[string]map[string]any) error {
	taken, err := w.workflowIDTaken(ctx, wf)
	if err != nil {
		return err
	}

	wf.Issues = issues.BuildWorkflowIssues(wf, taken)

	payloadSchema, err := payloadSchemaFor(wf, controls)
	if err != nil {
		return err
	}

	duplicates := issues.DuplicateStepIDs(wf.Steps)

	for _, step := range wf.Steps {
		cmd, err := stepCommand(wf, step, controls[step.ID], payloadSchema, nil, w.tier)
		if err != nil {
			return err
		}

		validated, err := w.validator.PrepareAndValidate(ctx, cmd)
		if err != nil {
			return fmt.Errorf("failed to validate step %s: %w", step.StepID, err)
		}

		step.Issues = issues.BuildStepIssues(step, duplicates[step.StepID], validated.Issues)
	}

	wf.Status = issues.ComputeStatus(wf)

	return nil
}

func (w *Workflow) workflowIDTaken(ctx context.Context, wf *models.Workflow) (bool, error) {
	if wf.WorkflowID == "" {
		return false, nil
	}

	other, err := w.persistence.Workflows().FindByWorkflowID(ctx, wf.EnvironmentID, wf.WorkflowID)
	if persistence.IsWorkflowNotFound(err) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to look up workflow id: %w", err)
	}

	return other.ID != wf.ID, nil
}

// save stores the workflow and its control values, dropping the values of
// steps removed from previous.
func (w *Workflow) save(ctx context.Context, wf *models.Workflow, controls map[string]map[string]any, previous *models.Workflow) error {
	err := w.persistence.Workflows().Save(ctx, wf)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	for _, step := range wf.Steps {
		values := controls[step.ID]
		if values == nil {
			values = map[string]any{}
		}

		err := w.persistence.ControlValues().Upsert(ctx, &models.ControlValues{
			EnvironmentID:  wf.EnvironmentID,
			OrganizationID: wf.OrganizationID,
			WorkflowID:     wf.ID,
			StepID:         step.ID,
			Level:          models.ControlValuesLevelStep,
			Controls:       values,
		})
		if err != nil {
			return fmt.Errorf("failed to save control values of step %s: %w", step.StepID, err)
		}
	}

	if previous == nil {
		return nil
	}

	for _, step := range previous.Steps {
		if wf.StepIndex(step.ID) >= 0 {
			continue
		}

		err := w.persistence.ControlValues().Delete(ctx, stepKey(wf, step.ID))
		if err != nil {
			return fmt.Errorf("failed to delete control values of step %s: %w", step.StepID, err)
		}
	}

	return nil
}

func (w *Workflow) stepDetails(wf *models.Workflow, step *models.Step, controls map[string]map[string]any) (*StepDetails, error) {
	payloadSchema, err := payloadSchemaFor(wf, controls)
	if err != nil {
		return nil, err
	}

	variables, err := schema.BuildVariableSchema(wf, step.ID, payloadSchema)
	if err != nil {
		return nil, err
	}

	values := controls[step.ID]
	if values == nil {
		values = map[string]any{}
	}

	return &StepDetails{
		WorkflowID:     wf.ID,
		Step:           step,
		ControlValues:  values,
		ControlSchema:  schema.ResolveControlSchema(step),
		VariableSchema: variables,
	}, nil
}

func (w *Workflow) publishUpserted(ctx context.Context, wf *models.Workflow, previousStatus models.WorkflowStatus, created bool) {
	w.publish(ctx, wf.ID, events.WorkflowUpserted{
		BaseEvent:  events.NewBaseEvent(events.WorkflowUpsertedEvent, wf),
		TriggerID:  wf.WorkflowID,
		Status:     wf.Status,
		StepCount:  len(wf.Steps),
		IssueCount: events.CountIssues(wf),
		Created:    created,
	})

	if !created {
		w.publishStatusChange(ctx, wf, previousStatus)
	}
}

func (w *Workflow) publishStatusChange(ctx context.Context, wf *models.Workflow, previousStatus models.WorkflowStatus) {
	if previousStatus == wf.Status {
		return
	}

	w.publish(ctx, wf.ID, events.WorkflowStatusChanged{
		BaseEvent:      events.NewBaseEvent(events.WorkflowStatusChangedEvent, wf),
		PreviousStatus: previousStatus,
		Status:         wf.Status,
	})
}

func (w *Workflow) publish(ctx context.Context, key string, event eventbus.Event) {
	if w.publisher == nil {
		return
	}

	err := w.publisher.Publish(ctx, key, event)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "workflow_id", key, "error", err)
	}
}

func stepKey(wf *models.Workflow, stepID string) models.ControlValuesKey {
	return models.ControlValuesKey{
		EnvironmentID:  wf.EnvironmentID,
		OrganizationID: wf.OrganizationID,
		WorkflowID:     wf.ID,
		StepID:         stepID,
		Level:          models.ControlValuesLevelStep,
	}
}

// payloadSchemaFor returns the explicit payload schema of wf, or one inferred
// from the payload placeholders of every step.
func payloadSchemaFor(wf *models.Workflow, controls map[string]map[string]any) (*models.JSONSchema, error) {
	if wf.PayloadSchema != nil {
		return wf.PayloadSchema, nil
	}

	all := make([]map[string]any, 0, len(wf.Steps))
	for _, step := range wf.Steps {
		all = append(all, controls[step.ID])
	}

	inferred, err := schema.BuildPayloadSchema(all...)
	if err != nil {
		return nil, fmt.Errorf("failed to infer payload schema: %w", err)
	}

	return inferred, nil
}

func stepCommand(
	wf *models.Workflow,
	step *models.Step,
	controls map[string]any,
	payloadSchema *models.JSONSchema,
	previewPayload map[string]any,
	tier models.Tier,
) (content.Command, error) {
	variables, err := schema.BuildVariableSchema(wf, step.ID, payloadSchema)
	if err != nil {
		return content.Command{}, err
	}

	return content.Command{
		ControlValues:     controls,
		ControlDataSchema: schema.ResolveControlSchema(step),
		VariableSchema:    variables,
		PreviewPayload:    previewPayload,
		StepType:          step.Type,
		Tier:              tier,
	}, nil
}
