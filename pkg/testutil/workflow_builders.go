// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/google/uuid"

	"github.com/dukex/notiflow/pkg/models"
)

const (
	TestEnvironmentID  = "env-1"
	TestOrganizationID = "org-1"
)

// CreateTestWorkflow creates an active test Workflow with a single email step.
// Defaults can be overridden.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	workflow := &models.Workflow{
		WorkflowID:     "welcome",
		EnvironmentID:  TestEnvironmentID,
		OrganizationID: TestOrganizationID,
		Name:           "Welcome",
		Tags:           []string{"onboarding"},
		Active:         true,
		Status:         models.WorkflowStatusActive,
		Steps:          []*models.Step{CreateTestStep(models.StepTypeEmail, "email")},
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// CreateTestStep creates a step of the given type with a generated ID.
func CreateTestStep(stepType models.StepType, stepID string, overrides ...func(*models.Step)) *models.Step {
	step := &models.Step{
		ID:     uuid.New().String(),
		StepID: stepID,
		Name:   stepID,
		Type:   stepType,
	}

	for _, override := range overrides {
		override(step)
	}

	return step
}

// WithTenant moves the workflow to another environment and organization.
func WithTenant(environmentID, organizationID string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.EnvironmentID = environmentID
		w.OrganizationID = organizationID
	}
}

// WithSteps replaces the steps of the workflow.
func WithSteps(steps ...*models.Step) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Steps = steps
	}
}

// WithPayloadSchema sets an object payload schema with the given string properties.
func WithPayloadSchema(properties ...string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.PayloadSchema = &models.JSONSchema{Type: "object", Properties: map[string]*models.JSONSchema{}}
		for _, property := range properties {
			w.PayloadSchema.Properties[property] = &models.JSONSchema{Type: "string"}
		}
	}
}

// CreateTestControlValues creates the step level control values of a step.
func CreateTestControlValues(workflow *models.Workflow, step *models.Step, controls map[string]any) *models.ControlValues {
	return &models.ControlValues{
		EnvironmentID:  workflow.EnvironmentID,
		OrganizationID: workflow.OrganizationID,
		WorkflowID:     workflow.ID,
		StepID:         step.ID,
		Level:          models.ControlValuesLevelStep,
		Controls:       controls,
	}
}
