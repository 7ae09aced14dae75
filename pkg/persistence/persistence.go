// Package persistence defines the storage contracts for workflows and step control values.
package persistence

import (
	"context"

	"github.com/dukex/notiflow/pkg/models"
)

// Persistence is implemented by every storage backend.
type Persistence interface {
	Workflows() WorkflowRepository
	ControlValues() ControlValuesRepository

	// HealthCheck reports whether the backend is reachable.
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowFilter scopes a workflow listing to a tenant. Empty fields match
// every tenant.
type WorkflowFilter struct {
	EnvironmentID  string
	OrganizationID string
}

// Matches reports whether wf belongs to the filtered tenant.
func (f WorkflowFilter) Matches(wf *models.Workflow) bool {
	if f.EnvironmentID != "" && wf.EnvironmentID != f.EnvironmentID {
		return false
	}

	return f.OrganizationID == "" || wf.OrganizationID == f.OrganizationID
}

// WorkflowRepository stores workflows with their step definitions.
type WorkflowRepository interface {
	// List returns the workflows matching filter ordered by creation time, newest first.
	List(ctx context.Context, filter WorkflowFilter) ([]*models.Workflow, error)
	// GetByID returns ErrWorkflowNotFound when no workflow has the given ID.
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	// FindByWorkflowID looks a workflow up by its trigger identifier within an environment.
	FindByWorkflowID(ctx context.Context, environmentID, workflowID string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// ControlValuesRepository stores the control values of workflow steps.
// Writes are last-writer-wins.
type ControlValuesRepository interface {
	// Get returns ErrControlValuesNotFound when nothing is stored under key.
	Get(ctx context.Context, key models.ControlValuesKey) (*models.ControlValues, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.ControlValues, error)
	Upsert(ctx context.Context, values *models.ControlValues) error
	Delete(ctx context.Context, key models.ControlValuesKey) error
	DeleteByWorkflow(ctx context.Context, workflowID string) error
}
