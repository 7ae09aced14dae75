package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
)

const workflowColumns = `
			id
		  , workflow_id
		  , environment_id
		  , organization_id
		  , name
		  , description
		  , tags
		  , active
		  , status
		  , payload_schema
		  , steps
		  , issues
		  , created_at
		  , updated_at
`

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// List returns the workflows matching filter, newest first.
func (r *WorkflowRepository) List(ctx context.Context, filter persistence.WorkflowFilter) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE deleted_at IS NULL
		  AND ($1 = '' OR environment_id = $1)
		  AND ($2 = '' OR organization_id = $2)
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, filter.EnvironmentID, filter.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// GetByID returns a workflow by its ID.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE id = $1 AND deleted_at IS NULL
	`

	workflow, err := r.scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

// FindByWorkflowID returns the workflow of an environment with the given trigger identifier.
func (r *WorkflowRepository) FindByWorkflowID(ctx context.Context, environmentID, workflowID string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE environment_id = $1 AND workflow_id = $2 AND deleted_at IS NULL
		ORDER BY created_at
		LIMIT 1
	`

	workflow, err := r.scanWorkflow(r.db.QueryRowContext(ctx, query, environmentID, workflowID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewWorkflowError("FindByWorkflowID", workflowID, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

// Save inserts or replaces a workflow.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	tags, err := marshalJSON(workflow.Tags, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	payloadSchema, err := marshalNullableJSON(workflow.PayloadSchema)
	if err != nil {
		return fmt.Errorf("failed to marshal payload schema: %w", err)
	}

	steps, err := marshalJSON(workflow.Steps, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	issues, err := marshalNullableJSON(workflow.Issues)
	if err != nil {
		return fmt.Errorf("failed to marshal issues: %w", err)
	}

	query := `
		INSERT INTO workflows (id, workflow_id, environment_id, organization_id, name, description,
tags, active, status, payload_schema, steps, issues, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NULL)
		ON CONFLICT (id) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			environment_id = EXCLUDED.environment_id,
			organization_id = EXCLUDED.organization_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			tags = EXCLUDED.tags,
			active = EXCLUDED.active,
			status = EXCLUDED.status,
			payload_schema = EXCLUDED.payload_schema,
			steps = EXCLUDED.steps,
			issues = EXCLUDED.issues,
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.WorkflowID,
		workflow.EnvironmentID,
		workflow.OrganizationID,
		workflow.Name,
		workflow.Description,
		tags,
		workflow.Active,
		workflow.Status,
		payloadSchema,
		steps,
		issues,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	return nil
}

// Delete soft deletes a workflow by setting deleted_at timestamp.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE workflows SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (r *WorkflowRepository) scanWorkflow(row scanner) (*models.Workflow, error) {
	var workflow models.Workflow

	var tags, payloadSchema, steps, issues []byte

	err := row.Scan(
		&workflow.ID,
		&workflow.WorkflowID,
		&workflow.EnvironmentID,
		&workflow.OrganizationID,
		&workflow.Name,
		&workflow.Description,
		&tags,
		&workflow.Active,
		&workflow.Status,
		&payloadSchema,
		&steps,
		&issues,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, column := range []struct {
		name   string
		data   []byte
		target any
	}{
		{"tags", tags, &workflow.Tags},
		{"payload_schema", payloadSchema, &workflow.PayloadSchema},
		{"steps", steps, &workflow.Steps},
		{"issues", issues, &workflow.Issues},
	} {
		if len(column.data) == 0 {
			continue
		}

		err := json.Unmarshal(column.data, column.target)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", column.name, err)
		}
	}

	return &workflow, nil
}

func marshalJSON(value any, empty string) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	if string(data) == "null" {
		return []byte(empty), nil
	}

	return data, nil
}

// marshalNullableJSON maps nil values to SQL NULL.
func marshalNullableJSON(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	if string(data) == "null" {
		return nil, nil
	}

	return data, nil
}
