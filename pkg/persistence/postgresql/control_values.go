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

// ControlValuesRepository handles step control values database operations.
type ControlValuesRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewControlValuesRepository creates a new control values repository.
func NewControlValuesRepository(db *sql.DB, logger *slog.Logger) *ControlValuesRepository {
	return &ControlValuesRepository{db: db, logger: logger}
}

// Get returns the control values stored under key.
func (r *ControlValuesRepository) Get(ctx context.Context, key models.ControlValuesKey) (*models.ControlValues, error) {
	query := `
		SELECT id, environment_id, organization_id, workflow_id, step_id, level, controls, updated_at
		FROM control_values
		WHERE environment_id = $1 AND organization_id = $2 AND workflow_id = $3 AND step_id = $4 AND level = $5
	`

	row := r.db.QueryRowContext(ctx, query, key.EnvironmentID, key.OrganizationID, key.WorkflowID, key.StepID, key.Level)

	values, err := scanControlValues(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewStepError("GetControlValues", key.WorkflowID, key.StepID, persistence.ErrControlValuesNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan control values: %w", err)
	}

	return values, nil
}

// ListByWorkflow returns every control values record of a workflow ordered by step ID.
func (r *ControlValuesRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.ControlValues, error) {
	query := `
		SELECT id, environment_id, organization_id, workflow_id, step_id, level, controls, updated_at
		FROM control_values
		WHERE workflow_id = $1
		ORDER BY step_id
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query control values: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	result := make([]*models.ControlValues, 0)

	for rows.Next() {
		values, err := scanControlValues(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan control values: %w", err)
		}

		result = append(result, values)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating control values: %w", err)
	}

	return result, nil
}

// Upsert inserts the control values or replaces the record stored under the same key.
func (r *ControlValuesRepository) Upsert(ctx context.Context, values *models.ControlValues) error {
	if values.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate control values ID: %w", err)
		}

		values.ID = id.String()
	}

	values.UpdatedAt = time.Now().UTC()

	controls, err := marshalJSON(values.Controls, "{}")
	if err != nil {
		return fmt.Errorf("failed to marshal controls: %w", err)
	}

	query := `
		INSERT INTO control_values (id, environment_id, organization_id, workflow_id, step_id, level, controls, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (environment_id, organization_id, workflow_id, step_id, level) DO UPDATE SET
			controls = EXCLUDED.controls,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`

	err = r.db.QueryRowContext(ctx, query,
		values.ID,
		values.EnvironmentID,
		values.OrganizationID,
		values.WorkflowID,
		values.StepID,
		values.Level,
		controls,
		values.UpdatedAt,
	).Scan(&values.ID)
	if err != nil {
		return fmt.Errorf("failed to save control values: %w", err)
	}

	return nil
}

// Delete removes the control values stored under key.
func (r *ControlValuesRepository) Delete(ctx context.Context, key models.ControlValuesKey) error {
	query := `
		DELETE FROM control_values
		WHERE environment_id = $1 AND organization_id = $2 AND workflow_id = $3 AND step_id = $4 AND level = $5
	`

	_, err := r.db.ExecContext(ctx, query, key.EnvironmentID, key.OrganizationID, key.WorkflowID, key.StepID, key.Level)
	if err != nil {
		return fmt.Errorf("failed to delete control values: %w", err)
	}

	return nil
}

// DeleteByWorkflow removes every control values record of a workflow.
func (r *ControlValuesRepository) DeleteByWorkflow(ctx context.Context, workflowID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM control_values WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete control values of workflow %s: %w", workflowID, err)
	}

	return nil
}

func scanControlValues(row scanner) (*models.ControlValues, error) {
	var (
		values   models.ControlValues
		controls []byte
	)

	err := row.Scan(
		&values.ID,
		&values.EnvironmentID,
		&values.OrganizationID,
		&values.WorkflowID,
		&values.StepID,
		&values.Level,
		&controls,
		&values.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	values.Controls = map[string]any{}

	if len(controls) > 0 {
		err := json.Unmarshal(controls, &values.Controls)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal controls: %w", err)
		}
	}

	return &values, nil
}
