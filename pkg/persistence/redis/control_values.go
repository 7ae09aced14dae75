package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
)

// controlValuesKey is a hash per workflow with one field per step and level.
func controlValuesKey(workflowID string) string {
	return keyPrefix + "control_values:" + workflowID
}

func controlValuesField(key models.ControlValuesKey) string {
	return key.StepID + ":" + string(key.Level)
}

// ControlValuesRepository stores control values in a hash per workflow.
type ControlValuesRepository struct {
	client redis.UniversalClient
}

// Get returns the control values stored under key. Values owned by another
// tenant are reported as not found.
func (r *ControlValuesRepository) Get(ctx context.Context, key models.ControlValuesKey) (*models.ControlValues, error) {
	values, err := r.get(ctx, key)
	if err != nil {
		return nil, err
	}

	if values == nil || values.Key() != key {
		return nil, persistence.NewStepError("GetControlValues", key.WorkflowID, key.StepID, persistence.ErrControlValuesNotFound)
	}

	return values, nil
}

func (r *ControlValuesRepository) get(ctx context.Context, key models.ControlValuesKey) (*models.ControlValues, error) {
	data, err := r.client.HGet(ctx, controlValuesKey(key.WorkflowID), controlValuesField(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch control values of step %s: %w", key.StepID, err)
	}

	var values models.ControlValues

	err = json.Unmarshal(data, &values)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal control values of step %s: %w", key.StepID, err)
	}

	return &values, nil
}

// ListByWorkflow returns every control values record of a workflow ordered by step ID.
func (r *ControlValuesRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.ControlValues, error) {
	fields, err := r.client.HGetAll(ctx, controlValuesKey(workflowID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list control values of workflow %s: %w", workflowID, err)
	}

	result := make([]*models.ControlValues, 0, len(fields))

	for field, data := range fields {
		var values models.ControlValues

		err := json.Unmarshal([]byte(data), &values)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal control values %s: %w", field, err)
		}

		result = append(result, &values)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].StepID < result[j].StepID })

	return result, nil
}

// Upsert replaces the record stored under the same key, keeping its ID.
func (r *ControlValuesRepository) Upsert(ctx context.Context, values *models.ControlValues) error {
	if values.ID == "" {
		existing, err := r.get(ctx, values.Key())
		if err != nil {
			return err
		}

		if existing != nil {
			values.ID = existing.ID
		} else {
			id, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("failed to generate control values ID: %w", err)
			}

			values.ID = id.String()
		}
	}

	values.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal control values of step %s: %w", values.StepID, err)
	}

	err = r.client.HSet(ctx, controlValuesKey(values.WorkflowID), controlValuesField(values.Key()), data).Err()
	if err != nil {
		return fmt.Errorf("failed to save control values of step %s: %w", values.StepID, err)
	}

	return nil
}

// Delete removes the control values stored under key.
func (r *ControlValuesRepository) Delete(ctx context.Context, key models.ControlValuesKey) error {
	err := r.client.HDel(ctx, controlValuesKey(key.WorkflowID), controlValuesField(key)).Err()
	if err != nil {
		return fmt.Errorf("failed to delete control values of step %s: %w", key.StepID, err)
	}

	return nil
}

// DeleteByWorkflow removes every control values record of a workflow.
func (r *ControlValuesRepository) DeleteByWorkflow(ctx context.Context, workflowID string) error {
	err := r.client.Del(ctx, controlValuesKey(workflowID)).Err()
	if err != nil {
		return fmt.Errorf("failed to delete control values of workflow %s: %w", workflowID, err)
	}

	return nil
}
