package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
)

// ControlValuesRepository stores control values under control_values/<workflow>/<step>.<level>.json.
type ControlValuesRepository struct {
	root string
	mu   *sync.RWMutex
}

func (cr *ControlValuesRepository) dir(workflowID string) string {
	return filepath.Join(cr.root, controlValuesDir, segment(workflowID))
}

func (cr *ControlValuesRepository) path(key models.ControlValuesKey) string {
	return filepath.Join(cr.dir(key.WorkflowID), segment(key.StepID)+"."+segment(string(key.Level))+".json")
}

// Get returns the control values stored under key. Values owned by another
// tenant are reported as not found.
func (cr *ControlValuesRepository) Get(_ context.Context, key models.ControlValuesKey) (*models.ControlValues, error) {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	var values models.ControlValues

	err := readJSON(cr.path(key), &values)
	if os.IsNotExist(err) {
		return nil, persistence.NewStepError("GetControlValues", key.WorkflowID, key.StepID, persistence.ErrControlValuesNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch control values of step %s: %w", key.StepID, err)
	}

	if values.Key() != key {
		return nil, persistence.NewStepError("GetControlValues", key.WorkflowID, key.StepID, persistence.ErrControlValuesNotFound)
	}

	return &values, nil
}

// ListByWorkflow returns every control values record of a workflow ordered by step ID.
func (cr *ControlValuesRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.ControlValues, error) {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	jsonFiles, err := fs.Glob(os.DirFS(cr.dir(workflowID)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list control values of workflow %s: %w", workflowID, err)
	}

	result := make([]*models.ControlValues, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		var values models.ControlValues

		err := readJSON(filepath.Join(cr.dir(workflowID), file), &values)
		if os.IsNotExist(err) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("failed to load control values %s: %w", file, err)
		}

		result = append(result, &values)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].StepID < result[j].StepID })

	return result, nil
}

// Upsert writes the control values, replacing any previous record.
func (cr *ControlValuesRepository) Upsert(_ context.Context, values *models.ControlValues) error {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if values.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate control values ID: %w", err)
		}

		values.ID = id.String()
	}

	values.UpdatedAt = time.Now().UTC()

	err := writeJSON(cr.path(values.Key()), values)
	if err != nil {
		return fmt.Errorf("failed to save control values of step %s: %w", values.StepID, err)
	}

	return nil
}

// Delete removes the control values stored under key. Missing records are ignored.
func (cr *ControlValuesRepository) Delete(_ context.Context, key models.ControlValuesKey) error {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	err := os.Remove(cr.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete control values of step %s: %w", key.StepID, err)
	}

	return nil
}

// DeleteByWorkflow removes every control values record of a workflow.
func (cr *ControlValuesRepository) DeleteByWorkflow(_ context.Context, workflowID string) error {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	err := os.RemoveAll(cr.dir(workflowID))
	if err != nil {
		return fmt.Errorf("failed to delete control values of workflow %s: %w", workflowID, err)
	}

	return nil
}
