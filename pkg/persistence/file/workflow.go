package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
)

// WorkflowRepository stores one JSON file per workflow.
type WorkflowRepository struct {
	root string
	mu   *sync.RWMutex
}

func (wr *WorkflowRepository) path(id string) string {
	return filepath.Join(wr.root, workflowsDir, segment(id)+".json")
}

// List returns the workflows matching filter, newest first.
func (wr *WorkflowRepository) List(_ context.Context, filter persistence.WorkflowFilter) ([]*models.Workflow, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	jsonFiles, err := fs.Glob(os.DirFS(filepath.Join(wr.root, workflowsDir)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		var workflow models.Workflow

		err := readJSON(filepath.Join(wr.root, workflowsDir, file), &workflow)
		if os.IsNotExist(err) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("failed to load workflow %s: %w", strings.TrimSuffix(file, ".json"), err)
		}

		if filter.Matches(&workflow) {
			workflows = append(workflows, &workflow)
		}
	}

	sort.SliceStable(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// GetByID retrieves a workflow by its ID from the file system.
func (wr *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	var workflow models.Workflow

	err := readJSON(wr.path(id), &workflow)
	if os.IsNotExist(err) {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow %s: %w", id, err)
	}

	return &workflow, nil
}

// FindByWorkflowID scans the environment's workflows for a trigger identifier.
func (wr *WorkflowRepository) FindByWorkflowID(ctx context.Context, environmentID, workflowID string) (*models.Workflow, error) {
	workflows, err := wr.List(ctx, persistence.WorkflowFilter{EnvironmentID: environmentID})
	if err != nil {
		return nil, err
	}

	for _, workflow := range workflows {
		if workflow.WorkflowID == workflowID {
			return workflow, nil
		}
	}

	return nil, persistence.NewWorkflowError("FindByWorkflowID", workflowID, persistence.ErrWorkflowNotFound)
}

// Save saves a workflow to the file system.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	err := writeJSON(wr.path(workflow.ID), workflow)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	return nil
}

// Delete removes a workflow by its ID.
func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	err := os.Remove(wr.path(id))
	if os.IsNotExist(err) {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	return nil
}
