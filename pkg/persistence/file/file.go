// Package file provides file-based persistence for workflows and step control values.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/notiflow/pkg/persistence"
)

const (
	workflowsDir     = "workflows"
	controlValuesDir = "control_values"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root              string
	workflowRepo      *WorkflowRepository
	controlValuesRepo *ControlValuesRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	mu := &sync.RWMutex{}

	return &Persistence{
		root:              cleanRoot,
		workflowRepo:      &WorkflowRepository{root: cleanRoot, mu: mu},
		controlValuesRepo: &ControlValuesRepository{root: cleanRoot, mu: mu},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Workflows returns the workflow repository.
func (fp *Persistence) Workflows() persistence.WorkflowRepository {
	return fp.workflowRepo
}

// ControlValues returns the control values repository.
func (fp *Persistence) ControlValues() persistence.ControlValuesRepository {
	return fp.controlValuesRepo
}

// segment escapes an identifier so it can be used as a single path element.
func segment(id string) string {
	return url.PathEscape(id)
}

func readJSON(path string, target any) error {
	body, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}

	return json.Unmarshal(body, target)
}

func writeJSON(path string, value any) error {
	err := os.MkdirAll(filepath.Dir(path), 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}
