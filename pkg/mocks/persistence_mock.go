package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
)

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) List(ctx context.Context, filter persistence.WorkflowFilter) ([]*models.Workflow, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) FindByWorkflowID(ctx context.Context, environmentID, workflowID string) (*models.Workflow, error) {
	args := m.Called(ctx, environmentID, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockControlValuesRepository is a mock implementation of persistence.ControlValuesRepository interface.
type MockControlValuesRepository struct {
	mock.Mock
}

func (m *MockControlValuesRepository) Get(ctx context.Context, key models.ControlValuesKey) (*models.ControlValues, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ControlValues), args.Error(1)
}

func (m *MockControlValuesRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.ControlValues, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ControlValues), args.Error(1)
}

func (m *MockControlValuesRepository) Upsert(ctx context.Context, values *models.ControlValues) error {
	args := m.Called(ctx, values)

	return args.Error(0)
}

func (m *MockControlValuesRepository) Delete(ctx context.Context, key models.ControlValuesKey) error {
	args := m.Called(ctx, key)

	return args.Error(0)
}

func (m *MockControlValuesRepository) DeleteByWorkflow(ctx context.Context, workflowID string) error {
	args := m.Called(ctx, workflowID)

	return args.Error(0)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	workflows     *MockWorkflowRepository
	controlValues *MockControlValuesRepository
}

// NewMockPersistence creates a new MockPersistence with all mock repositories.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		workflows:     &MockWorkflowRepository{},
		controlValues: &MockControlValuesRepository{},
	}
}

// GetMockWorkflowRepository returns the underlying mock workflow repository for setting up expectations.
func (m *MockPersistence) GetMockWorkflowRepository() *MockWorkflowRepository {
	return m.workflows
}

// GetMockControlValuesRepository returns the underlying mock control values repository.
func (m *MockPersistence) GetMockControlValuesRepository() *MockControlValuesRepository {
	return m.controlValues
}

func (m *MockPersistence) Workflows() persistence.WorkflowRepository {
	return m.workflows
}

func (m *MockPersistence) ControlValues() persistence.ControlValuesRepository {
	return m.controlValues
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
