package redis

import (
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
)

func setupTestRedis(t *testing.T) (*Persistence, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	p := NewPersistenceWithClient(client, slog.New(slog.DiscardHandler))

	t.Cleanup(func() { _ = p.Close(t.Context()) })

	return p, mr
}

func TestNewPersistence(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	p, err := NewPersistence(t.Context(), slog.New(slog.DiscardHandler), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	require.NoError(t, p.HealthCheck(t.Context()))
	require.NoError(t, p.Close(t.Context()))

	_, err = NewPersistence(t.Context(), slog.New(slog.DiscardHandler), "://bad")
	require.Error(t, err)
}

func TestWorkflowRepository_Lifecycle(t *testing.T) {
	t.Parallel()

	p, mr := setupTestRedis(t)
	repo := p.Workflows()

	first := &models.Workflow{
		WorkflowID:    "welcome",
		EnvironmentID: "env-1",
		Name:          "Welcome",
		CreatedAt:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	second := &models.Workflow{WorkflowID: "digest", EnvironmentID: "env-1", Name: "Digest"}
	other := &models.Workflow{WorkflowID: "welcome", EnvironmentID: "env-2", Name: "Other"}

	for _, wf := range []*models.Workflow{first, second, other} {
		require.NoError(t, repo.Save(t.Context(), wf))
	}

	assert.True(t, mr.Exists(workflowKey(first.ID)))

	fetched, err := repo.GetByID(t.Context(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Welcome", fetched.Name)

	listed, err := repo.List(t.Context(), persistence.WorkflowFilter{EnvironmentID: "env-1"})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, second.ID, listed[0].ID)

	found, err := repo.FindByWorkflowID(t.Context(), "env-2", "welcome")
	require.NoError(t, err)
	assert.Equal(t, other.ID, found.ID)

	require.NoError(t, repo.Delete(t.Context(), first.ID))
	require.ErrorIs(t, repo.Delete(t.Context(), first.ID), persistence.ErrWorkflowNotFound)

	_, err = repo.GetByID(t.Context(), first.ID)
	require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestControlValuesRepository_Lifecycle(t *testing.T) {
	t.Parallel()

	p, _ := setupTestRedis(t)
	repo := p.ControlValues()

	values := &models.ControlValues{
		EnvironmentID:  "env-1",
		OrganizationID: "org-1",
		WorkflowID:     "wf-1",
		StepID:         "step-1",
		Level:          models.ControlValuesLevelStep,
		Controls:       map[string]any{"body": "Hi {{payload.name}}"},
	}

	require.NoError(t, repo.Upsert(t.Context(), values))
	firstID := values.ID

	replacement := *values
	replacement.ID = ""
	replacement.Controls = map[string]any{"body": "Hello"}
	require.NoError(t, repo.Upsert(t.Context(), &replacement))
	assert.Equal(t, firstID, replacement.ID)

	fetched, err := repo.Get(t.Context(), values.Key())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"body": "Hello"}, fetched.Controls)

	otherTenant := values.Key()
	otherTenant.EnvironmentID = "env-2"

	_, err = repo.Get(t.Context(), otherTenant)
	require.ErrorIs(t, err, persistence.ErrControlValuesNotFound)

	list, err := repo.ListByWorkflow(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.Delete(t.Context(), values.Key()))

	_, err = repo.Get(t.Context(), values.Key())
	require.ErrorIs(t, err, persistence.ErrControlValuesNotFound)

	require.NoError(t, repo.Upsert(t.Context(), values))
	require.NoError(t, repo.DeleteByWorkflow(t.Context(), "wf-1"))

	list, err = repo.ListByWorkflow(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}
