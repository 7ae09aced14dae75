package revalidation

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/notiflow/pkg/services"
)

type countingRevalidator struct {
	calls  atomic.Int32
	result services.RevalidationResult
	err    error
}

func (r *countingRevalidator) Revalidate(context.Context) (services.RevalidationResult, error) {
	r.calls.Add(1)

	return r.result, r.err
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	t.Parallel()

	_, err := NewScheduler(&countingRevalidator{}, "every hour", slog.New(slog.DiscardHandler))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid revalidation schedule")
}

func TestScheduler_RunOnce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rev  *countingRevalidator
	}{
		{"success", &countingRevalidator{result: services.RevalidationResult{Checked: 3, Updated: 1}}},
		{"failure", &countingRevalidator{err: errors.New("database down")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			scheduler, err := NewScheduler(tt.rev, "@hourly", slog.New(slog.DiscardHandler))
			require.NoError(t, err)

			result, err := scheduler.RunOnce(t.Context())
			assert.Equal(t, tt.rev.err, err)
			assert.Equal(t, tt.rev.result, result)
			assert.Equal(t, int32(1), tt.rev.calls.Load())
		})
	}
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	rev := &countingRevalidator{}

	scheduler, err := NewScheduler(rev, "@every 1s", slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	require.NoError(t, scheduler.Start(t.Context()))
	require.ErrorIs(t, scheduler.Start(t.Context()), ErrAlreadyStarted)

	assert.Eventually(t, func() bool { return rev.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()

	require.NoError(t, scheduler.Stop(ctx))
	require.NoError(t, scheduler.Stop(ctx), "stopping twice is a no-op")
}
