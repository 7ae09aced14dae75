// Package revalidation periodically recomputes the issues and status of every
// stored workflow.
package revalidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/dukex/notiflow/pkg/services"
)

var ErrAlreadyStarted = errors.New("revalidation scheduler already started")

// Revalidator recomputes stored workflows.
type Revalidator interface {
	Revalidate(ctx context.Context) (services.RevalidationResult, error)
}

type Scheduler struct {
	revalidator Revalidator
	spec        string
	logger      *slog.Logger
	cron        *cron.Cron
	entryID     cron.EntryID
	mutex       sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewScheduler creates a scheduler running revalidator on spec, a standard
// cron expression or a descriptor such as "@every 1h".
func NewScheduler(revalidator Revalidator, spec string, logger *slog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid revalidation schedule '%s': %w", spec, err)
	}

	return &Scheduler{
		revalidator: revalidator,
		spec:        spec,
		logger:      logger.With("module", "revalidation"),
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.cron != nil {
		return ErrAlreadyStarted
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	entryID, err := s.cron.AddFunc(s.spec, func() {
		_, _ = s.RunOnce(s.ctx)
	})
	if err != nil {
		s.cancel()
		s.cron = nil

		return fmt.Errorf("failed to add revalidation job: %w", err)
	}

	s.entryID = entryID
	s.cron.Start()

	s.logger.InfoContext(ctx, "Revalidation scheduler started", "schedule", s.spec, "entry_id", entryID)

	return nil
}

// RunOnce revalidates every workflow immediately.
func (s *Scheduler) RunOnce(ctx context.Context) (services.RevalidationResult, error) {
	s.logger.DebugContext(ctx, "Revalidating workflows")

	result, err := s.revalidator.Revalidate(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Revalidation failed", "error", err)

		return result, err
	}

	if result.Updated > 0 || result.Failed > 0 {
		s.logger.InfoContext(ctx, "Workflows revalidated",
			"checked", result.Checked, "updated", result.Updated, "failed", result.Failed)
	}

	return result, nil
}

// Stop stops the scheduler and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.cron == nil {
		return nil
	}

	done := s.cron.Stop()
	s.cancel()
	s.cron = nil

	select {
	case <-done.Done():
		s.logger.InfoContext(ctx, "Revalidation scheduler stopped")

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
