// Package redis provides Redis persistence for workflows and step control values.
// Records are stored as JSON strings; a set indexes every workflow ID.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/dukex/notiflow/pkg/persistence"
)

const keyPrefix = "notiflow:"

// Persistence implements the persistence layer for Redis.
type Persistence struct {
	client            redis.UniversalClient
	logger            *slog.Logger
	workflowRepo      *WorkflowRepository
	controlValuesRepo *ControlValuesRepository
}

// NewPersistence connects to the Redis server described by redisURL
// (redis://[user:password@]host:port/db).
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(options)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewPersistenceWithClient(client, logger), nil
}

// NewPersistenceWithClient wraps an existing client.
func NewPersistenceWithClient(client redis.UniversalClient, logger *slog.Logger) *Persistence {
	return &Persistence{
		client:            client,
		logger:            logger,
		workflowRepo:      &WorkflowRepository{client: client, logger: logger},
		controlValuesRepo: &ControlValuesRepository{client: client},
	}
}

// Close closes the client.
func (p *Persistence) Close(_ context.Context) error {
	err := p.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

// HealthCheck pings the server.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// Workflows returns the workflow repository.
func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return p.workflowRepo
}

// ControlValues returns the control values repository.
func (p *Persistence) ControlValues() persistence.ControlValuesRepository {
	return p.controlValuesRepo
}
