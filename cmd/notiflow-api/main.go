package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/notiflow/pkg/cmd"
	"github.com/dukex/notiflow/pkg/events"
	"github.com/dukex/notiflow/pkg/log"
	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/otelhelper"
	"github.com/dukex/notiflow/pkg/revalidation"
)

const (
	serviceName = "notiflow-api"
	defaultPort = 9091
)

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Author notification workflows and validate their step content",
		EnableShellCompletion: true,
		Flags: append(commonFlags(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers for the kafka event bus",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "revalidate-schedule",
				Usage:   "Cron schedule for workflow revalidation, empty disables it",
				Value:   "@every 1h",
				Sources: cli.EnvVars("REVALIDATE_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		),
		Commands: []*cli.Command{
			RevalidateCommand(),
		},
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// commonFlags are inherited by the subcommands.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (file path, postgres:// or redis://)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "tier",
			Usage:   "Plan tier used for tier restrictions (free, pro, team, business, enterprise)",
			Value:   string(models.TierFree),
			Sources: cli.EnvVars("DEFAULT_TIER"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   log.FormatText,
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("api")
	logger.InfoContext(ctx, "Initializing Notiflow API")

	tracer, shutdown, err := newTracer(ctx, command.Bool("otel"))
	if err != nil {
		return err
	}

	defer func() {
		if err := shutdown(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
		}
	}()

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	err = eventBus.Handle(events.WorkflowStatusChangedEvent, logStatusChange(logger))
	if err != nil {
		return fmt.Errorf("failed to register status change handler: %w", err)
	}

	err = eventBus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to workflow events: %w", err)
	}

	api := NewAPI(logger, persistence, eventBus, tracer, models.Tier(command.String("tier")))

	if spec := command.String("revalidate-schedule"); spec != "" {
		scheduler, err := revalidation.NewScheduler(api.Workflows(), spec, logger)
		if err != nil {
			return err
		}

		err = scheduler.Start(ctx)
		if err != nil {
			return err
		}

		defer func() {
			if err := scheduler.Stop(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to stop revalidation scheduler", "error", err)
			}
		}()
	}

	err = api.Start(command.Int("port"))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start API server", "error", err)
	}

	return nil
}

// nolint:ireturn
func newTracer(ctx context.Context, enabled bool) (trace.Tracer, func(context.Context) error, error) {
	if !enabled {
		return otelhelper.NoopTracer(), func(context.Context) error { return nil }, nil
	}

	tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	return tracer, shutdown, nil
}

func logStatusChange(logger *slog.Logger) func(ctx context.Context, event any) error {
	return func(ctx context.Context, event any) error {
		changed, ok := event.(*events.WorkflowStatusChanged)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		logger.InfoContext(ctx, "Workflow status changed",
			"workflow_id", changed.WorkflowID,
			"environment_id", changed.EnvironmentID,
			"previous_status", changed.PreviousStatus,
			"status", changed.Status,
		)

		return nil
	}
}
