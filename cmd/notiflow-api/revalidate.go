package main

import (
	"context"
	"fmt"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/notiflow/pkg/cmd"
	"github.com/dukex/notiflow/pkg/log"
	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/otelhelper"
)

// RevalidateCommand recomputes every stored workflow once and exits.
func RevalidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "revalidate",
		Aliases: []string{"r"},
		Usage:   "Recompute the issues and status of every workflow",
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("revalidate")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			api := NewAPI(logger, persistence, nil, otelhelper.NoopTracer(), models.Tier(command.String("tier")))

			result, err := api.Workflows().Revalidate(ctx)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(command.Root().Writer, "checked=%d updated=%d failed=%d\n", result.Checked, result.Updated, result.Failed)

			return err
		},
	}
}
