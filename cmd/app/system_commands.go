package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/credx/cmd/app/commands"
	"github.com/allisson/credx/internal/app"
	"github.com/allisson/credx/internal/config"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "server",
			Usage: "Start the ops HTTP server, the rotation scheduler and the flow expiry sweep",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunServer(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Run flow log database migrations",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "dir",
					Value: "migrations",
					Usage: "Directory holding the postgresql and mysql migration folders",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunMigrations(container.Logger(), container.DatabaseConfig(), cmd.String("dir"))
			},
		},
	}
}
