package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCommand().Run(ctx, os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:                  "reviewflow",
		Usage:                 "Manage review steps, teams and flows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence (postgres:// or a file directory)",
				Sources: cli.EnvVars("REVIEWFLOW_DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Sources: cli.EnvVars("REVIEWFLOW_LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "actor",
				Usage:   "User ID recorded as the actor of topology changes",
				Sources: cli.EnvVars("REVIEWFLOW_ACTOR"),
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Bearer token identifying the actor; overrides --actor",
				Sources: cli.EnvVars("REVIEWFLOW_TOKEN"),
			},
		},
		Commands: []*cli.Command{
			NewMigrateCommand(),
			NewSeedCommand(),
			NewStepsCommand(),
			NewTeamsCommand(),
			NewReportCommand(),
			NewEventsCommand(),
		},
	}
}
