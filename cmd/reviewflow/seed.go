package main

import (
	"context"
	"fmt"

	"github.com/dukex/reviewflow/pkg/config"
	"github.com/dukex/reviewflow/pkg/persistence"
	cli "github.com/urfave/cli/v3"
)

func NewSeedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Load users, teams, steps, templates and flows from a YAML file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the seed file",
				Required: true,
			},
		},
		Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
			seed, err := config.LoadSeed(command.String("file"))
			if err != nil {
				return err
			}

			err = a.persistence.Transaction(ctx, func(ctx context.Context, repos persistence.Repositories) error {
				return seed.Apply(ctx, repos, nowUTC())
			})
			if err != nil {
				return fmt.Errorf("failed to apply seed: %w", err)
			}

			a.logger.InfoContext(ctx, "Seed applied",
				"users", len(seed.Users),
				"teams", len(seed.Teams),
				"steps", len(seed.Steps),
				"templates", len(seed.Templates),
				"flows", len(seed.Flows),
			)

			return nil
		}),
	}
}
