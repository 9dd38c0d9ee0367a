package main

import (
	"context"
	"fmt"

	"github.com/dukex/reviewflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

func NewTeamsCommand() *cli.Command {
	return &cli.Command{
		Name:  "teams",
		Usage: "Manage reviewer teams",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a team",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "member", Aliases: []string{"m"}, Usage: "Member user ID (repeatable)"},
				},
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					actorID, err := a.actor(ctx, command)
					if err != nil {
						return err
					}

					team, err := a.services.Topology.CreateTeam(ctx, services.CreateTeamRequest{
						ActorID:   actorID,
						Name:      command.Args().First(),
						MemberIDs: command.StringSlice("member"),
					})
					if err != nil {
						return err
					}

					_, err = fmt.Fprintf(command.Root().Writer, "%s\t%s\t%d members\n", team.ID, team.Name, len(team.MemberIDs))

					return err
				}),
			},
		},
	}
}
