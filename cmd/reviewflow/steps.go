package main

import (
	"context"

	"github.com/dukex/reviewflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

func NewStepsCommand() *cli.Command {
	return &cli.Command{
		Name:  "steps",
		Usage: "Manage review steps and their reviewers",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a step",
				ArgsUsage: "<name>",
				Flags:     memberFlags(),
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					actorID, err := a.actor(ctx, command)
					if err != nil {
						return err
					}

					step, err := a.services.Topology.CreateStep(ctx, services.CreateStepRequest{
						ActorID: actorID,
						Name:    command.Args().First(),
						UserIDs: command.StringSlice("user"),
						TeamIDs: command.StringSlice("team"),
					})
					if err != nil {
						return err
					}

					return printSteps(command.Root().Writer, step)
				}),
			},
			{
				Name:      "rename",
				Usage:     "Rename a step",
				ArgsUsage: "<step-id> <name>",
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					actorID, err := a.actor(ctx, command)
					if err != nil {
						return err
					}

					step, err := a.services.Topology.RenameStep(ctx, services.RenameStepRequest{
						ActorID: actorID,
						StepID:  command.Args().Get(0),
						Name:    command.Args().Get(1),
					})
					if err != nil {
						return err
					}

					return printSteps(command.Root().Writer, step)
				}),
			},
			{
				Name:      "assign",
				Usage:     "Add users and teams to a step",
				ArgsUsage: "<step-id>",
				Flags:     memberFlags(),
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					actorID, err := a.actor(ctx, command)
					if err != nil {
						return err
					}

					step, err := a.services.Topology.AssignMembers(ctx, services.AssignMembersRequest{
						ActorID: actorID,
						StepID:  command.Args().First(),
						UserIDs: command.StringSlice("user"),
						TeamIDs: command.StringSlice("team"),
					})
					if err != nil {
						return err
					}

					return printSteps(command.Root().Writer, step)
				}),
			},
			{
				Name:      "move",
				Usage:     "Move users and teams from one step to another",
				ArgsUsage: "<source-step-id> <target-step-id>",
				Flags:     memberFlags(),
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					actorID, err := a.actor(ctx, command)
					if err != nil {
						return err
					}

					result, err := a.services.Topology.MoveMembers(ctx, services.MoveMembersRequest{
						ActorID:      actorID,
						SourceStepID: command.Args().Get(0),
						TargetStepID: command.Args().Get(1),
						UserIDs:      command.StringSlice("user"),
						TeamIDs:      command.StringSlice("team"),
					})
					if err != nil {
						return err
					}

					return printSteps(command.Root().Writer, result.Source, result.Target)
				}),
			},
			{
				Name:      "delete",
				Usage:     "Delete a step with no reviewers",
				ArgsUsage: "<step-id>",
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					actorID, err := a.actor(ctx, command)
					if err != nil {
						return err
					}

					return a.services.Topology.DeleteStep(ctx, services.DeleteStepRequest{
						ActorID: actorID,
						StepID:  command.Args().First(),
					})
				}),
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List active steps",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Usage: "Only steps with this user directly assigned"},
					&cli.StringFlag{Name: "team", Usage: "Only steps with this team assigned"},
					&cli.StringFlag{Name: "sort", Usage: "Sort key (name, created_at)"},
					&cli.StringFlag{Name: "order", Usage: "Sort order (asc, desc)"},
				},
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					steps, err := a.services.Topology.ListSteps(ctx, services.ListStepsRequest{
						UserID:    command.String("user"),
						TeamID:    command.String("team"),
						SortBy:    command.String("sort"),
						SortOrder: command.String("order"),
					})
					if err != nil {
						return err
					}

					return printSteps(command.Root().Writer, steps...)
				}),
			},
		},
	}
}

func memberFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{Name: "user", Aliases: []string{"u"}, Usage: "User ID (repeatable)"},
		&cli.StringSliceFlag{Name: "team", Aliases: []string{"t"}, Usage: "Team ID (repeatable)"},
	}
}
