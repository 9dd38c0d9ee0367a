package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dukex/reviewflow/pkg/services"
	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"
)

func NewReportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Operational reports",
		Commands: []*cli.Command{
			{
				Name:  "stuck",
				Usage: "List pending responses that have waited too long at their step",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "step", Usage: "Only responses waiting at this step"},
					&cli.DurationFlag{Name: "older-than", Usage: "Age threshold (defaults to REVIEWFLOW_STUCK_AFTER)"},
					&cli.IntFlag{Name: "limit", Value: 100, Usage: "Maximum responses per report"},
					&cli.StringFlag{
						Name:  "schedule",
						Usage: "Cron expression; when set the report is repeated until interrupted",
					},
				},
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					req := services.ListStuckRequest{
						PageRequest: services.PageRequest{Limit: command.Int("limit")},
						StepID:      command.String("step"),
						OlderThan:   command.Duration("older-than"),
						SortBy:      "created_at",
						SortOrder:   "asc",
					}

					report := func(ctx context.Context) error {
						return reportStuck(ctx, command.Root().Writer, a.services.Reviews, req)
					}

					schedule := command.String("schedule")
					if schedule == "" {
						return report(ctx)
					}

					return runScheduled(ctx, a, schedule, report)
				}),
			},
		},
	}
}

func reportStuck(ctx context.Context, w io.Writer, reviews *services.Reviews, req services.ListStuckRequest) error {
	page, err := reviews.ListStuck(ctx, req)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "%d stuck responses\n", page.TotalCount)
	if err != nil {
		return err
	}

	return printResponses(w, page.Items...)
}

// runScheduled runs report on schedule until ctx is done. Failed runs are
// logged and do not stop the schedule.
func runScheduled(ctx context.Context, a *app, schedule string, report func(context.Context) error) error {
	_, err := cron.ParseStandard(schedule)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err = c.AddFunc(schedule, func() {
		err := report(ctx)
		if err != nil {
			a.logger.ErrorContext(ctx, "Stuck report failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "Stuck report scheduled", "schedule", schedule)

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	return nil
}
