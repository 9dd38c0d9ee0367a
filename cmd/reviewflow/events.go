package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/dukex/reviewflow/pkg/eventbus"
	"github.com/dukex/reviewflow/pkg/events"
	cli "github.com/urfave/cli/v3"
)

// NewEventsCommand prints domain events as JSON lines. It only sees events
// from other processes when the event bus is kafka.
func NewEventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Inspect domain events",
		Commands: []*cli.Command{
			{
				Name:  "watch",
				Usage: "Print every domain event until interrupted",
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					err := watchEvents(ctx, a.eventBus, command.Root().Writer)
					if err != nil {
						return err
					}

					a.logger.InfoContext(ctx, "Watching events", "event_bus", a.config.EventBus)
					<-ctx.Done()

					return nil
				}),
			},
		},
	}
}

func watchEvents(ctx context.Context, bus eventbus.EventSubscriber, w io.Writer) error {
	var mu sync.Mutex

	for _, eventType := range events.AllEventTypes {
		err := bus.Handle(eventType, func(_ context.Context, event any) error {
			line, err := json.Marshal(event)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()

			_, err = fmt.Fprintln(w, string(line))

			return err
		})
		if err != nil {
			return err
		}
	}

	return bus.Subscribe(ctx)
}
