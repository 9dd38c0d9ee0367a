package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/reviewflow/pkg/cmd"
	"github.com/dukex/reviewflow/pkg/config"
	"github.com/dukex/reviewflow/pkg/eventbus"
	"github.com/dukex/reviewflow/pkg/identity"
	"github.com/dukex/reviewflow/pkg/log"
	"github.com/dukex/reviewflow/pkg/otelhelper"
	"github.com/dukex/reviewflow/pkg/persistence"
	"github.com/dukex/reviewflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

var (
	errActorRequired     = errors.New("--actor or --token is required")
	errSigningKeyMissing = errors.New("--token needs REVIEWFLOW_JWT_SIGNING_KEY")
)

// app holds what one command invocation opened.
type app struct {
	config      *config.Config
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	services    *cmd.Services
	users       identity.Provider
	shutdown    otelhelper.Shutdown
}

// loadConfig reads the environment and applies the global flags on top.
func loadConfig(command *cli.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if url := command.String("database-url"); url != "" {
		cfg.DatabaseURL = url
	}

	if level := command.String("log-level"); level != "" {
		cfg.LogLevel = level
	}

	return cfg, cfg.Validate()
}

func openApp(ctx context.Context, command *cli.Command) (*app, error) {
	cfg, err := loadConfig(command)
	if err != nil {
		return nil, err
	}

	log.Setup(cfg.LogLevel)
	logger := log.WithModule("reviewflow").With("command", command.Name)

	a := &app{config: cfg, logger: logger}

	var opts []services.Option

	if cfg.Tracing {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, "reviewflow")
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		a.shutdown = shutdown
		opts = append(opts, services.WithTracer(tracer))
	}

	a.persistence, err = cmd.NewPersistence(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		a.close(ctx)

		return nil, err
	}

	a.eventBus, err = cmd.NewEventBus(cfg.EventBus, cfg.KafkaBrokers, logger)
	if err != nil {
		a.close(ctx)

		return nil, err
	}

	a.users = identity.NewDirectory(a.persistence.UserRepository())
	a.services = cmd.NewServices(a.persistence, cfg, a.eventBus, logger, opts...)

	return a, nil
}

func (a *app) close(ctx context.Context) {
	if a.eventBus != nil {
		err := a.eventBus.Close()
		if err != nil {
			a.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}

	if a.persistence != nil {
		err := a.persistence.Close(ctx)
		if err != nil {
			a.logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}

	if a.shutdown != nil {
		err := a.shutdown(ctx)
		if err != nil {
			a.logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
		}
	}
}

// withApp opens the app for the duration of action.
func withApp(action func(ctx context.Context, command *cli.Command, a *app) error) cli.ActionFunc {
	return func(ctx context.Context, command *cli.Command) error {
		a, err := openApp(ctx, command)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		return action(ctx, command, a)
	}
}

// actor returns the user recorded against topology changes. A bearer token
// wins over --actor and must name a known user.
func (a *app) actor(ctx context.Context, command *cli.Command) (string, error) {
	token := command.String("token")
	if token == "" {
		id := command.String("actor")
		if id == "" {
			return "", errActorRequired
		}

		return id, nil
	}

	if a.config.JWT.SigningKey == "" {
		return "", errSigningKeyMissing
	}

	verifier := identity.NewTokenVerifier([]byte(a.config.JWT.SigningKey), a.config.JWT.Issuer)

	principal, err := identity.NewAuthenticator(verifier, a.users).Authenticate(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to authenticate: %w", err)
	}

	return principal.UserID, nil
}
