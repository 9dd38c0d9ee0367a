package cmd

import (
	"log/slog"

	"github.com/dukex/reviewflow/pkg/config"
	"github.com/dukex/reviewflow/pkg/eventbus"
	"github.com/dukex/reviewflow/pkg/identity"
	"github.com/dukex/reviewflow/pkg/notify"
	"github.com/dukex/reviewflow/pkg/persistence"
	"github.com/dukex/reviewflow/pkg/services"
)

// Services bundles the review core wired against one store.
type Services struct {
	Topology *services.Topology
	Flows    *services.Flows
	Reviews  *services.Reviews
	Audit    *services.AuditLog
}

// NewServices wires the services. publisher may be nil to skip domain events;
// extra options are applied after the configured ones.
func NewServices(
	p persistence.Persistence,
	cfg *config.Config,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	extra ...services.Option,
) *Services {
	users := identity.NewDirectory(p.UserRepository())

	opts := []services.Option{
		services.WithLogger(logger),
		services.WithNotifier(NewNotifier(cfg.SMTP, users, logger)),
		services.WithMaxRejectReasonLength(cfg.MaxRejectReasonLength),
		services.WithStuckAfter(cfg.StuckAfter),
	}

	opts = append(opts, extra...)

	if publisher != nil {
		opts = append(opts, services.WithPublisher(publisher))
	}

	return &Services{
		Topology: services.NewTopology(p, users, opts...),
		Flows:    services.NewFlows(p, users, opts...),
		Reviews:  services.NewReviews(p, users, opts...),
		Audit:    services.NewAuditLog(p, opts...),
	}
}

// NewNotifier e-mails terminal outcomes when SMTP is configured and drops
// them otherwise.
func NewNotifier(cfg config.SMTP, users identity.Provider, logger *slog.Logger) notify.Notifier {
	if !cfg.Enabled() {
		return notify.Nop
	}

	mailer := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		From:     cfg.From,
		Username: cfg.Username,
		Password: cfg.Password,
	})

	return notify.NewEmailNotifier(mailer, users, logger)
}
