package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/dukex/reviewflow/pkg/audit"
	"github.com/dukex/reviewflow/pkg/eventbus"
	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/notify"
	"github.com/dukex/reviewflow/pkg/otelhelper"
	"github.com/dukex/reviewflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPageSize   = 20
	maxPageSize       = 100
	defaultStuckAfter = 7 * 24 * time.Hour
)

// Option configures a service.
type Option func(*base)

func WithLogger(logger *slog.Logger) Option {
	return func(b *base) { b.logger = logger }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(b *base) { b.tracer = tracer }
}

// WithPublisher sets where domain events go after a successful commit.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(b *base) { b.publisher = publisher }
}

// WithNotifier sets who hears about approved and rejected responses.
func WithNotifier(notifier notify.Notifier) Option {
	return func(b *base) { b.notifier = notifier }
}

func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(b *base) { b.newID = newID }
}

// WithMaxRejectReasonLength bounds reject reasons, in runes.
func WithMaxRejectReasonLength(n int) Option {
	return func(b *base) {
		if n > 0 {
			b.maxRejectReason = n
		}
	}
}

// WithStuckAfter sets the default age after which a pending response counts
// as stuck.
func WithStuckAfter(d time.Duration) Option {
	return func(b *base) {
		if d > 0 {
			b.stuckAfter = d
		}
	}
}

// base carries the dependencies shared by every service.
type base struct {
	persistence     persistence.Persistence
	logger          *slog.Logger
	tracer          trace.Tracer
	publisher       eventbus.EventPublisher
	notifier        notify.Notifier
	recorder        *audit.Recorder
	validate        *validator.Validate
	now             func() time.Time
	newID           func() string
	maxRejectReason int
	stuckAfter      time.Duration
}

func newBase(p persistence.Persistence, module string, opts []Option) base {
	b := base{
		persistence:     p,
		logger:          slog.Default(),
		tracer:          otelhelper.Tracer("reviewflow/services"),
		notifier:        notify.Nop,
		validate:        newValidator(),
		now:             func() time.Time { return time.Now().UTC() },
		newID:           newUUID,
		maxRejectReason: models.MaxRejectReasonLength,
		stuckAfter:      defaultStuckAfter,
	}

	for _, opt := range opts {
		opt(&b)
	}

	b.logger = b.logger.With("module", module)
	b.recorder = audit.NewRecorder(b.now, b.newID)

	return b
}

// newUUID returns a time-ordered UUIDv7 so IDs break timestamp ties in
// creation order.
func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

// nolint:spancheck // callers end the span
func (b *base) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otelhelper.StartSpan(ctx, b.tracer, name, attrs...)
}

// publish sends event after a commit. Failures are logged, never returned.
func (b *base) publish(ctx context.Context, key string, event eventbus.Event) {
	if b.publisher == nil {
		return
	}

	err := b.publisher.Publish(ctx, key, event)
	if err != nil {
		b.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "key", key, "error", err)
	}
}

// newValidator registers "nocontrol", which rejects strings carrying control
// characters. Names end up in e-mail headers and CLI tables.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	err := v.RegisterValidation("nocontrol", func(fl validator.FieldLevel) bool {
		return !strings.ContainsFunc(fl.Field().String(), unicode.IsControl)
	})
	if err != nil {
		panic(err)
	}

	return v
}

// validateRequest runs the struct tags of req and reports every failing field.
func (b *base) validateRequest(op string, req any) error {
	err := b.validate.Struct(req)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return NewValidationError(op, err.Error(), nil)
	}

	fields := make(map[string]string, len(validationErrors))
	for _, fe := range validationErrors {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}

		fields[fieldName(fe.Namespace())] = rule
	}

	return NewValidationError(op, "", fields)
}

// fieldName drops the struct name from a validator namespace and converts
// the path to snake case, e.g. "CreateStepRequest.ActorID" -> "actor_id".
func fieldName(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		namespace = rest
	}

	var b strings.Builder

	runes := []rune(namespace)
	for i, r := range runes {
		isUpper := r >= 'A' && r <= 'Z'
		if isUpper && i > 0 && runes[i-1] != '.' && runes[i-1] != '[' {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'

			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}

		if isUpper {
			r += 'a' - 'A'
		}

		b.WriteRune(r)
	}

	return b.String()
}

// PageRequest is the window of a paginated listing.
type PageRequest struct {
	Limit  int `validate:"min=0,max=100"`
	Offset int `validate:"min=0"`
}

func (p PageRequest) pagination() persistence.Pagination {
	limit := p.Limit
	if limit == 0 {
		limit = defaultPageSize
	}

	return persistence.Pagination{Limit: min(limit, maxPageSize), Offset: p.Offset}
}

// parseTimeRange rejects ranges whose start is after their end.
func parseTimeRange(op string, from, to *time.Time) error {
	if from != nil && to != nil && from.After(*to) {
		return NewValidationError(op, "", map[string]string{"from": "must not be after to"})
	}

	return nil
}
