// Package config loads reviewflow settings from the environment and seed data
// from YAML files.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config holds every setting the reviewflow binaries read at startup.
type Config struct {
	DatabaseURL  string   `env:"REVIEWFLOW_DATABASE_URL"  envDefault:"file://./data" validate:"required"`
	LogLevel     string   `env:"REVIEWFLOW_LOG_LEVEL"     envDefault:"info"          validate:"oneof=debug info warn error"`
	EventBus     string   `env:"REVIEWFLOW_EVENT_BUS"     envDefault:"gochannel"     validate:"oneof=gochannel kafka"`
	KafkaBrokers []string `env:"REVIEWFLOW_KAFKA_BROKERS" envSeparator:","           validate:"required_if=EventBus kafka"`
	Tracing      bool     `env:"REVIEWFLOW_TRACING"`

	SMTP SMTP `envPrefix:"REVIEWFLOW_SMTP_"`
	JWT  JWT  `envPrefix:"REVIEWFLOW_JWT_"`

	MaxRejectReasonLength int           `env:"REVIEWFLOW_MAX_REJECT_REASON_LENGTH" envDefault:"500"  validate:"min=1"`
	StuckAfter            time.Duration `env:"REVIEWFLOW_STUCK_AFTER"              envDefault:"168h" validate:"min=1h"`
}

// SMTP configures e-mail notifications. An empty host disables them.
type SMTP struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT"     envDefault:"25"                       validate:"min=1,max=65535"`
	From     string `env:"FROM"     envDefault:"noreply@reviewflow.local" validate:"omitempty,email"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
}

// Enabled reports whether notifications should be e-mailed.
func (s SMTP) Enabled() bool {
	return s.Host != ""
}

// JWT configures bearer token verification.
type JWT struct {
	SigningKey string `env:"SIGNING_KEY"`
	Issuer     string `env:"ISSUER"      envDefault:"reviewflow"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config

	err := env.Parse(&cfg)
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	problems := make([]error, 0, len(validationErrors))
	for _, fe := range validationErrors {
		problems = append(problems, fmt.Errorf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}

	return fmt.Errorf("invalid configuration: %w", errors.Join(problems...))
}
