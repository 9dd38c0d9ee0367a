package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/reviewflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "file://./data", cfg.DatabaseURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "gochannel", cfg.EventBus)
	assert.Equal(t, 500, cfg.MaxRejectReasonLength)
	assert.Equal(t, 7*24*time.Hour, cfg.StuckAfter)
	assert.Equal(t, 25, cfg.SMTP.Port)
	assert.False(t, cfg.SMTP.Enabled())
	assert.Equal(t, "reviewflow", cfg.JWT.Issuer)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("REVIEWFLOW_DATABASE_URL", "postgres://localhost/reviewflow")
	t.Setenv("REVIEWFLOW_EVENT_BUS", "kafka")
	t.Setenv("REVIEWFLOW_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REVIEWFLOW_SMTP_HOST", "mail.example.com")
	t.Setenv("REVIEWFLOW_SMTP_PORT", "587")
	t.Setenv("REVIEWFLOW_STUCK_AFTER", "72h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/reviewflow", cfg.DatabaseURL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.SMTP.Enabled())
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, 72*time.Hour, cfg.StuckAfter)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown bus":          {"REVIEWFLOW_EVENT_BUS": "nats"},
		"kafka without broker": {"REVIEWFLOW_EVENT_BUS": "kafka"},
		"bad log level":        {"REVIEWFLOW_LOG_LEVEL": "loud"},
		"zero reason length":   {"REVIEWFLOW_MAX_REJECT_REASON_LENGTH": "0"},
		"tiny stuck threshold": {"REVIEWFLOW_STUCK_AFTER": "5m"},
		"malformed duration":   {"REVIEWFLOW_STUCK_AFTER": "soon"},
	}

	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			for key, value := range vars {
				t.Setenv(key, value)
			}

			_, err := Load()
			require.Error(t, err)
		})
	}
}

const seedYAML = `
users:
  - id: u1
    email: ana@example.com
    name: Ana
    roles: [admin]
  - id: u2
    email: bob@example.com
    name: Bob
teams:
  - id: ops
    name: Ops
    members: [u2]
steps:
  - id: intake
    name: Intake
    users: [u1]
  - id: approval
    name: Approval
    teams: [ops]
templates:
  - id: signup
    name: Signup
    fields:
      - id: name
        label: Name
        required: true
      - id: age
        schema:
          type: integer
          minimum: 18
flows:
  - id: onboarding
    name: Onboarding
    template: signup
    steps:
      - step: intake
      - step: approval
        users: [u1]
`

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	seed, err := LoadSeed(path)
	require.NoError(t, err)
	assert.Len(t, seed.Users, 2)
	assert.Equal(t, []string{"u2"}, seed.Teams[0].Members)

	p := file.NewPersistence(t.TempDir())
	require.NoError(t, seed.Apply(t.Context(), p, time.Now()))

	user, err := p.UserRepository().GetByEmail(t.Context(), "ana@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.True(t, user.HasRole("admin"))

	flow, err := p.FlowRepository().GetByID(t.Context(), "onboarding")
	require.NoError(t, err)
	require.NotNil(t, flow)
	assert.Equal(t, []string{"intake", "approval"}, flow.StepIDs())
	assert.Nil(t, flow.Steps[0].Reviewers)
	require.NotNil(t, flow.Steps[1].Reviewers)
	assert.Equal(t, []string{"u1"}, flow.Steps[1].Reviewers.UserIDs)

	template, err := p.FormTemplateRepository().GetByID(t.Context(), "signup")
	require.NoError(t, err)
	require.NotNil(t, template)

	age, ok := template.Field("age")
	require.True(t, ok)
	assert.Equal(t, "integer", age.Schema["type"])
}

func TestLoadSeed_Invalid(t *testing.T) {
	tests := map[string]string{
		"broken yaml":      "users: [",
		"missing step id":  "steps:\n  - name: Intake\n",
		"unknown template": "flows:\n  - id: f\n    name: F\n    template: nope\n",
		"unknown step": "templates:\n  - id: t\nflows:\n  - id: f\n    name: F\n    template: t\n" +
			"    steps:\n      - step: nope\n",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "seed.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

			_, err := LoadSeed(path)
			require.Error(t, err)
		})
	}

	_, err := LoadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
