package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/persistence"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout of a topology seed: the users, teams, steps,
// form templates and flows an installation starts with.
type SeedFile struct {
	Users     []SeedUser     `yaml:"users"`
	Teams     []SeedTeam     `yaml:"teams"`
	Steps     []SeedStep     `yaml:"steps"`
	Templates []SeedTemplate `yaml:"templates"`
	Flows     []SeedFlow     `yaml:"flows"`
}

type SeedUser struct {
	ID    string   `yaml:"id"`
	Email string   `yaml:"email"`
	Name  string   `yaml:"name"`
	Roles []string `yaml:"roles"`
}

type SeedTeam struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Members []string `yaml:"members"`
}

type SeedStep struct {
	ID    string   `yaml:"id"`
	Name  string   `yaml:"name"`
	Users []string `yaml:"users"`
	Teams []string `yaml:"teams"`
}

type SeedTemplate struct {
	ID     string      `yaml:"id"`
	Name   string      `yaml:"name"`
	Fields []SeedField `yaml:"fields"`
}

type SeedField struct {
	ID       string         `yaml:"id"`
	Label    string         `yaml:"label"`
	Required bool           `yaml:"required"`
	Schema   map[string]any `yaml:"schema"`
}

type SeedFlow struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Template string         `yaml:"template"`
	Steps    []SeedFlowStep `yaml:"steps"`
}

// SeedFlowStep names a step of a flow. Any of the reviewer lists turns into
// a flow-specific override of the step's roster.
type SeedFlowStep struct {
	Step          string   `yaml:"step"`
	Users         []string `yaml:"users"`
	Teams         []string `yaml:"teams"`
	ExcludedUsers []string `yaml:"excluded_users"`
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML seed: %w", err)
	}

	if err := seed.Validate(); err != nil {
		return nil, err
	}

	return &seed, nil
}

// Validate checks that every entry has an id and a name and that references
// point at entries of the same file.
func (s *SeedFile) Validate() error {
	ids := map[string]map[string]bool{
		"user": {}, "team": {}, "step": {}, "template": {},
	}

	for i, u := range s.Users {
		if u.ID == "" || u.Email == "" {
			return fmt.Errorf("users[%d]: id and email are required", i)
		}

		ids["user"][u.ID] = true
	}

	for i, t := range s.Teams {
		if t.ID == "" || t.Name == "" {
			return fmt.Errorf("teams[%d]: id and name are required", i)
		}

		ids["team"][t.ID] = true
	}

	for i, st := range s.Steps {
		if st.ID == "" || st.Name == "" {
			return fmt.Errorf("steps[%d]: id and name are required", i)
		}

		ids["step"][st.ID] = true
	}

	for i, t := range s.Templates {
		if t.ID == "" {
			return fmt.Errorf("templates[%d]: id is required", i)
		}

		ids["template"][t.ID] = true
	}

	for i, f := range s.Flows {
		if f.ID == "" || f.Name == "" {
			return fmt.Errorf("flows[%d]: id and name are required", i)
		}

		if !ids["template"][f.Template] {
			return fmt.Errorf("flows[%d]: unknown template '%s'", i, f.Template)
		}

		for j, fs := range f.Steps {
			if !ids["step"][fs.Step] {
				return fmt.Errorf("flows[%d].steps[%d]: unknown step '%s'", i, j, fs.Step)
			}
		}
	}

	return nil
}

// Apply saves every entry through repos, replacing entries with the same id.
func (s *SeedFile) Apply(ctx context.Context, repos persistence.Repositories, now time.Time) error {
	for _, u := range s.Users {
		roles := make([]models.Role, 0, len(u.Roles))
		for _, role := range u.Roles {
			roles = append(roles, models.Role(role))
		}

		err := repos.UserRepository().Save(ctx, &models.User{
			ID: u.ID, Email: u.Email, Name: u.Name, Roles: roles, CreatedAt: now, UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("failed to seed user %s: %w", u.ID, err)
		}
	}

	for _, t := range s.Teams {
		err := repos.TeamRepository().Save(ctx, &models.Team{
			ID: t.ID, Name: t.Name, MemberIDs: t.Members, CreatedAt: now, UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("failed to seed team %s: %w", t.ID, err)
		}
	}

	for _, st := range s.Steps {
		err := repos.StepRepository().Save(ctx, &models.Step{
			ID: st.ID, Name: st.Name, UserIDs: st.Users, TeamIDs: st.Teams, CreatedAt: now, UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("failed to seed step %s: %w", st.ID, err)
		}
	}

	for _, t := range s.Templates {
		fields := make([]models.FormField, 0, len(t.Fields))
		for _, f := range t.Fields {
			fields = append(fields, models.FormField{ID: f.ID, Label: f.Label, Required: f.Required, Schema: f.Schema})
		}

		err := repos.FormTemplateRepository().Save(ctx, &models.FormTemplate{
			ID: t.ID, Name: t.Name, Fields: fields, CreatedAt: now, UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("failed to seed template %s: %w", t.ID, err)
		}
	}

	for _, f := range s.Flows {
		err := repos.FlowRepository().Save(ctx, &models.Flow{
			ID: f.ID, Name: f.Name, FormTemplateID: f.Template, Steps: f.flowSteps(), CreatedAt: now, UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("failed to seed flow %s: %w", f.ID, err)
		}
	}

	return nil
}

func (f SeedFlow) flowSteps() []models.FlowStep {
	steps := make([]models.FlowStep, 0, len(f.Steps))

	for _, fs := range f.Steps {
		step := models.FlowStep{StepID: fs.Step}
		if len(fs.Users) > 0 || len(fs.Teams) > 0 || len(fs.ExcludedUsers) > 0 {
			step.Reviewers = &models.Assignment{
				UserIDs:         fs.Users,
				TeamIDs:         fs.Teams,
				ExcludedUserIDs: fs.ExcludedUsers,
			}
		}

		steps = append(steps, step)
	}

	return steps
}
