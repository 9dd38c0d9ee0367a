// Package file provides file-based persistence for steps, flows and form
// reviews.
package file

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/persistence"
)

// Persistence implements persistence.Persistence on the file system. Every
// entity is one JSON file under the root directory. Transactions are
// serialised by a process-wide lock and undone from a journal on failure.
type Persistence struct {
	root  string
	mu    *sync.Mutex
	repos *repositories
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	mu := &sync.Mutex{}

	return &Persistence{
		root:  cleanRoot,
		mu:    mu,
		repos: newRepositories(&store{root: cleanRoot, mu: mu}),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Transaction runs fn while holding the writer lock. Writes made through the
// repositories passed to fn are reverted when fn fails.
func (fp *Persistence) Transaction(
	ctx context.Context,
	fn func(ctx context.Context, repos persistence.Repositories) error,
) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	tx := &store{root: fp.root, mu: fp.mu, journal: newJournal()}

	err := fn(ctx, newRepositories(tx))
	if err != nil {
		rollbackErr := tx.journal.rollback()
		if rollbackErr != nil {
			return fmt.Errorf("%w (rollback failed: %w)", err, rollbackErr)
		}

		return err
	}

	return nil
}

func (fp *Persistence) StepRepository() persistence.StepRepository {
	return fp.repos.steps
}

func (fp *Persistence) TeamRepository() persistence.TeamRepository {
	return fp.repos.teams
}

func (fp *Persistence) UserRepository() persistence.UserRepository {
	return fp.repos.users
}

func (fp *Persistence) FlowRepository() persistence.FlowRepository {
	return fp.repos.flows
}

func (fp *Persistence) FormTemplateRepository() persistence.FormTemplateRepository {
	return fp.repos.templates
}

func (fp *Persistence) FormResponseRepository() persistence.FormResponseRepository {
	return fp.repos.responses
}

func (fp *Persistence) FormReviewRepository() persistence.FormReviewRepository {
	return fp.repos.reviews
}

func (fp *Persistence) StepHistoryRepository() persistence.StepHistoryRepository {
	return fp.repos.history
}

// repositories binds every repository to one store.
type repositories struct {
	steps     *StepRepository
	teams     *TeamRepository
	users     *UserRepository
	flows     *FlowRepository
	templates *FormTemplateRepository
	responses *FormResponseRepository
	reviews   *FormReviewRepository
	history   *StepHistoryRepository
}

func newRepositories(s *store) *repositories {
	return &repositories{
		steps:     &StepRepository{steps: collection[models.Step]{store: s, dir: "steps"}},
		teams:     &TeamRepository{teams: collection[models.Team]{store: s, dir: "teams"}},
		users:     &UserRepository{users: collection[models.User]{store: s, dir: "users"}},
		flows:     &FlowRepository{flows: collection[models.Flow]{store: s, dir: "flows"}},
		templates: &FormTemplateRepository{templates: collection[models.FormTemplate]{store: s, dir: "form_templates"}},
		responses: &FormResponseRepository{responses: collection[models.FormResponse]{store: s, dir: "form_responses"}},
		reviews:   &FormReviewRepository{reviews: collection[models.FormReview]{store: s, dir: "form_reviews"}},
		history:   &StepHistoryRepository{entries: collection[models.StepHistory]{store: s, dir: "step_history"}},
	}
}

func (r *repositories) StepRepository() persistence.StepRepository { return r.steps }

func (r *repositories) TeamRepository() persistence.TeamRepository { return r.teams }

func (r *repositories) UserRepository() persistence.UserRepository { return r.users }

func (r *repositories) FlowRepository() persistence.FlowRepository { return r.flows }

func (r *repositories) FormTemplateRepository() persistence.FormTemplateRepository {
	return r.templates
}

func (r *repositories) FormResponseRepository() persistence.FormResponseRepository {
	return r.responses
}

func (r *repositories) FormReviewRepository() persistence.FormReviewRepository { return r.reviews }

func (r *repositories) StepHistoryRepository() persistence.StepHistoryRepository { return r.history }
