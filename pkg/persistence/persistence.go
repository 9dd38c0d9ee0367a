// Package persistence provides the data storage abstraction for steps, flows
// and form reviews.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/reviewflow/pkg/models"
)

// Persistence is the storage gateway consumed by the services. Repositories
// obtained directly from it run outside any transaction; Transaction hands out
// repositories bound to one unit of work.
type Persistence interface {
	Repositories

	// Transaction runs fn inside one unit of work. A non-nil error from fn rolls
	// every write back; otherwise the writes are committed together.
	Transaction(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Repositories groups the per-aggregate repositories.
type Repositories interface {
	StepRepository() StepRepository
	TeamRepository() TeamRepository
	UserRepository() UserRepository
	FlowRepository() FlowRepository
	FormTemplateRepository() FormTemplateRepository
	FormResponseRepository() FormResponseRepository
	FormReviewRepository() FormReviewRepository
	StepHistoryRepository() StepHistoryRepository
}

// StepRepository stores steps. Lookups skip soft-deleted steps and return
// nil, nil when nothing matches.
type StepRepository interface {
	GetByID(ctx context.Context, id string) (*models.Step, error)
	// GetByIDForUpdate is GetByID that also locks the row until the surrounding
	// transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*models.Step, error)
	// GetByName matches active steps case-insensitively.
	GetByName(ctx context.Context, name string) (*models.Step, error)
	List(ctx context.Context, opts ListStepsOptions) ([]*models.Step, error)
	Save(ctx context.Context, step *models.Step) error
}

// TeamRepository stores teams.
type TeamRepository interface {
	GetByID(ctx context.Context, id string) (*models.Team, error)
	// GetByIDIncludingDeleted also returns soft-deleted teams, for restores.
	GetByIDIncludingDeleted(ctx context.Context, id string) (*models.Team, error)
	GetByName(ctx context.Context, name string) (*models.Team, error)
	// GetByIDs returns the active teams among ids; unknown ids are skipped.
	GetByIDs(ctx context.Context, ids []string) ([]*models.Team, error)
	ListByMember(ctx context.Context, userID string) ([]*models.Team, error)
	Save(ctx context.Context, team *models.Team) error
}

// UserRepository stores the identities known to the system.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Save(ctx context.Context, user *models.User) error
}

// FlowRepository stores flows.
type FlowRepository interface {
	GetByID(ctx context.Context, id string) (*models.Flow, error)
	GetByName(ctx context.Context, name string) (*models.Flow, error)
	List(ctx context.Context) ([]*models.Flow, error)
	Save(ctx context.Context, flow *models.Flow) error
}

// FormTemplateRepository stores form templates.
type FormTemplateRepository interface {
	GetByID(ctx context.Context, id string) (*models.FormTemplate, error)
	Save(ctx context.Context, template *models.FormTemplate) error
}

// FormResponseRepository stores form responses.
type FormResponseRepository interface {
	GetByID(ctx context.Context, id string) (*models.FormResponse, error)
	Create(ctx context.Context, response *models.FormResponse) error
	// Update writes response only if the stored status/current-step pair still
	// equals expected, and returns ErrStaleWrite otherwise.
	Update(ctx context.Context, response *models.FormResponse, expected models.FormResponseState) error
	List(ctx context.Context, opts ListFormResponsesOptions) (*Page[*models.FormResponse], error)
}

// FormReviewRepository is the append-only store of review decisions.
type FormReviewRepository interface {
	Append(ctx context.Context, review *models.FormReview) error
	List(ctx context.Context, opts ListFormReviewsOptions) (*Page[*models.FormReview], error)
}

// StepHistoryRepository is the append-only store of topology changes.
type StepHistoryRepository interface {
	Append(ctx context.Context, entry *models.StepHistory) error
	List(ctx context.Context, opts ListStepHistoryOptions) (*Page[*models.StepHistory], error)
}

// Page is one slice of a paginated listing.
type Page[T any] struct {
	Items       []T   `json:"items"`
	TotalCount  int64 `json:"total_count"`
	HasNextPage bool  `json:"has_next_page"`
}

// Pagination is the limit/offset window of a listing.
type Pagination struct {
	Limit  int
	Offset int
}

// ListStepsOptions filters active steps.
type ListStepsOptions struct {
	UserID    string // only steps the user is directly assigned to
	TeamID    string // only steps the team is assigned to
	SortBy    models.StepSortField
	SortOrder models.SortOrder
}

// FlowPosition identifies a step within a specific flow.
type FlowPosition struct {
	FlowID string
	StepID string
}

// ListFormResponsesOptions filters active form responses.
type ListFormResponsesOptions struct {
	Pagination

	SubmittedBy   string
	FlowID        string
	StepID        string
	Positions     []FlowPosition // any of; a non-nil empty slice matches nothing
	Status        *models.FormResponseStatus
	EnteredBefore *time.Time // step_entered_at strictly before

	SortBy    models.FormResponseSortField
	SortOrder models.SortOrder
}

// ListFormReviewsOptions filters review history. Results are ordered by
// creation time descending, ties broken by ID descending.
type ListFormReviewsOptions struct {
	Pagination

	FormResponseID string
	ReviewerID     string
	StepID         string
	Action         models.ReviewAction
	From           *time.Time
	To             *time.Time
}

// ListStepHistoryOptions filters step history. Results are ordered by creation
// time descending, ties broken by ID descending.
type ListStepHistoryOptions struct {
	Pagination

	StepID  string
	ActorID string
	Action  models.StepHistoryAction
	From    *time.Time
	To      *time.Time
}

// Paginate cuts items to the requested window. Items must already be sorted.
func Paginate[T any](items []T, p Pagination) *Page[T] {
	total := len(items)

	start := min(max(p.Offset, 0), total)

	end := total
	if p.Limit > 0 {
		end = min(start+p.Limit, total)
	}

	return &Page[T]{
		Items:       items[start:end],
		TotalCount:  int64(total),
		HasNextPage: end < total,
	}
}
