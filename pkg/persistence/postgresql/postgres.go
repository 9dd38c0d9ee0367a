// Package postgresql provides the PostgreSQL persistence implementation for
// steps, flows and form reviews.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/reviewflow/pkg/persistence"
	"github.com/dukex/reviewflow/pkg/persistence/sqlbase"
	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// dbtx is the subset of *sql.DB and *sql.Tx the repositories need.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
	repos  *repositories
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	postgres := &Persistence{
		db:     database,
		logger: logger,
		repos:  newRepositories(database, logger),
	}

	err = postgres.Migrate(ctx)
	if err != nil {
		return nil, err
	}

	return postgres, nil
}

// Migrate brings the schema up to the latest version.
func (p *Persistence) Migrate(ctx context.Context) error {
	err := sqlbase.NewMigrationManager(p.logger, p.db, migrations()).RunMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Transaction runs fn inside a database transaction. Row locks taken through
// GetByIDForUpdate are held until fn returns.
func (p *Persistence) Transaction(
	ctx context.Context,
	fn func(ctx context.Context, repos persistence.Repositories) error,
) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = fn(ctx, newRepositories(tx, p.logger))
	if err != nil {
		rollbackErr := tx.Rollback()
		if rollbackErr != nil {
			p.logger.ErrorContext(ctx, "failed to roll back transaction", "error", rollbackErr)
		}

		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (p *Persistence) StepRepository() persistence.StepRepository { return p.repos.steps }

func (p *Persistence) TeamRepository() persistence.TeamRepository { return p.repos.teams }

func (p *Persistence) UserRepository() persistence.UserRepository { return p.repos.users }

func (p *Persistence) FlowRepository() persistence.FlowRepository { return p.repos.flows }

func (p *Persistence) FormTemplateRepository() persistence.FormTemplateRepository {
	return p.repos.templates
}

func (p *Persistence) FormResponseRepository() persistence.FormResponseRepository {
	return p.repos.responses
}

func (p *Persistence) FormReviewRepository() persistence.FormReviewRepository { return p.repos.reviews }

func (p *Persistence) StepHistoryRepository() persistence.StepHistoryRepository { return p.repos.history }

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

func newRepositories(db dbtx, logger *slog.Logger) *repositories {
	return &repositories{
		steps:     &StepRepository{db: db, logger: logger},
		teams:     &TeamRepository{db: db, logger: logger},
		users:     &UserRepository{db: db},
		flows:     &FlowRepository{db: db, logger: logger},
		templates: &FormTemplateRepository{db: db},
		responses: &FormResponseRepository{db: db, logger: logger},
		reviews:   &FormReviewRepository{db: db, logger: logger},
		history:   &StepHistoryRepository{db: db, logger: logger},
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

// mapWriteError turns constraint violations into persistence errors.
func mapWriteError(op, entity, id string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return persistence.NewEntityError(op, entity, id, persistence.ErrDuplicateKey)
	}

	return fmt.Errorf("failed to %s %s: %w", op, entity, err)
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

// stringArray never yields NULL, matching the NOT NULL array columns.
func stringArray(ids []string) any {
	if ids == nil {
		ids = []string{}
	}

	return pq.Array(ids)
}
