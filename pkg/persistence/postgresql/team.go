package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/reviewflow/pkg/models"
	"github.com/lib/pq"
)

const teamColumns = `
	id
  , name
  , member_ids
  , created_at
  , updated_at
  , deleted_at
`

// TeamRepository handles team-related database operations.
type TeamRepository struct {
	db     dbtx
	logger *slog.Logger
}

func scanTeam(row rowScanner) (*models.Team, error) {
	var team models.Team

	err := row.Scan(
		&team.ID,
		&team.Name,
		pq.Array(&team.MemberIDs),
		&team.CreatedAt,
		&team.UpdatedAt,
		&team.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	return &team, nil
}

func (r *TeamRepository) getOne(ctx context.Context, query string, args ...any) (*models.Team, error) {
	team, err := scanTeam(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan team: %w", err)
	}

	return team, nil
}

func (r *TeamRepository) list(ctx context.Context, query string, args ...any) ([]*models.Team, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query teams: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	teams := make([]*models.Team, 0)

	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}

		teams = append(teams, team)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating teams: %w", err)
	}

	return teams, nil
}

func (r *TeamRepository) GetByID(ctx context.Context, id string) (*models.Team, error) {
	return r.getOne(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1 AND deleted_at IS NULL`, id)
}

func (r *TeamRepository) GetByIDIncludingDeleted(ctx context.Context, id string) (*models.Team, error) {
	return r.getOne(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id)
}

func (r *TeamRepository) GetByName(ctx context.Context, name string) (*models.Team, error) {
	return r.getOne(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE name_key = $1 AND deleted_at IS NULL`,
		models.NameKey(name),
	)
}

// GetByIDs returns the active teams among ids, in the order of ids.
func (r *TeamRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.Team, error) {
	if len(ids) == 0 {
		return []*models.Team{}, nil
	}

	return r.list(ctx, `
		SELECT `+teamColumns+`
		FROM teams
		WHERE id = ANY($1) AND deleted_at IS NULL
		ORDER BY array_position($1, id)
	`, pq.Array(ids))
}

func (r *TeamRepository) ListByMember(ctx context.Context, userID string) ([]*models.Team, error) {
	return r.list(ctx, `
		SELECT `+teamColumns+`
		FROM teams
		WHERE $1 = ANY(member_ids) AND deleted_at IS NULL
		ORDER BY created_at, id
	`, userID)
}

func (r *TeamRepository) Save(ctx context.Context, team *models.Team) error {
	query := `
		INSERT INTO teams (id, name, name_key, member_ids, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			name_key = EXCLUDED.name_key,
			member_ids = EXCLUDED.member_ids,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`

	_, err := r.db.ExecContext(ctx, query,
		team.ID,
		team.Name,
		models.NameKey(team.Name),
		stringArray(team.MemberIDs),
		team.CreatedAt,
		team.UpdatedAt,
		team.DeletedAt,
	)
	if err != nil {
		return mapWriteError("Save", "team", team.ID, err)
	}

	return nil
}
