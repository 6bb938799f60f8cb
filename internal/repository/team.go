package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/shenikar/rescue_dispatch_system/internal/service"
)

const teamColumns = `id, name, contact, password_hash, base_lat, base_lng, status, created_at, updated_at`

type TeamRepository struct {
	db *pgxpool.Pool
}

func NewTeamRepository(db *pgxpool.Pool) service.TeamRepository {
	return &TeamRepository{db: db}
}

// Create сохраняет новую бригаду
func (r *TeamRepository) Create(ctx context.Context, team *models.Team) error {
	query := `
		INSERT INTO teams (name, contact, password_hash, base_lat, base_lng, status)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at;
	`
	err := r.db.QueryRow(ctx, query,
		team.Name,
		team.Contact,
		team.PasswordHash,
		team.BaseLat,
		team.BaseLng,
		team.Status,
	).Scan(&team.ID, &team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("team %q: %w", team.Name, models.ErrTeamExists)
		}
		return fmt.Errorf("failed to create team: %w", err)
	}
	return nil
}

// GetByID возвращает бригаду по id
func (r *TeamRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1;`
	team, err := scanTeam(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("team with id %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get team by id: %w", err)
	}
	return team, nil
}

// GetByName возвращает бригаду по имени для входа
func (r *TeamRepository) GetByName(ctx context.Context, name string) (*models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE name = $1;`
	team, err := scanTeam(r.db.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("team %q: %w", name, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get team by name: %w", err)
	}
	return team, nil
}

// List возвращает все бригады в порядке регистрации
func (r *TeamRepository) List(ctx context.Context) ([]*models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams ORDER BY created_at ASC;`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	teams := make([]*models.Team, 0)
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team row: %w", err)
		}
		teams = append(teams, team)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error team list iteration: %w", err)
	}
	return teams, nil
}

// UpdateLocation обновляет базовую точку бригады
func (r *TeamRepository) UpdateLocation(ctx context.Context, id uuid.UUID, lat, lng float64) error {
	query := `
		UPDATE teams SET
			base_lat = $2,
			base_lng = $3,
			updated_at = NOW()
		WHERE id = $1;
	`
	cmdTag, err := r.db.Exec(ctx, query, id, lat, lng)
	if err != nil {
		return fmt.Errorf("failed to update team location: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("team with id %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func scanTeam(row pgx.Row) (*models.Team, error) {
	team := &models.Team{}
	err := row.Scan(
		&team.ID,
		&team.Name,
		&team.Contact,
		&team.PasswordHash,
		&team.BaseLat,
		&team.BaseLng,
		&team.Status,
		&team.CreatedAt,
		&team.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return team, nil
}
