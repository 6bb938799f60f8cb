package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/shenikar/rescue_dispatch_system/internal/service"
)

const dispatchColumns = `id, team_id, created_by, status, plan_text, plan, incidents, created_at`

type DispatchRepository struct {
	db *pgxpool.Pool
}

func NewDispatchRepository(db *pgxpool.Pool) service.DispatchRepository {
	return &DispatchRepository{db: db}
}

// Create сохраняет запись о выезде. Снимки инцидентов пишутся как есть и больше не меняются.
func (r *DispatchRepository) Create(ctx context.Context, dispatch *models.Dispatch) error {
	plan, err := json.Marshal(dispatch.Plan)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch plan: %w", err)
	}
	incidents, err := encodeSnapshots(dispatch.Incidents)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO dispatches (team_id, created_by, status, plan_text, plan, incidents)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at;
	`
	err = r.db.QueryRow(ctx, query,
		dispatch.TeamID,
		dispatch.CreatedBy,
		string(dispatch.Status),
		dispatch.PlanText,
		plan,
		incidents,
	).Scan(&dispatch.ID, &dispatch.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create dispatch: %w", err)
	}
	return nil
}

// GetByID возвращает выезд по id
func (r *DispatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispatch, error) {
	query := `SELECT ` + dispatchColumns + ` FROM dispatches WHERE id = $1;`
	dispatch, err := scanDispatch(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("dispatch with id %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get dispatch by id: %w", err)
	}
	return dispatch, nil
}

// ListByTeam возвращает выезды бригады, новые первыми
func (r *DispatchRepository) ListByTeam(ctx context.Context, teamID uuid.UUID) ([]*models.Dispatch, error) {
	query := `SELECT ` + dispatchColumns + ` FROM dispatches WHERE team_id = $1 ORDER BY created_at DESC;`
	rows, err := r.db.Query(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatches: %w", err)
	}
	defer rows.Close()

	dispatches := make([]*models.Dispatch, 0)
	for rows.Next() {
		dispatch, err := scanDispatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dispatch row: %w", err)
		}
		dispatches = append(dispatches, dispatch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error dispatch list iteration: %w", err)
	}
	return dispatches, nil
}

func scanDispatch(row pgx.Row) (*models.Dispatch, error) {
	dispatch := &models.Dispatch{}
	var (
		status    string
		plan      []byte
		incidents []byte
	)
	err := row.Scan(
		&dispatch.ID,
		&dispatch.TeamID,
		&dispatch.CreatedBy,
		&status,
		&dispatch.PlanText,
		&plan,
		&incidents,
		&dispatch.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	dispatch.Status = models.DispatchStatus(status)
	if err := json.Unmarshal(plan, &dispatch.Plan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dispatch plan: %w", err)
	}
	if err := json.Unmarshal(incidents, &dispatch.Incidents); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dispatch incidents: %w", err)
	}
	return dispatch, nil
}

func encodeSnapshots(snapshots []models.IncidentSnapshot) ([]byte, error) {
	if snapshots == nil {
		snapshots = []models.IncidentSnapshot{}
	}
	data, err := json.Marshal(snapshots)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dispatch incidents: %w", err)
	}
	return data, nil
}
