package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/shenikar/rescue_dispatch_system/internal/service"
)

const incidentColumns = `
	id,
	location,
	latitude,
	longitude,
	description,
	reporter_name,
	reporter_phone,
	status,
	dispatch_id,
	assigned_team,
	dispatched_at,
	analysis,
	created_at,
	updated_at`

type IncidentRepository struct {
	db          *pgxpool.Pool
	redisClient *redis.Client
	cacheTTL    time.Duration
}

func NewIncidentRepository(db *pgxpool.Pool, redisClient *redis.Client, cacheTTL time.Duration) service.IncidentRepository {
	return &IncidentRepository{
		db:          db,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
	}
}

// Create создает новую запись об инциденте в бд
func (r *IncidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	analysis, err := json.Marshal(incident.Analysis)
	if err != nil {
		return fmt.Errorf("failed to marshal incident analysis: %w", err)
	}

	query := `
		INSERT INTO incidents (location, latitude, longitude, description, reporter_name, reporter_phone, status, analysis)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at, updated_at;
	`
	err = r.db.QueryRow(ctx, query,
		incident.Location,
		incident.Latitude,
		incident.Longitude,
		incident.Description,
		incident.ReporterName,
		incident.ReporterPhone,
		string(incident.Status),
		analysis,
	).Scan(&incident.ID, &incident.CreatedAt, &incident.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}
	return nil
}

// GetByID возвращает инцидент по его UUID
func (r *IncidentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1;`

	incident, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("incident with id %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get incident by id: %w", err)
	}
	return incident, nil
}

// List возвращает инциденты по фильтру: набор статусов, подстрока текста, набор id
func (r *IncidentRepository) List(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error) {
	var (
		conditions []string
		args       []any
	)
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(filter.IDs) > 0 {
		ids := make([]string, len(filter.IDs))
		for i, id := range filter.IDs {
			ids[i] = id.String()
		}
		args = append(args, ids)
		conditions = append(conditions, fmt.Sprintf("id = ANY($%d::uuid[])", len(args)))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(location ILIKE $%d OR description ILIKE $%d OR analysis->>'summary' ILIKE $%d)", n, n, n))
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + incidentColumns + ` FROM incidents`)
	if len(conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC;")

	rows, err := r.db.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]*models.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident row: %w", err)
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return incidents, nil
}

// UpdateStatus меняет статус инцидента. Переход в rescue_dispatched ставит dispatched_at.
// Закрытый инцидент не меняется.
func (r *IncidentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.IncidentStatus, at time.Time) error {
	query := `
		UPDATE incidents SET
			status = $2,
			dispatched_at = CASE WHEN $2 = 'rescue_dispatched' THEN $3 ELSE dispatched_at END,
			updated_at = $3
		WHERE id = $1 AND status <> 'closed';
	`
	cmdTag, err := r.db.Exec(ctx, query, id, string(status), at)
	if err != nil {
		return fmt.Errorf("failed to update incident status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return r.missingOrClosed(ctx, id)
	}
	return nil
}

// UpdateAssignment меняет поля назначения. Незаданные поля остаются без изменений,
// Unassign записывает NULL.
func (r *IncidentRepository) UpdateAssignment(ctx context.Context, id uuid.UUID, update models.AssignmentUpdate) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	if update.DispatchID.Set {
		args = append(args, update.DispatchID.Value)
		sets = append(sets, fmt.Sprintf("dispatch_id = $%d", len(args)))
	}
	if update.TeamID.Set {
		args = append(args, update.TeamID.Value)
		sets = append(sets, fmt.Sprintf("assigned_team = $%d", len(args)))
	}
	if len(args) == 1 {
		return nil
	}

	query := fmt.Sprintf(`UPDATE incidents SET %s WHERE id = $1 AND status <> 'closed';`, strings.Join(sets, ", "))
	cmdTag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update incident assignment: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return r.missingOrClosed(ctx, id)
	}
	return nil
}

// CountActiveByTeam возвращает число незакрытых инцидентов, назначенных каждой бригаде
func (r *IncidentRepository) CountActiveByTeam(ctx context.Context) (map[uuid.UUID]int, error) {
	query := `
		SELECT assigned_team, COUNT(*)
		FROM incidents
		WHERE assigned_team IS NOT NULL AND status <> 'closed'
		GROUP BY assigned_team;
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count team loads: %w", err)
	}
	defer rows.Close()

	loads := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			teamID uuid.UUID
			count  int
		)
		if err := rows.Scan(&teamID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan team load row: %w", err)
		}
		loads[teamID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error team load iteration: %w", err)
	}
	return loads, nil
}

func (r *IncidentRepository) missingOrClosed(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM incidents WHERE id = $1);`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check incident existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("incident with id %s: %w", id, models.ErrNotFound)
	}
	return fmt.Errorf("incident with id %s: %w", id, models.ErrIncidentClosed)
}

// GetIncidentFromCache пытается получить инцидент из Redis
func (r *IncidentRepository) GetIncidentFromCache(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	val, err := r.redisClient.Get(ctx, incidentCacheKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get incident from cache: %w", err)
	}

	incident := &models.Incident{}
	if err := json.Unmarshal(val, incident); err != nil {
		return nil, fmt.Errorf("failed to unmarshal incident from cache: %w", err)
	}
	return incident, nil
}

// SetIncidentCache сохраняет инцидент в Redis
func (r *IncidentRepository) SetIncidentCache(ctx context.Context, incident *models.Incident) error {
	val, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("failed to marshal incident for cache: %w", err)
	}
	if err := r.redisClient.Set(ctx, incidentCacheKey(incident.ID), val, r.cacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set incident in cache: %w", err)
	}
	return nil
}

// InvalidateIncidentCache удаляет инцидент из Redis кэша
func (r *IncidentRepository) InvalidateIncidentCache(ctx context.Context, id uuid.UUID) error {
	if err := r.redisClient.Del(ctx, incidentCacheKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate incident cache: %w", err)
	}
	return nil
}

func incidentCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("incident:%s", id.String())
}

func scanIncident(row pgx.Row) (*models.Incident, error) {
	incident := &models.Incident{}
	var (
		status   string
		analysis []byte
	)
	err := row.Scan(
		&incident.ID,
		&incident.Location,
		&incident.Latitude,
		&incident.Longitude,
		&incident.Description,
		&incident.ReporterName,
		&incident.ReporterPhone,
		&status,
		&incident.DispatchID,
		&incident.AssignedTeam,
		&incident.DispatchedAt,
		&analysis,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	incident.Status = models.IncidentStatus(status)
	if len(analysis) > 0 {
		if err := json.Unmarshal(analysis, &incident.Analysis); err != nil {
			return nil, fmt.Errorf("failed to unmarshal incident analysis: %w", err)
		}
	}
	if incident.Analysis.FollowUpQuestions == nil {
		incident.Analysis.FollowUpQuestions = []string{}
	}
	return incident, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
