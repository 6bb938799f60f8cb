package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/rescue_dispatch_system/internal/config"
	"github.com/shenikar/rescue_dispatch_system/internal/dispatch"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/shenikar/rescue_dispatch_system/internal/triage"
	"github.com/sirupsen/logrus"
)

// IncidentRepository определяет контракт для работы с бд инцидентов
type IncidentRepository interface {
	Create(ctx context.Context, incident *models.Incident) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	List(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.IncidentStatus, at time.Time) error
	UpdateAssignment(ctx context.Context, id uuid.UUID, update models.AssignmentUpdate) error
	CountActiveByTeam(ctx context.Context) (map[uuid.UUID]int, error)
	GetIncidentFromCache(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	SetIncidentCache(ctx context.Context, incident *models.Incident) error
	InvalidateIncidentCache(ctx context.Context, id uuid.UUID) error
}

// Triager - конвейер триажа обращения
type Triager interface {
	Analyze(ctx context.Context, report models.Report) triage.Result
}

// ActionPlanner - генеративный сервис текстового плана по одному инциденту
type ActionPlanner interface {
	ActionPlan(ctx context.Context, incident *models.Incident) (string, error)
}

// IncidentService определяет контракт бизнес-логики инцидентов
type IncidentService interface {
	SubmitReport(ctx context.Context, report models.Report) (*models.Incident, error)
	GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.IncidentStatus) error
	GenerateActionPlan(ctx context.Context, id uuid.UUID) (*models.ActionPlan, error)
}

type incidentService struct {
	repo     IncidentRepository
	triager  Triager
	planner  ActionPlanner
	logger   *logrus.Logger
	staleTTL time.Duration
	aiTTL    time.Duration
	now      func() time.Time
}

func NewIncidentService(repo IncidentRepository, triager Triager, planner ActionPlanner, logger *logrus.Logger, cfg *config.Config) IncidentService {
	staleTTL := cfg.StaleDispatchTTL
	if staleTTL <= 0 {
		staleTTL = dispatch.DefaultStaleTTL
	}
	return &incidentService{
		repo:     repo,
		triager:  triager,
		planner:  planner,
		logger:   logger,
		staleTTL: staleTTL,
		aiTTL:    cfg.AITimeout,
		now:      time.Now,
	}
}

// SubmitReport прогоняет обращение через триаж и сохраняет инцидент.
// Недоступность ИИ не является ошибкой: инцидент сохраняется с деградированным анализом.
func (s *incidentService) SubmitReport(ctx context.Context, report models.Report) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "incident",
		"method":   "SubmitReport",
		"location": report.Location,
	})
	log.Info("Submitting a new report")

	result := s.triager.Analyze(ctx, report)
	if result.Degraded {
		log.WithField("reason", result.Reason).Warn("Report triaged with degraded analysis")
	}

	incident := &models.Incident{
		Location:      report.Location,
		Latitude:      report.Latitude,
		Longitude:     report.Longitude,
		Description:   report.Description,
		ReporterName:  report.ReporterName,
		ReporterPhone: report.ReporterPhone,
		Status:        models.StatusNew,
		Analysis:      result.Analysis,
	}
	if err := s.repo.Create(ctx, incident); err != nil {
		log.WithError(err).Error("Failed to create incident in repository")
		return nil, fmt.Errorf("service: could not create incident: %w", err)
	}

	log.WithFields(logrus.Fields{
		"incident_id": incident.ID,
		"severity":    incident.Analysis.Severity,
		"source":      incident.Analysis.Adjustments.Source,
	}).Info("Incident created successfully")
	return incident, nil
}

// GetIncident получает инцидент по ID: сначала кэш, затем бд. Устаревший выезд закрывается при чтении.
func (s *incidentService) GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "GetIncident",
		"incident_id": id,
	})
	log.Debug("Fetching incident by ID")

	incident, err := s.repo.GetIncidentFromCache(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to read incident from cache")
	}
	if incident == nil {
		incident, err = s.repo.GetByID(ctx, id)
		if err != nil {
			log.WithError(err).Warn("Failed to get incident in repository")
			return nil, fmt.Errorf("service: could not get incident: %w", err)
		}
		if err := s.repo.SetIncidentCache(ctx, incident); err != nil {
			log.WithError(err).Warn("Failed to cache incident")
		}
	}

	if dispatch.Reap(incident, s.staleTTL, s.now()) {
		s.persistReaped(ctx, incident, log)
	}
	return incident, nil
}

// ListIncidents возвращает инциденты по фильтру после закрытия устаревших выездов
func (s *incidentService) ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "incident",
		"method":   "ListIncidents",
		"statuses": filter.Statuses,
		"query":    filter.Query,
	})
	log.Debug("Listing incidents")

	if _, err := closeStale(ctx, s.repo, s.staleTTL, s.now(), log); err != nil {
		log.WithError(err).Warn("Failed to close stale dispatches before listing")
	}

	incidents, err := s.repo.List(ctx, filter)
	if err != nil {
		log.WithError(err).Error("Failed to list incidents from repository")
		return nil, fmt.Errorf("service: could not list incidents: %w", err)
	}

	log.WithField("count", len(incidents)).Debug("Incidents listed successfully")
	return incidents, nil
}

// UpdateStatus переводит инцидент в новый статус. closed - конечное состояние,
// повторное закрытие не является ошибкой. Возврат в new снимает назначение.
func (s *incidentService) UpdateStatus(ctx context.Context, id uuid.UUID, status models.IncidentStatus) error {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "UpdateStatus",
		"incident_id": id,
		"status":      status,
	})
	if !status.Valid() {
		return fmt.Errorf("service: status %q: %w", status, models.ErrInvalidStatus)
	}

	incident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Attempted to update status of a non-existent incident")
		return fmt.Errorf("service: could not get incident: %w", err)
	}
	if incident.Status.IsTerminal() {
		if status == models.StatusClosed {
			return nil
		}
		return fmt.Errorf("service: incident %s: %w", id, models.ErrIncidentClosed)
	}

	if err := s.repo.UpdateStatus(ctx, id, status, s.now()); err != nil {
		log.WithError(err).Error("Failed to update incident status in repository")
		return fmt.Errorf("service: could not update incident status: %w", err)
	}
	if status == models.StatusNew {
		update := models.AssignmentUpdate{DispatchID: models.Unassign(), TeamID: models.Unassign()}
		if err := s.repo.UpdateAssignment(ctx, id, update); err != nil {
			log.WithError(err).Error("Failed to clear incident assignment")
			return fmt.Errorf("service: could not clear incident assignment: %w", err)
		}
	}
	s.invalidate(ctx, id, log)

	log.Info("Incident status updated")
	return nil
}

// GenerateActionPlan запрашивает план у ИИ, при ошибке строит локальный план
func (s *incidentService) GenerateActionPlan(ctx context.Context, id uuid.UUID) (*models.ActionPlan, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "GenerateActionPlan",
		"incident_id": id,
	})

	incident, err := s.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}

	planCtx := ctx
	if s.aiTTL > 0 {
		var cancel context.CancelFunc
		planCtx, cancel = context.WithTimeout(ctx, s.aiTTL)
		defer cancel()
	}

	text, err := s.planner.ActionPlan(planCtx, incident)
	if err == nil && text != "" {
		return &models.ActionPlan{IncidentID: id, Text: text}, nil
	}
	if err == nil {
		err = errors.New("planner returned an empty plan")
	}
	log.WithError(err).Warn("AI action plan unavailable, using fallback plan")

	fallback := dispatch.FallbackPlan([]*models.Incident{incident})
	return &models.ActionPlan{IncidentID: id, Text: dispatch.RenderPlanText(fallback), Fallback: true}, nil
}

func (s *incidentService) persistReaped(ctx context.Context, incident *models.Incident, log *logrus.Entry) {
	err := s.repo.UpdateStatus(ctx, incident.ID, models.StatusClosed, incident.UpdatedAt)
	if err != nil && !errors.Is(err, models.ErrIncidentClosed) {
		log.WithError(err).Warn("Failed to persist stale dispatch closure")
	}
	s.invalidate(ctx, incident.ID, log)
}

func (s *incidentService) invalidate(ctx context.Context, id uuid.UUID, log *logrus.Entry) {
	if err := s.repo.InvalidateIncidentCache(ctx, id); err != nil {
		log.WithError(err).Warn("Failed to invalidate incident cache")
	}
}

// closeStale закрывает все выезды старше ttl и возвращает число закрытых инцидентов
func closeStale(ctx context.Context, repo IncidentRepository, ttl time.Duration, now time.Time, log *logrus.Entry) (int, error) {
	active, err := repo.List(ctx, models.IncidentFilter{Statuses: []models.IncidentStatus{models.StatusRescueDispatched}})
	if err != nil {
		return 0, fmt.Errorf("could not list dispatched incidents: %w", err)
	}

	closed := 0
	for _, incident := range active {
		if !dispatch.Reap(incident, ttl, now) {
			continue
		}
		if err := repo.UpdateStatus(ctx, incident.ID, models.StatusClosed, now); err != nil {
			if !errors.Is(err, models.ErrIncidentClosed) {
				log.WithError(err).WithField("incident_id", incident.ID).Warn("Failed to close stale dispatch")
			}
			continue
		}
		if err := repo.InvalidateIncidentCache(ctx, incident.ID); err != nil {
			log.WithError(err).Warn("Failed to invalidate incident cache")
		}
		closed++
	}
	if closed > 0 {
		log.WithField("closed", closed).Info("Closed stale dispatches")
	}
	return closed, nil
}
