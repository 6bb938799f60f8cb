package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/rescue_dispatch_system/internal/dispatch"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/shenikar/rescue_dispatch_system/internal/webhook"
	"github.com/sirupsen/logrus"
)

// DispatchService определяет контракт распределения инцидентов по бригадам
type DispatchService interface {
	AllocateBatch(ctx context.Context, req models.BatchRequest) (*models.BatchResult, error)
	Score(ctx context.Context, incidentID, teamID uuid.UUID, weights *models.WeightsOverride) (*models.AssignmentScore, error)
}

type dispatchService struct {
	incidents  IncidentRepository
	teams      TeamRepository
	dispatches DispatchRepository
	planner    dispatch.Planner
	model      dispatch.AssignmentModel
	publisher  webhook.WebhookPublisher
	logger     *logrus.Logger
	cfg        dispatch.Config
	staleTTL   time.Duration
	planTTL    time.Duration
	now        func() time.Time
}

func NewDispatchService(
	incidents IncidentRepository,
	teams TeamRepository,
	dispatches DispatchRepository,
	planner dispatch.Planner,
	model dispatch.AssignmentModel,
	publisher webhook.WebhookPublisher,
	logger *logrus.Logger,
	cfg dispatch.Config,
	staleTTL, planTTL time.Duration,
) DispatchService {
	if staleTTL <= 0 {
		staleTTL = dispatch.DefaultStaleTTL
	}
	return &dispatchService{
		incidents:  incidents,
		teams:      teams,
		dispatches: dispatches,
		planner:    planner,
		model:      model,
		publisher:  publisher,
		logger:     logger,
		cfg:        cfg,
		staleTTL:   staleTTL,
		planTTL:    planTTL,
		now:        time.Now,
	}
}

// AllocateBatch распределяет пакет инцидентов, создает по выезду на бригаду и переводит
// инциденты в rescue_dispatched. Операция не откатывается: сбои отдельных шагов попадают в результат.
func (s *dispatchService) AllocateBatch(ctx context.Context, req models.BatchRequest) (*models.BatchResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":    "dispatch",
		"method":     "AllocateBatch",
		"created_by": req.CreatedBy,
	})

	if _, err := closeStale(ctx, s.incidents, s.staleTTL, s.now(), log); err != nil {
		log.WithError(err).Warn("Failed to close stale dispatches before allocation")
	}

	incidents, err := s.eligibleIncidents(ctx, req.IncidentIDs)
	if err != nil {
		return nil, err
	}
	if len(incidents) == 0 {
		return nil, models.ErrNoEligibleIncidents
	}

	teams, err := s.eligibleTeams(ctx, req.TeamIDs)
	if err != nil {
		return nil, err
	}
	if len(teams) == 0 {
		return nil, models.ErrNoEligibleTeams
	}

	loads, err := s.incidents.CountActiveByTeam(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to count team loads")
		return nil, fmt.Errorf("service: could not count team loads: %w", err)
	}
	loads = releaseRedispatched(loads, incidents)

	cfg := s.cfg
	cfg.Weights = req.Weights.Apply(s.cfg.Weights)

	allocation := dispatch.Allocate(incidents, teams, loads, cfg, s.model)
	log.WithFields(logrus.Fields{
		"incidents": len(incidents),
		"teams":     len(allocation.Teams),
	}).Info("Incidents allocated")

	teamsByID := make(map[uuid.UUID]*models.Team, len(teams))
	for _, t := range teams {
		teamsByID[t.ID] = t
	}

	result := &models.BatchResult{
		Dispatches: make([]models.TeamDispatch, 0, len(allocation.Teams)),
		Loads:      allocation.Loads,
		Warnings:   make([]string, 0),
	}
	for _, teamID := range allocation.Teams {
		td := s.dispatchTeam(ctx, teamsByID[teamID], allocation.Assignments[teamID], req.CreatedBy, result, log)
		result.Dispatches = append(result.Dispatches, td)
	}
	return result, nil
}

func (s *dispatchService) dispatchTeam(ctx context.Context, team *models.Team, incidents []*models.Incident, createdBy string, result *models.BatchResult, log *logrus.Entry) models.TeamDispatch {
	log = log.WithField("team_id", team.ID)
	td := models.TeamDispatch{
		TeamID:      team.ID,
		TeamName:    team.Name,
		IncidentIDs: make([]uuid.UUID, 0, len(incidents)),
		Failures:    make([]string, 0),
	}
	for _, inc := range incidents {
		td.IncidentIDs = append(td.IncidentIDs, inc.ID)
	}

	planCtx := ctx
	if s.planTTL > 0 {
		var cancel context.CancelFunc
		planCtx, cancel = context.WithTimeout(ctx, s.planTTL)
		defer cancel()
	}
	plan, err := dispatch.BuildPlan(planCtx, s.planner, incidents)
	if err != nil {
		log.WithError(err).Warn("AI dispatch plan unavailable, using fallback plan")
		td.PlanFallback = true
	}

	snapshots := make([]models.IncidentSnapshot, 0, len(incidents))
	for _, inc := range dispatch.SortBySeverity(incidents) {
		snapshots = append(snapshots, inc.Snapshot())
	}
	record := &models.Dispatch{
		TeamID:    team.ID,
		CreatedBy: createdBy,
		Status:    models.DispatchAssigned,
		PlanText:  dispatch.RenderPlanText(plan),
		Plan:      plan,
		Incidents: snapshots,
	}
	if err := s.dispatches.Create(ctx, record); err != nil {
		log.WithError(err).Error("Failed to create dispatch record")
		msg := fmt.Sprintf("team %s: dispatch record not created: %v", team.ID, err)
		td.Failures = append(td.Failures, msg)
		result.Warnings = append(result.Warnings, msg)
		return td
	}
	td.Dispatch = record

	now := s.now()
	for _, inc := range incidents {
		if err := s.markDispatched(ctx, inc.ID, record.ID, team.ID, now); err != nil {
			log.WithError(err).WithField("incident_id", inc.ID).Error("Failed to mark incident dispatched")
			msg := fmt.Sprintf("incident %s: %v", inc.ID, err)
			td.Failures = append(td.Failures, msg)
			result.Warnings = append(result.Warnings, msg)
		}
	}

	if err := s.publisher.Publish(ctx, webhook.NewDispatchEvent(record)); err != nil {
		log.WithError(err).Warn("Failed to publish dispatch webhook")
		result.Warnings = append(result.Warnings, fmt.Sprintf("dispatch %s: notification not queued: %v", record.ID, err))
	}

	log.WithFields(logrus.Fields{
		"dispatch_id": record.ID,
		"incidents":   len(incidents),
	}).Info("Dispatch created")
	return td
}

func (s *dispatchService) markDispatched(ctx context.Context, incidentID, dispatchID, teamID uuid.UUID, at time.Time) error {
	if err := s.incidents.UpdateStatus(ctx, incidentID, models.StatusRescueDispatched, at); err != nil {
		return fmt.Errorf("status not updated: %w", err)
	}
	update := models.AssignmentUpdate{
		DispatchID: models.Assign(dispatchID),
		TeamID:     models.Assign(teamID),
	}
	if err := s.incidents.UpdateAssignment(ctx, incidentID, update); err != nil {
		return fmt.Errorf("assignment not updated: %w", err)
	}
	if err := s.incidents.InvalidateIncidentCache(ctx, incidentID); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate incident cache")
	}
	return nil
}

// releaseRedispatched снимает повторно распределяемые инциденты с текущих бригад,
// чтобы Allocate не учел их дважды. Исходная карта не изменяется.
func releaseRedispatched(loads map[uuid.UUID]int, incidents []*models.Incident) map[uuid.UUID]int {
	released := make(map[uuid.UUID]int, len(loads))
	for id, n := range loads {
		released[id] = n
	}
	for _, inc := range incidents {
		if inc.Status != models.StatusRescueDispatched || inc.AssignedTeam == nil {
			continue
		}
		if released[*inc.AssignedTeam] > 0 {
			released[*inc.AssignedTeam]--
		}
	}
	return released
}

// eligibleIncidents: без списка id - все новые инциденты, со списком - любые незакрытые из него
func (s *dispatchService) eligibleIncidents(ctx context.Context, ids []uuid.UUID) ([]*models.Incident, error) {
	filter := models.IncidentFilter{Statuses: []models.IncidentStatus{models.StatusNew}}
	if len(ids) > 0 {
		filter = models.IncidentFilter{
			IDs:      ids,
			Statuses: []models.IncidentStatus{models.StatusNew, models.StatusRescueDispatched},
		}
	}
	incidents, err := s.incidents.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service: could not list incidents for dispatch: %w", err)
	}
	return incidents, nil
}

func (s *dispatchService) eligibleTeams(ctx context.Context, ids []uuid.UUID) ([]*models.Team, error) {
	teams, err := s.teams.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: could not list teams for dispatch: %w", err)
	}
	if len(ids) == 0 {
		return teams, nil
	}
	wanted := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	selected := make([]*models.Team, 0, len(ids))
	for _, t := range teams {
		if _, ok := wanted[t.ID]; ok {
			selected = append(selected, t)
		}
	}
	return selected, nil
}

// Score оценивает назначение инцидента бригаде с текущей загрузкой
func (s *dispatchService) Score(ctx context.Context, incidentID, teamID uuid.UUID, weights *models.WeightsOverride) (*models.AssignmentScore, error) {
	incident, err := s.incidents.GetByID(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("service: could not get incident: %w", err)
	}
	team, err := s.teams.GetByID(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("service: could not get team: %w", err)
	}
	loads, err := s.incidents.CountActiveByTeam(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: could not count team loads: %w", err)
	}

	cfg := s.cfg
	cfg.Weights = weights.Apply(s.cfg.Weights)
	state := dispatch.TeamState{Team: team, Load: loads[team.ID]}
	return &models.AssignmentScore{
		IncidentID: incident.ID,
		TeamID:     team.ID,
		Score:      dispatch.Score(incident, state, cfg, s.model),
		DistanceKm: dispatch.DistanceKm(incident, team, cfg),
		Load:       state.Load,
	}, nil
}
