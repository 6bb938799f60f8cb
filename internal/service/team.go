package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shenikar/rescue_dispatch_system/internal/config"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultTeamStatus = "ready"

	// Базовая точка по умолчанию, если бригада не передала координаты
	DefaultBaseLat = 13.0108
	DefaultBaseLng = 74.7943
)

// TeamRepository определяет контракт хранилища бригад
type TeamRepository interface {
	Create(ctx context.Context, team *models.Team) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Team, error)
	GetByName(ctx context.Context, name string) (*models.Team, error)
	List(ctx context.Context) ([]*models.Team, error)
	UpdateLocation(ctx context.Context, id uuid.UUID, lat, lng float64) error
}

// DispatchRepository определяет контракт хранилища выездов
type DispatchRepository interface {
	Create(ctx context.Context, dispatch *models.Dispatch) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispatch, error)
	ListByTeam(ctx context.Context, teamID uuid.UUID) ([]*models.Dispatch, error)
}

// SessionStore - хранилище сессий бригад с истечением по времени
type SessionStore interface {
	Put(ctx context.Context, session *models.TeamSession) error
	Get(ctx context.Context, id string) (*models.TeamSession, error)
	Delete(ctx context.Context, id string) error
}

// TeamService определяет контракт бизнес-логики бригад
type TeamService interface {
	CreateTeam(ctx context.Context, input models.NewTeam) (*models.Team, error)
	ListTeams(ctx context.Context) ([]*models.Team, error)
	TeamLoads(ctx context.Context) ([]models.TeamLoad, error)
	Login(ctx context.Context, name, password string) (*models.LoginResult, error)
	Logout(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (uuid.UUID, error)
	UpdateLocation(ctx context.Context, teamID uuid.UUID, lat, lng float64) error
	ListDispatches(ctx context.Context, teamID uuid.UUID) ([]*models.Dispatch, error)
	GetDispatch(ctx context.Context, teamID, dispatchID uuid.UUID) (*models.Dispatch, error)
	UpdateIncidentStatus(ctx context.Context, teamID, dispatchID, incidentID uuid.UUID, status models.IncidentStatus) error
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

type teamService struct {
	teams      TeamRepository
	dispatches DispatchRepository
	incidents  IncidentRepository
	incidentSv IncidentService
	sessions   SessionStore
	logger     *logrus.Logger
	secret     []byte
	sessionTTL time.Duration
	now        func() time.Time
}

func NewTeamService(teams TeamRepository, dispatches DispatchRepository, incidents IncidentRepository, incidentSv IncidentService, sessions SessionStore, logger *logrus.Logger, cfg *config.Config) TeamService {
	return &teamService{
		teams:      teams,
		dispatches: dispatches,
		incidents:  incidents,
		incidentSv: incidentSv,
		sessions:   sessions,
		logger:     logger,
		secret:     []byte(cfg.JWTSecret),
		sessionTTL: cfg.SessionTTL,
		now:        time.Now,
	}
}

// CreateTeam регистрирует бригаду, пароль хранится только в виде bcrypt-хэша
func (s *teamService) CreateTeam(ctx context.Context, input models.NewTeam) (*models.Team, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "team",
		"method":  "CreateTeam",
		"name":    input.Name,
	})

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("service: failed to hash password: %w", err)
	}

	team := &models.Team{
		Name:         strings.TrimSpace(input.Name),
		Contact:      input.Contact,
		PasswordHash: string(hash),
		BaseLat:      input.BaseLat,
		BaseLng:      input.BaseLng,
		Status:       input.Status,
	}
	if team.Status == "" {
		team.Status = defaultTeamStatus
	}
	if err := s.teams.Create(ctx, team); err != nil {
		log.WithError(err).Error("Failed to create team in repository")
		return nil, fmt.Errorf("service: could not create team: %w", err)
	}

	log.WithField("team_id", team.ID).Info("Team created successfully")
	return team, nil
}

// ListTeams возвращает все бригады
func (s *teamService) ListTeams(ctx context.Context) ([]*models.Team, error) {
	teams, err := s.teams.List(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("method", "ListTeams").Error("Failed to list teams")
		return nil, fmt.Errorf("service: could not list teams: %w", err)
	}
	return teams, nil
}

// TeamLoads возвращает текущую загрузку каждой бригады
func (s *teamService) TeamLoads(ctx context.Context) ([]models.TeamLoad, error) {
	teams, err := s.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	loads, err := s.incidents.CountActiveByTeam(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: could not count team loads: %w", err)
	}

	result := make([]models.TeamLoad, 0, len(teams))
	for _, t := range teams {
		result = append(result, models.TeamLoad{Team: t, Load: loads[t.ID]})
	}
	return result, nil
}

// Login проверяет пароль, создает сессию и выдает подписанный токен с ее id
func (s *teamService) Login(ctx context.Context, name, password string) (*models.LoginResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "team",
		"method":  "Login",
		"name":    name,
	})

	team, err := s.teams.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Warn("Login attempt for unknown team")
			return nil, models.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("service: could not get team: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(team.PasswordHash), []byte(password)); err != nil {
		log.Warn("Login attempt with invalid password")
		return nil, models.ErrInvalidCredentials
	}

	now := s.now()
	session := &models.TeamSession{
		ID:        uuid.NewString(),
		TeamID:    team.ID,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.sessions.Put(ctx, session); err != nil {
		log.WithError(err).Error("Failed to store team session")
		return nil, fmt.Errorf("service: could not store session: %w", err)
	}

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			Subject:   team.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("service: could not sign token: %w", err)
	}

	log.WithField("team_id", team.ID).Info("Team logged in")
	return &models.LoginResult{Token: token, Team: team, ExpiresAt: session.ExpiresAt}, nil
}

// Logout завершает сессию токена
func (s *teamService) Logout(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, claims.ID); err != nil {
		return fmt.Errorf("service: could not delete session: %w", err)
	}
	return nil
}

// Authenticate проверяет подпись токена и наличие сессии, возвращает id бригады
func (s *teamService) Authenticate(ctx context.Context, token string) (uuid.UUID, error) {
	claims, err := s.parse(token)
	if err != nil {
		return uuid.Nil, err
	}
	session, err := s.sessions.Get(ctx, claims.ID)
	if err != nil {
		return uuid.Nil, err
	}
	if session.TeamID.String() != claims.Subject || !s.now().Before(session.ExpiresAt) {
		return uuid.Nil, models.ErrSessionExpired
	}
	return session.TeamID, nil
}

func (s *teamService) parse(token string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid || claims.ID == "" {
		return nil, models.ErrSessionExpired
	}
	return claims, nil
}

// UpdateLocation обновляет базовую точку бригады
func (s *teamService) UpdateLocation(ctx context.Context, teamID uuid.UUID, lat, lng float64) error {
	if err := s.teams.UpdateLocation(ctx, teamID, lat, lng); err != nil {
		s.logger.WithError(err).WithField("team_id", teamID).Error("Failed to update team location")
		return fmt.Errorf("service: could not update team location: %w", err)
	}
	return nil
}

// ListDispatches возвращает выезды бригады
func (s *teamService) ListDispatches(ctx context.Context, teamID uuid.UUID) ([]*models.Dispatch, error) {
	dispatches, err := s.dispatches.ListByTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("service: could not list dispatches: %w", err)
	}
	return dispatches, nil
}

// GetDispatch возвращает выезд, если он принадлежит бригаде
func (s *teamService) GetDispatch(ctx context.Context, teamID, dispatchID uuid.UUID) (*models.Dispatch, error) {
	d, err := s.dispatches.GetByID(ctx, dispatchID)
	if err != nil {
		return nil, fmt.Errorf("service: could not get dispatch: %w", err)
	}
	if d.TeamID != teamID {
		s.logger.WithFields(logrus.Fields{
			"team_id":     teamID,
			"dispatch_id": dispatchID,
		}).Warn("Team requested a dispatch of another team")
		return nil, models.ErrForbidden
	}
	return d, nil
}

// UpdateIncidentStatus меняет статус инцидента из выезда бригады
func (s *teamService) UpdateIncidentStatus(ctx context.Context, teamID, dispatchID, incidentID uuid.UUID, status models.IncidentStatus) error {
	d, err := s.GetDispatch(ctx, teamID, dispatchID)
	if err != nil {
		return err
	}
	included := false
	for _, snap := range d.Incidents {
		if snap.ID == incidentID {
			included = true
			break
		}
	}
	if !included {
		return fmt.Errorf("service: incident %s is not part of dispatch %s: %w", incidentID, dispatchID, models.ErrForbidden)
	}
	return s.incidentSv.UpdateStatus(ctx, incidentID, status)
}
