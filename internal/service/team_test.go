package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/rescue_dispatch_system/internal/config"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/shenikar/rescue_dispatch_system/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"
)

type teamMocks struct {
	teams      *mocks.MockTeamRepository
	dispatches *mocks.MockDispatchRepository
	incidents  *mocks.MockIncidentRepository
	incidentSv *mocks.MockIncidentService
	sessions   *mocks.MockSessionStore
}

func newTestTeamService(t *testing.T) (*teamService, teamMocks) {
	ctrl := gomock.NewController(t)
	m := teamMocks{
		teams:      mocks.NewMockTeamRepository(ctrl),
		dispatches: mocks.NewMockDispatchRepository(ctrl),
		incidents:  mocks.NewMockIncidentRepository(ctrl),
		incidentSv: mocks.NewMockIncidentService(ctrl),
		sessions:   mocks.NewMockSessionStore(ctrl),
	}
	cfg := &config.Config{JWTSecret: "test-secret", SessionTTL: 12 * time.Hour}

	service := NewTeamService(m.teams, m.dispatches, m.incidents, m.incidentSv, m.sessions, testLogger(), cfg).(*teamService)
	service.now = func() time.Time { return testNow }
	return service, m
}

func teamWithPassword(t *testing.T, password string) *models.Team {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.Team{ID: uuid.New(), Name: "Alpha", PasswordHash: string(hash), Status: "ready"}
}

func TestCreateTeam_HashesPassword(t *testing.T) {
	service, m := newTestTeamService(t)
	ctx := context.Background()

	var stored *models.Team
	m.teams.EXPECT().
		Create(ctx, gomock.Any()).
		DoAndReturn(func(ctx context.Context, team *models.Team) error {
			team.ID = uuid.New()
			stored = team
			return nil
		}).Times(1)

	team, err := service.CreateTeam(ctx, models.NewTeam{Name: "  Alpha ", Contact: "+100", Password: "hunter2"})

	require.NoError(t, err)
	assert.Equal(t, "Alpha", team.Name)
	assert.Equal(t, "ready", team.Status)
	assert.NotEqual(t, "hunter2", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("hunter2")))
}

func TestCreateTeam_Duplicate(t *testing.T) {
	service, m := newTestTeamService(t)
	ctx := context.Background()

	m.teams.EXPECT().Create(ctx, gomock.Any()).Return(models.ErrTeamExists).Times(1)

	_, err := service.CreateTeam(ctx, models.NewTeam{Name: "Alpha", Password: "x"})

	assert.ErrorIs(t, err, models.ErrTeamExists)
}

func TestLogin_AuthenticateRoundTrip(t *testing.T) {
	// Подготовка
	service, m := newTestTeamService(t)
	ctx := context.Background()
	team := teamWithPassword(t, "hunter2")

	// Ожидания
	var session *models.TeamSession
	m.teams.EXPECT().GetByName(ctx, "Alpha").Return(team, nil).Times(1)
	m.sessions.EXPECT().
		Put(ctx, gomock.Any()).
		DoAndReturn(func(ctx context.Context, s *models.TeamSession) error {
			session = s
			return nil
		}).Times(1)
	m.sessions.EXPECT().
		Get(ctx, gomock.Any()).
		DoAndReturn(func(ctx context.Context, id string) (*models.TeamSession, error) {
			require.Equal(t, session.ID, id)
			return session, nil
		}).Times(1)

	// Действие
	result, err := service.Login(ctx, "Alpha", "hunter2")
	require.NoError(t, err)
	teamID, err := service.Authenticate(ctx, result.Token)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, team.ID, teamID)
	assert.Equal(t, testNow.Add(12*time.Hour), result.ExpiresAt)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	service, m := newTestTeamService(t)
	ctx := context.Background()
	team := teamWithPassword(t, "hunter2")

	m.teams.EXPECT().GetByName(ctx, "Alpha").Return(team, nil).Times(1)
	m.teams.EXPECT().GetByName(ctx, "Ghost").Return(nil, models.ErrNotFound).Times(1)

	_, err := service.Login(ctx, "Alpha", "wrong")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = service.Login(ctx, "Ghost", "hunter2")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestAuthenticate_RejectsGarbageAndRevokedSessions(t *testing.T) {
	service, m := newTestTeamService(t)
	ctx := context.Background()
	team := teamWithPassword(t, "hunter2")

	m.teams.EXPECT().GetByName(ctx, "Alpha").Return(team, nil).Times(1)
	m.sessions.EXPECT().Put(ctx, gomock.Any()).Return(nil).Times(1)
	m.sessions.EXPECT().Get(ctx, gomock.Any()).Return(nil, models.ErrSessionExpired).Times(1)

	_, err := service.Authenticate(ctx, "not-a-token")
	assert.ErrorIs(t, err, models.ErrSessionExpired)

	result, err := service.Login(ctx, "Alpha", "hunter2")
	require.NoError(t, err)
	_, err = service.Authenticate(ctx, result.Token)
	assert.ErrorIs(t, err, models.ErrSessionExpired)
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	service, m := newTestTeamService(t)
	ctx := context.Background()
	team := teamWithPassword(t, "hunter2")

	m.teams.EXPECT().GetByName(ctx, "Alpha").Return(team, nil).Times(1)
	m.sessions.EXPECT().Put(ctx, gomock.Any()).Return(nil).Times(1)

	result, err := service.Login(ctx, "Alpha", "hunter2")
	require.NoError(t, err)

	service.now = func() time.Time { return testNow.Add(13 * time.Hour) }
	_, err = service.Authenticate(ctx, result.Token)
	assert.ErrorIs(t, err, models.ErrSessionExpired)
}

func TestTeamLoads(t *testing.T) {
	service, m := newTestTeamService(t)
	ctx := context.Background()
	alpha := &models.Team{ID: uuid.New(), Name: "Alpha"}
	bravo := &models.Team{ID: uuid.New(), Name: "Bravo"}

	m.teams.EXPECT().List(ctx).Return([]*models.Team{alpha, bravo}, nil).Times(1)
	m.incidents.EXPECT().CountActiveByTeam(ctx).Return(map[uuid.UUID]int{alpha.ID: 3}, nil).Times(1)

	loads, err := service.TeamLoads(ctx)

	require.NoError(t, err)
	assert.Equal(t, []models.TeamLoad{{Team: alpha, Load: 3}, {Team: bravo, Load: 0}}, loads)
}

func TestGetDispatch_OtherTeamForbidden(t *testing.T) {
	service, m := newTestTeamService(t)
	ctx := context.Background()
	d := &models.Dispatch{ID: uuid.New(), TeamID: uuid.New()}

	m.dispatches.EXPECT().GetByID(ctx, d.ID).Return(d, nil).Times(1)

	_, err := service.GetDispatch(ctx, uuid.New(), d.ID)

	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestUpdateIncidentStatus(t *testing.T) {
	service, m := newTestTeamService(t)
	ctx := context.Background()
	teamID := uuid.New()
	incidentID := uuid.New()
	d := &models.Dispatch{
		ID:        uuid.New(),
		TeamID:    teamID,
		Incidents: []models.IncidentSnapshot{{ID: incidentID, Location: "Pier 4"}},
	}

	m.dispatches.EXPECT().GetByID(ctx, d.ID).Return(d, nil).Times(2)
	m.incidentSv.EXPECT().UpdateStatus(ctx, incidentID, models.StatusClosed).Return(nil).Times(1)

	require.NoError(t, service.UpdateIncidentStatus(ctx, teamID, d.ID, incidentID, models.StatusClosed))

	// Инцидент не входит в выезд
	err := service.UpdateIncidentStatus(ctx, teamID, d.ID, uuid.New(), models.StatusClosed)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestUpdateLocation_RepositoryError(t *testing.T) {
	service, m := newTestTeamService(t)
	ctx := context.Background()
	teamID := uuid.New()

	m.teams.EXPECT().UpdateLocation(ctx, teamID, 13.0, 74.0).Return(errors.New("db down")).Times(1)

	err := service.UpdateLocation(ctx, teamID, 13.0, 74.0)

	assert.ErrorContains(t, err, "could not update team location")
}
