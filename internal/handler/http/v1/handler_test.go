package v1

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shenikar/rescue_dispatch_system/internal/config"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/shenikar/rescue_dispatch_system/internal/service"
	"github.com/shenikar/rescue_dispatch_system/internal/service/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	testAPIKey    = "test-api-key"
	testTeamToken = "team-token"
)

var adminHeaders = map[string]string{"X-API-Key": testAPIKey}
var teamHeaders = map[string]string{"Authorization": "Bearer " + testTeamToken}

type handlerMocks struct {
	incidents  *mocks.MockIncidentService
	teams      *mocks.MockTeamService
	dispatches *mocks.MockDispatchService
}

// newTestHandler создает Handler с мокированными сервисами
func newTestHandler(t *testing.T) (handlerMocks, *gin.Engine) {
	ctrl := gomock.NewController(t)
	m := handlerMocks{
		incidents:  mocks.NewMockIncidentService(ctrl),
		teams:      mocks.NewMockTeamService(ctrl),
		dispatches: mocks.NewMockDispatchService(ctrl),
	}

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах

	cfg := &config.Config{APIKeys: []string{testAPIKey}}
	handler := NewHandler(m.incidents, m.teams, m.dispatches, logger, cfg)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	return m, router
}

// makeRequest - вспомогательная функция для выполнения HTTP-запросов
func makeRequest(router *gin.Engine, method, url string, body io.Reader, headers ...map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, h := range headers {
		for key, value := range h {
			req.Header.Set(key, value)
		}
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, v any) io.Reader {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(data)
}

func expectTeamAuth(m handlerMocks, teamID uuid.UUID) {
	m.teams.EXPECT().Authenticate(gomock.Any(), testTeamToken).Return(teamID, nil).Times(1)
}

func TestSubmitReport_Success(t *testing.T) {
	m, router := newTestHandler(t)
	lat, lng := 13.01, 74.79
	reqBody := SubmitReportRequest{Location: "Harbour", Description: "Boat capsized", Latitude: &lat, Longitude: &lng}
	incident := &models.Incident{
		ID:          uuid.New(),
		Location:    reqBody.Location,
		Description: reqBody.Description,
		Latitude:    &lat,
		Longitude:   &lng,
		Status:      models.StatusNew,
		Analysis:    models.Analysis{Severity: models.SeverityCritical, IncidentType: models.TypeFlood},
		CreatedAt:   time.Now(),
	}

	m.incidents.EXPECT().
		SubmitReport(gomock.Any(), DTOToReport(reqBody)).
		Return(incident, nil).Times(1)

	w := makeRequest(router, http.MethodPost, "/api/v1/reports", jsonBody(t, reqBody))

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp IncidentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, incident.ID, resp.ID)
	assert.Equal(t, "new", resp.Status)
	assert.Equal(t, models.SeverityCritical, resp.Analysis.Severity)
}

func TestSubmitReport_InvalidJSON(t *testing.T) {
	m, router := newTestHandler(t)

	m.incidents.EXPECT().SubmitReport(gomock.Any(), gomock.Any()).Times(0) // Сервис не должен вызываться

	w := makeRequest(router, http.MethodPost, "/api/v1/reports", bytes.NewBufferString(`{"location": "x"`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestSubmitReport_ValidationError(t *testing.T) {
	m, router := newTestHandler(t)
	badLat := 120.0

	m.incidents.EXPECT().SubmitReport(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, http.MethodPost, "/api/v1/reports", jsonBody(t, SubmitReportRequest{Location: "Harbour", Description: "flood", Latitude: &badLat}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListIncidents_RequiresAPIKey(t *testing.T) {
	_, router := newTestHandler(t)

	w := makeRequest(router, http.MethodGet, "/api/v1/incidents", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = makeRequest(router, http.MethodGet, "/api/v1/incidents", nil, map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListIncidents_Filters(t *testing.T) {
	m, router := newTestHandler(t)
	filter := models.IncidentFilter{
		Statuses: []models.IncidentStatus{models.StatusNew, models.StatusClosed},
		Query:    "pier",
	}

	m.incidents.EXPECT().ListIncidents(gomock.Any(), filter).Return([]*models.Incident{{ID: uuid.New()}}, nil).Times(1)

	w := makeRequest(router, http.MethodGet, "/api/v1/incidents?status=new,closed&q=pier", nil, adminHeaders)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp []IncidentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp, 1)
}

func TestListIncidents_InvalidStatus(t *testing.T) {
	m, router := newTestHandler(t)

	m.incidents.EXPECT().ListIncidents(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, http.MethodGet, "/api/v1/incidents?status=resolved", nil, adminHeaders)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetIncident_NotFound(t *testing.T) {
	m, router := newTestHandler(t)
	id := uuid.New()

	m.incidents.EXPECT().GetIncident(gomock.Any(), id).Return(nil, fmt.Errorf("service: %w", models.ErrNotFound)).Times(1)

	w := makeRequest(router, http.MethodGet, "/api/v1/incidents/"+id.String(), nil, adminHeaders)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetIncident_InvalidID(t *testing.T) {
	_, router := newTestHandler(t)

	w := makeRequest(router, http.MethodGet, "/api/v1/incidents/not-a-uuid", nil, adminHeaders)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid incident ID")
}

func TestUpdateIncidentStatus_Closed(t *testing.T) {
	m, router := newTestHandler(t)
	id := uuid.New()

	m.incidents.EXPECT().UpdateStatus(gomock.Any(), id, models.StatusNew).Return(models.ErrIncidentClosed).Times(1)

	w := makeRequest(router, http.MethodPut, "/api/v1/incidents/"+id.String()+"/status", jsonBody(t, UpdateStatusRequest{Status: "new"}), adminHeaders)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGenerateActionPlan(t *testing.T) {
	m, router := newTestHandler(t)
	id := uuid.New()

	m.incidents.EXPECT().GenerateActionPlan(gomock.Any(), id).Return(&models.ActionPlan{IncidentID: id, Text: "plan", Fallback: true}, nil).Times(1)

	w := makeRequest(router, http.MethodPost, "/api/v1/incidents/"+id.String()+"/plan", nil, adminHeaders)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp ActionPlanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Fallback)
	assert.Equal(t, "plan", resp.Plan)
}

func TestCreateTeam_Conflict(t *testing.T) {
	m, router := newTestHandler(t)

	m.teams.EXPECT().CreateTeam(gomock.Any(), gomock.Any()).Return(nil, models.ErrTeamExists).Times(1)

	w := makeRequest(router, http.MethodPost, "/api/v1/teams", jsonBody(t, CreateTeamRequest{Name: "Alpha", Password: "secret1"}), adminHeaders)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListTeams_HidesPasswordHash(t *testing.T) {
	m, router := newTestHandler(t)
	team := &models.Team{ID: uuid.New(), Name: "Alpha", PasswordHash: "$2a$10$secret", Status: "ready"}

	m.teams.EXPECT().ListTeams(gomock.Any()).Return([]*models.Team{team}, nil).Times(1)

	w := makeRequest(router, http.MethodGet, "/api/v1/teams", nil, adminHeaders)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
	assert.Contains(t, w.Body.String(), "Alpha")
}

func TestAllocateBatch_Success(t *testing.T) {
	m, router := newTestHandler(t)
	incidentID, teamID := uuid.New(), uuid.New()
	result := &models.BatchResult{
		Dispatches: []models.TeamDispatch{{
			TeamID:      teamID,
			TeamName:    "Alpha",
			Dispatch:    &models.Dispatch{ID: uuid.New(), TeamID: teamID, Status: models.DispatchAssigned},
			IncidentIDs: []uuid.UUID{incidentID},
			Failures:    []string{},
		}},
		Loads: map[uuid.UUID]int{teamID: 1},
	}

	m.dispatches.EXPECT().
		AllocateBatch(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.BatchRequest) (*models.BatchResult, error) {
			assert.Equal(t, []uuid.UUID{incidentID}, req.IncidentIDs)
			assert.Equal(t, "operator", req.CreatedBy)
			require.NotNil(t, req.Weights)
			require.NotNil(t, req.Weights.Severity)
			assert.Equal(t, 2.0, *req.Weights.Severity)
			// пропущенные веса не должны превращаться в нули
			assert.Nil(t, req.Weights.Distance)
			assert.Nil(t, req.Weights.Load)
			return result, nil
		}).Times(1)

	body := strings.NewReader(`{"incident_ids":["` + incidentID.String() + `"],"weights":{"severity":2}}`)
	w := makeRequest(router, http.MethodPost, "/api/v1/dispatches", body, adminHeaders)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp BatchDispatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Dispatches, 1)
	assert.Equal(t, 1, resp.Loads[teamID.String()])
	assert.NotNil(t, resp.Warnings)
}

func TestAllocateBatch_NoEligible(t *testing.T) {
	m, router := newTestHandler(t)

	m.dispatches.EXPECT().AllocateBatch(gomock.Any(), gomock.Any()).Return(nil, models.ErrNoEligibleIncidents).Times(1)

	w := makeRequest(router, http.MethodPost, "/api/v1/dispatches", jsonBody(t, BatchDispatchRequest{}), adminHeaders)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "no eligible incidents")
}

func TestAllocateBatch_InvalidIncidentID(t *testing.T) {
	m, router := newTestHandler(t)

	m.dispatches.EXPECT().AllocateBatch(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, http.MethodPost, "/api/v1/dispatches", jsonBody(t, BatchDispatchRequest{IncidentIDs: []string{"nope"}}), adminHeaders)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScoreAssignment(t *testing.T) {
	m, router := newTestHandler(t)
	incidentID, teamID := uuid.New(), uuid.New()

	m.dispatches.EXPECT().
		Score(gomock.Any(), incidentID, teamID, (*models.WeightsOverride)(nil)).
		Return(&models.AssignmentScore{IncidentID: incidentID, TeamID: teamID, Score: 0.75, DistanceKm: 3.2, Load: 2}, nil).Times(1)

	w := makeRequest(router, http.MethodPost, "/api/v1/dispatches/score", jsonBody(t, ScoreRequest{IncidentID: incidentID.String(), TeamID: teamID.String()}), adminHeaders)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp ScoreResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0.75, resp.Score)
	assert.Equal(t, 2, resp.Load)
}

func TestScoreAssignment_NegativeWeight(t *testing.T) {
	m, router := newTestHandler(t)

	m.dispatches.EXPECT().Score(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	body := strings.NewReader(`{"incident_id":"` + uuid.NewString() + `","team_id":"` + uuid.NewString() + `","weights":{"load":-1}}`)
	w := makeRequest(router, http.MethodPost, "/api/v1/dispatches/score", body, adminHeaders)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTeamLogin(t *testing.T) {
	m, router := newTestHandler(t)
	team := &models.Team{ID: uuid.New(), Name: "Alpha"}

	m.teams.EXPECT().Login(gomock.Any(), "Alpha", "hunter2").Return(&models.LoginResult{Token: "tok", Team: team}, nil).Times(1)
	m.teams.EXPECT().Login(gomock.Any(), "Alpha", "wrong").Return(nil, models.ErrInvalidCredentials).Times(1)

	w := makeRequest(router, http.MethodPost, "/api/v1/team/login", jsonBody(t, LoginRequest{Name: "Alpha", Password: "hunter2"}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"token":"tok"`)

	w = makeRequest(router, http.MethodPost, "/api/v1/team/login", jsonBody(t, LoginRequest{Name: "Alpha", Password: "wrong"}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTeamRoutes_RequireSession(t *testing.T) {
	m, router := newTestHandler(t)

	m.teams.EXPECT().Authenticate(gomock.Any(), "expired").Return(uuid.Nil, models.ErrSessionExpired).Times(1)

	w := makeRequest(router, http.MethodGet, "/api/v1/team/dispatches", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = makeRequest(router, http.MethodGet, "/api/v1/team/dispatches", nil, map[string]string{"Authorization": "Bearer expired"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTeamDispatch_Forbidden(t *testing.T) {
	m, router := newTestHandler(t)
	teamID, dispatchID := uuid.New(), uuid.New()

	expectTeamAuth(m, teamID)
	m.teams.EXPECT().GetDispatch(gomock.Any(), teamID, dispatchID).Return(nil, models.ErrForbidden).Times(1)

	w := makeRequest(router, http.MethodGet, "/api/v1/team/dispatches/"+dispatchID.String(), nil, teamHeaders)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTeamIncidentStatus(t *testing.T) {
	m, router := newTestHandler(t)
	teamID, dispatchID, incidentID := uuid.New(), uuid.New(), uuid.New()

	expectTeamAuth(m, teamID)
	m.teams.EXPECT().UpdateIncidentStatus(gomock.Any(), teamID, dispatchID, incidentID, models.StatusClosed).Return(nil).Times(1)

	body := TeamIncidentStatusRequest{DispatchID: dispatchID.String(), IncidentID: incidentID.String(), Status: "closed"}
	w := makeRequest(router, http.MethodPost, "/api/v1/team/incident-status", jsonBody(t, body), teamHeaders)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestTeamLocation_Defaults(t *testing.T) {
	m, router := newTestHandler(t)
	teamID := uuid.New()

	expectTeamAuth(m, teamID)
	m.teams.EXPECT().UpdateLocation(gomock.Any(), teamID, service.DefaultBaseLat, service.DefaultBaseLng).Return(nil).Times(1)

	w := makeRequest(router, http.MethodPost, "/api/v1/team/location", bytes.NewBufferString(`{}`), teamHeaders)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTeamLogout(t *testing.T) {
	m, router := newTestHandler(t)

	expectTeamAuth(m, uuid.New())
	m.teams.EXPECT().Logout(gomock.Any(), testTeamToken).Return(nil).Times(1)

	w := makeRequest(router, http.MethodPost, "/api/v1/team/logout", nil, teamHeaders)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHealthCheck(t *testing.T) {
	_, router := newTestHandler(t)

	w := makeRequest(router, http.MethodGet, "/api/v1/system/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
