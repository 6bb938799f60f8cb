package v1

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shenikar/rescue_dispatch_system/internal/config"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/shenikar/rescue_dispatch_system/internal/service"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	incidentService service.IncidentService
	teamService     service.TeamService
	dispatchService service.DispatchService
	logger          *logrus.Logger
	validate        *validator.Validate
	cfg             *config.Config
}

func NewHandler(incidentService service.IncidentService, teamService service.TeamService, dispatchService service.DispatchService, logger *logrus.Logger, cfg *config.Config) *Handler {
	return &Handler{
		incidentService: incidentService,
		teamService:     teamService,
		dispatchService: dispatchService,
		logger:          logger,
		validate:        validator.New(),
		cfg:             cfg,
	}
}

// bindAndValidate разбирает тело запроса и проверяет его. При ошибке ответ уже записан.
func (h *Handler) bindAndValidate(c *gin.Context, log *logrus.Entry, input any) bool {
	if err := c.ShouldBindJSON(input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// writeError отображает доменные ошибки на коды HTTP
func (h *Handler) writeError(c *gin.Context, log *logrus.Entry, err error) {
	status, msg := http.StatusInternalServerError, "internal server error"
	switch {
	case errors.Is(err, models.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, models.ErrInvalidStatus):
		status, msg = http.StatusBadRequest, "invalid status"
	case errors.Is(err, models.ErrIncidentClosed):
		status, msg = http.StatusConflict, "incident is closed"
	case errors.Is(err, models.ErrTeamExists):
		status, msg = http.StatusConflict, "team already exists"
	case errors.Is(err, models.ErrNoEligibleIncidents):
		status, msg = http.StatusConflict, "no eligible incidents"
	case errors.Is(err, models.ErrNoEligibleTeams):
		status, msg = http.StatusConflict, "no eligible teams"
	case errors.Is(err, models.ErrInvalidCredentials):
		status, msg = http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, models.ErrSessionExpired):
		status, msg = http.StatusUnauthorized, "invalid or expired session"
	case errors.Is(err, models.ErrForbidden):
		status, msg = http.StatusForbidden, "forbidden"
	}

	if status == http.StatusInternalServerError {
		log.WithError(err).Error("Request failed")
	} else {
		log.WithError(err).Warn("Request rejected")
	}
	c.JSON(status, gin.H{"error": msg})
}

func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + " ID"})
		return uuid.Nil, false
	}
	return id, true
}

// @Summary Submit an emergency report
// @Description Triage a citizen report and store it as a new incident. Always returns an analysis, possibly degraded.
// @Tags Reports
// @Accept json
// @Produce json
// @Param report body SubmitReportRequest true "Report"
// @Success 201 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /reports [post]
func (h *Handler) submitReport(c *gin.Context) {
	var input SubmitReportRequest
	log := h.logger.WithField("method", "submitReport")
	if !h.bindAndValidate(c, log, &input) {
		return
	}

	incident, err := h.incidentService.SubmitReport(c.Request.Context(), DTOToReport(input))
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusCreated, ModelToIncidentResponse(incident))
}

// @Summary Get a list of incidents
// @Description List incidents, newest first. Stale dispatches are closed before listing. Requires API key.
// @Tags Incidents
// @Produce json
// @Security ApiKeyAuth
// @Param status query string false "Comma-separated statuses: new,rescue_dispatched,closed"
// @Param q query string false "Substring of location, description or summary"
// @Success 200 {array} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid status filter"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents [get]
func (h *Handler) listIncidents(c *gin.Context) {
	log := h.logger.WithField("method", "listIncidents")

	filter := models.IncidentFilter{Query: strings.TrimSpace(c.Query("q"))}
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := models.IncidentStatus(strings.TrimSpace(part))
			if !status.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	incidents, err := h.incidentService.ListIncidents(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelsToIncidentResponses(incidents))
}

// @Summary Get incident by ID
// @Description Get a single incident by its ID. Requires API key.
// @Tags Incidents
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Incident not found"
// @Router /incidents/{id} [get]
func (h *Handler) getIncident(c *gin.Context) {
	id, ok := parseID(c, "incident")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "getIncident").WithField("id", id)

	incident, err := h.incidentService.GetIncident(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Update incident status
// @Description Move an incident to another status. closed is terminal. Requires API key.
// @Tags Incidents
// @Accept json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Param status body UpdateStatusRequest true "New status"
// @Success 204 "No Content"
// @Failure 400 {object} map[string]string "Invalid incident ID or status"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 409 {object} map[string]string "Incident is closed"
// @Router /incidents/{id}/status [put]
func (h *Handler) updateIncidentStatus(c *gin.Context) {
	id, ok := parseID(c, "incident")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "updateIncidentStatus").WithField("id", id)

	var input UpdateStatusRequest
	if !h.bindAndValidate(c, log, &input) {
		return
	}

	if err := h.incidentService.UpdateStatus(c.Request.Context(), id, models.IncidentStatus(input.Status)); err != nil {
		h.writeError(c, log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Generate an action plan for an incident
// @Description Ask the planning service for a step-by-step plan; a local plan is returned when it is unavailable. Requires API key.
// @Tags Incidents
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} ActionPlanResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 404 {object} map[string]string "Incident not found"
// @Router /incidents/{id}/plan [post]
func (h *Handler) generateActionPlan(c *gin.Context) {
	id, ok := parseID(c, "incident")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "generateActionPlan").WithField("id", id)

	plan, err := h.incidentService.GenerateActionPlan(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ActionPlanResponse{IncidentID: plan.IncidentID, Plan: plan.Text, Fallback: plan.Fallback})
}

// @Summary Register a rescue team
// @Description Create a team with a bcrypt-hashed password. Requires API key.
// @Tags Teams
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param team body CreateTeamRequest true "Team"
// @Success 201 {object} TeamResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 409 {object} map[string]string "Team already exists"
// @Router /teams [post]
func (h *Handler) createTeam(c *gin.Context) {
	var input CreateTeamRequest
	log := h.logger.WithField("method", "createTeam")
	if !h.bindAndValidate(c, log, &input) {
		return
	}

	team, err := h.teamService.CreateTeam(c.Request.Context(), DTOToNewTeam(input))
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusCreated, ModelToTeamResponse(team))
}

// @Summary List rescue teams
// @Tags Teams
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {array} TeamResponse
// @Router /teams [get]
func (h *Handler) listTeams(c *gin.Context) {
	log := h.logger.WithField("method", "listTeams")

	teams, err := h.teamService.ListTeams(c.Request.Context())
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	resp := make([]TeamResponse, len(teams))
	for i, t := range teams {
		resp[i] = ModelToTeamResponse(t)
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Current team loads
// @Description Number of open incidents assigned to each team. Requires API key.
// @Tags Teams
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {array} TeamLoadResponse
// @Router /teams/loads [get]
func (h *Handler) teamLoads(c *gin.Context) {
	log := h.logger.WithField("method", "teamLoads")

	loads, err := h.teamService.TeamLoads(c.Request.Context())
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	resp := make([]TeamLoadResponse, len(loads))
	for i, l := range loads {
		resp[i] = TeamLoadResponse{TeamResponse: ModelToTeamResponse(l.Team), ActiveIncidents: l.Load}
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Allocate incidents to teams
// @Description Greedy batch allocation: one dispatch per team, incidents move to rescue_dispatched. Partial failures are listed in the response. Requires API key.
// @Tags Dispatches
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body BatchDispatchRequest true "Batch"
// @Success 201 {object} BatchDispatchResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 409 {object} map[string]string "No eligible incidents or teams"
// @Router /dispatches [post]
func (h *Handler) allocateBatch(c *gin.Context) {
	var input BatchDispatchRequest
	log := h.logger.WithField("method", "allocateBatch")
	if !h.bindAndValidate(c, log, &input) {
		return
	}

	createdBy := input.CreatedBy
	if createdBy == "" {
		createdBy = "operator"
	}
	req := models.BatchRequest{
		IncidentIDs: parseUUIDs(input.IncidentIDs),
		TeamIDs:     parseUUIDs(input.TeamIDs),
		CreatedBy:   createdBy,
		Weights:     weightsFromDTO(input.Weights),
	}

	result, err := h.dispatchService.AllocateBatch(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusCreated, ModelToBatchResponse(result))
}

// @Summary Score an incident/team pair
// @Tags Dispatches
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body ScoreRequest true "Pair"
// @Success 200 {object} ScoreResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 404 {object} map[string]string "Incident or team not found"
// @Router /dispatches/score [post]
func (h *Handler) scoreAssignment(c *gin.Context) {
	var input ScoreRequest
	log := h.logger.WithField("method", "scoreAssignment")
	if !h.bindAndValidate(c, log, &input) {
		return
	}

	incidentID, _ := uuid.Parse(input.IncidentID)
	teamID, _ := uuid.Parse(input.TeamID)
	score, err := h.dispatchService.Score(c.Request.Context(), incidentID, teamID, weightsFromDTO(input.Weights))
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ScoreResponse{
		IncidentID: score.IncidentID,
		TeamID:     score.TeamID,
		Score:      score.Score,
		DistanceKm: score.DistanceKm,
		Load:       score.Load,
	})
}

// @Summary Team login
// @Tags Team
// @Accept json
// @Produce json
// @Param credentials body LoginRequest true "Credentials"
// @Success 200 {object} LoginResponse
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Router /team/login [post]
func (h *Handler) teamLogin(c *gin.Context) {
	var input LoginRequest
	log := h.logger.WithField("method", "teamLogin")
	if !h.bindAndValidate(c, log, &input) {
		return
	}

	result, err := h.teamService.Login(c.Request.Context(), input.Name, input.Password)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, LoginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		Team:      ModelToTeamResponse(result.Team),
	})
}

// @Summary Team logout
// @Tags Team
// @Security TeamAuth
// @Success 204 "No Content"
// @Router /team/logout [post]
func (h *Handler) teamLogout(c *gin.Context) {
	log := h.logger.WithField("method", "teamLogout")

	if err := h.teamService.Logout(c.Request.Context(), bearerToken(c)); err != nil {
		h.writeError(c, log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Dispatches of the current team
// @Tags Team
// @Produce json
// @Security TeamAuth
// @Success 200 {array} DispatchResponse
// @Router /team/dispatches [get]
func (h *Handler) teamDispatches(c *gin.Context) {
	teamID := currentTeam(c)
	log := h.logger.WithField("method", "teamDispatches").WithField("team_id", teamID)

	list, err := h.teamService.ListDispatches(c.Request.Context(), teamID)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelsToDispatchResponses(list))
}

// @Summary Dispatch of the current team
// @Tags Team
// @Produce json
// @Security TeamAuth
// @Param id path string true "Dispatch ID"
// @Success 200 {object} DispatchResponse
// @Failure 403 {object} map[string]string "Dispatch belongs to another team"
// @Failure 404 {object} map[string]string "Dispatch not found"
// @Router /team/dispatches/{id} [get]
func (h *Handler) teamDispatch(c *gin.Context) {
	id, ok := parseID(c, "dispatch")
	if !ok {
		return
	}
	teamID := currentTeam(c)
	log := h.logger.WithField("method", "teamDispatch").WithField("team_id", teamID)

	d, err := h.teamService.GetDispatch(c.Request.Context(), teamID, id)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToDispatchResponse(d))
}

// @Summary Update status of an incident from a team dispatch
// @Tags Team
// @Accept json
// @Security TeamAuth
// @Param request body TeamIncidentStatusRequest true "Status change"
// @Success 204 "No Content"
// @Failure 403 {object} map[string]string "Incident is not part of the team dispatch"
// @Failure 409 {object} map[string]string "Incident is closed"
// @Router /team/incident-status [post]
func (h *Handler) teamIncidentStatus(c *gin.Context) {
	var input TeamIncidentStatusRequest
	teamID := currentTeam(c)
	log := h.logger.WithField("method", "teamIncidentStatus").WithField("team_id", teamID)
	if !h.bindAndValidate(c, log, &input) {
		return
	}

	dispatchID, _ := uuid.Parse(input.DispatchID)
	incidentID, _ := uuid.Parse(input.IncidentID)
	err := h.teamService.UpdateIncidentStatus(c.Request.Context(), teamID, dispatchID, incidentID, models.IncidentStatus(input.Status))
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Update team base location
// @Description Omitted coordinates fall back to the default base point.
// @Tags Team
// @Accept json
// @Produce json
// @Security TeamAuth
// @Param location body UpdateLocationRequest true "Location"
// @Success 200 {object} map[string]float64
// @Router /team/location [post]
func (h *Handler) teamLocation(c *gin.Context) {
	var input UpdateLocationRequest
	teamID := currentTeam(c)
	log := h.logger.WithField("method", "teamLocation").WithField("team_id", teamID)
	if !h.bindAndValidate(c, log, &input) {
		return
	}

	lat, lng := service.DefaultBaseLat, service.DefaultBaseLng
	if input.Latitude != nil {
		lat = *input.Latitude
	}
	if input.Longitude != nil {
		lng = *input.Longitude
	}

	if err := h.teamService.UpdateLocation(c.Request.Context(), teamID, lat, lng); err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lat": lat, "lng": lng})
}

// @Summary Get application health status
// @Description Get health status of the application
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string "Status OK"
// @Router /system/health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
