package v1

import (
	"github.com/google/uuid"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
)

// DTOToReport преобразует DTO обращения в доменную модель
func DTOToReport(dto SubmitReportRequest) models.Report {
	return models.Report{
		Location:      dto.Location,
		Description:   dto.Description,
		Latitude:      dto.Latitude,
		Longitude:     dto.Longitude,
		ReporterName:  dto.ReporterName,
		ReporterPhone: dto.ReporterPhone,
	}
}

// ModelToIncidentResponse преобразует доменную модель в DTO для ответа
func ModelToIncidentResponse(model *models.Incident) *IncidentResponse {
	return &IncidentResponse{
		ID:            model.ID,
		Location:      model.Location,
		Latitude:      model.Latitude,
		Longitude:     model.Longitude,
		Description:   model.Description,
		ReporterName:  model.ReporterName,
		ReporterPhone: model.ReporterPhone,
		Status:        string(model.Status),
		DispatchID:    model.DispatchID,
		AssignedTeam:  model.AssignedTeam,
		DispatchedAt:  model.DispatchedAt,
		Analysis:      model.Analysis,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
}

// ModelsToIncidentResponses преобразует слайс моделей в слайс DTO
func ModelsToIncidentResponses(models []*models.Incident) []*IncidentResponse {
	responses := make([]*IncidentResponse, len(models))
	for i, model := range models {
		responses[i] = ModelToIncidentResponse(model)
	}
	return responses
}

func DTOToNewTeam(dto CreateTeamRequest) models.NewTeam {
	return models.NewTeam{
		Name:     dto.Name,
		Contact:  dto.Contact,
		Password: dto.Password,
		BaseLat:  dto.BaseLat,
		BaseLng:  dto.BaseLng,
		Status:   dto.Status,
	}
}

func ModelToTeamResponse(team *models.Team) TeamResponse {
	return TeamResponse{
		ID:        team.ID,
		Name:      team.Name,
		Contact:   team.Contact,
		BaseLat:   team.BaseLat,
		BaseLng:   team.BaseLng,
		Status:    team.Status,
		CreatedAt: team.CreatedAt,
	}
}

func ModelToDispatchResponse(d *models.Dispatch) *DispatchResponse {
	return &DispatchResponse{
		ID:        d.ID,
		TeamID:    d.TeamID,
		CreatedBy: d.CreatedBy,
		Status:    string(d.Status),
		PlanText:  d.PlanText,
		Plan:      d.Plan,
		Incidents: d.Incidents,
		CreatedAt: d.CreatedAt,
	}
}

func ModelsToDispatchResponses(list []*models.Dispatch) []*DispatchResponse {
	responses := make([]*DispatchResponse, len(list))
	for i, d := range list {
		responses[i] = ModelToDispatchResponse(d)
	}
	return responses
}

// ModelToBatchResponse преобразует итог распределения; ключи загрузки - строковые id бригад
func ModelToBatchResponse(result *models.BatchResult) BatchDispatchResponse {
	resp := BatchDispatchResponse{
		Dispatches: make([]TeamDispatchResponse, 0, len(result.Dispatches)),
		Loads:      make(map[string]int, len(result.Loads)),
		Warnings:   result.Warnings,
	}
	for _, td := range result.Dispatches {
		item := TeamDispatchResponse{
			TeamID:       td.TeamID,
			TeamName:     td.TeamName,
			IncidentIDs:  td.IncidentIDs,
			PlanFallback: td.PlanFallback,
			Failures:     td.Failures,
		}
		if td.Dispatch != nil {
			item.Dispatch = ModelToDispatchResponse(td.Dispatch)
		}
		resp.Dispatches = append(resp.Dispatches, item)
	}
	for id, load := range result.Loads {
		resp.Loads[id.String()] = load
	}
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}
	return resp
}

func weightsFromDTO(w *WeightsRequest) *models.WeightsOverride {
	if w == nil {
		return nil
	}
	return &models.WeightsOverride{Severity: w.Severity, Distance: w.Distance, Load: w.Load}
}

// parseUUIDs разбирает уже провалидированный список id
func parseUUIDs(raw []string) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		if id, err := uuid.Parse(s); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
