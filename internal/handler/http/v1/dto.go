package v1

import (
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
)

// SubmitReportRequest DTO для подачи обращения
// @Description DTO для подачи обращения
type SubmitReportRequest struct {
	Location      string   `json:"location" validate:"required,min=2,max=255"`
	Description   string   `json:"description" validate:"required,min=3,max=4000"`
	Latitude      *float64 `json:"lat,omitempty" validate:"omitempty,latitude"`
	Longitude     *float64 `json:"lng,omitempty" validate:"omitempty,longitude"`
	ReporterName  string   `json:"reporter_name,omitempty" validate:"max=255"`
	ReporterPhone string   `json:"reporter_phone,omitempty" validate:"max=64"`
}

// IncidentResponse DTO для ответа с информацией об инциденте
// @Description DTO для ответа с информацией об инциденте
type IncidentResponse struct {
	ID            uuid.UUID       `json:"id"`
	Location      string          `json:"location"`
	Latitude      *float64        `json:"lat,omitempty"`
	Longitude     *float64        `json:"lng,omitempty"`
	Description   string          `json:"description"`
	ReporterName  string          `json:"reporter_name,omitempty"`
	ReporterPhone string          `json:"reporter_phone,omitempty"`
	Status        string          `json:"status"`
	DispatchID    *uuid.UUID      `json:"dispatch_id,omitempty"`
	AssignedTeam  *uuid.UUID      `json:"assigned_team,omitempty"`
	DispatchedAt  *time.Time      `json:"dispatched_at,omitempty"`
	Analysis      models.Analysis `json:"analysis"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// UpdateStatusRequest DTO для смены статуса инцидента оператором
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=new rescue_dispatched closed"`
}

// ActionPlanResponse DTO с планом действий по инциденту
type ActionPlanResponse struct {
	IncidentID uuid.UUID `json:"incident_id"`
	Plan       string    `json:"plan"`
	Fallback   bool      `json:"fallback"`
}

// CreateTeamRequest DTO для регистрации бригады
// @Description DTO для регистрации бригады
type CreateTeamRequest struct {
	Name     string   `json:"name" validate:"required,min=2,max=128"`
	Contact  string   `json:"contact,omitempty" validate:"max=255"`
	Password string   `json:"password" validate:"required,min=6,max=72"`
	BaseLat  *float64 `json:"base_lat,omitempty" validate:"omitempty,latitude"`
	BaseLng  *float64 `json:"base_lng,omitempty" validate:"omitempty,longitude"`
	Status   string   `json:"status,omitempty" validate:"omitempty,max=32"`
}

// TeamResponse DTO бригады, хэш пароля не отдается
type TeamResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	BaseLat   *float64  `json:"base_lat,omitempty"`
	BaseLng   *float64  `json:"base_lng,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// TeamLoadResponse DTO загрузки бригады
type TeamLoadResponse struct {
	TeamResponse
	ActiveIncidents int `json:"active_incidents"`
}

// LoginRequest DTO для входа бригады
type LoginRequest struct {
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse DTO с токеном сессии
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	Team      TeamResponse `json:"team"`
}

// UpdateLocationRequest DTO для обновления базовой точки бригады.
// Незаданные координаты заменяются значениями по умолчанию.
type UpdateLocationRequest struct {
	Latitude  *float64 `json:"lat,omitempty" validate:"omitempty,latitude"`
	Longitude *float64 `json:"lng,omitempty" validate:"omitempty,longitude"`
}

// TeamIncidentStatusRequest DTO для смены статуса инцидента бригадой
type TeamIncidentStatusRequest struct {
	DispatchID string `json:"dispatch_id" validate:"required,uuid"`
	IncidentID string `json:"incident_id" validate:"required,uuid"`
	Status     string `json:"status" validate:"required,oneof=new rescue_dispatched closed"`
}

// WeightsRequest - переопределение весов оценки, пропущенные веса остаются по умолчанию
type WeightsRequest struct {
	Severity *float64 `json:"severity,omitempty" validate:"omitempty,gte=0"`
	Distance *float64 `json:"distance,omitempty" validate:"omitempty,gte=0"`
	Load     *float64 `json:"load,omitempty" validate:"omitempty,gte=0"`
}

// BatchDispatchRequest DTO для пакетного распределения
// @Description Пустой incident_ids - все новые инциденты, пустой team_ids - все бригады
type BatchDispatchRequest struct {
	IncidentIDs []string        `json:"incident_ids,omitempty" validate:"omitempty,dive,uuid"`
	TeamIDs     []string        `json:"team_ids,omitempty" validate:"omitempty,dive,uuid"`
	CreatedBy   string          `json:"created_by,omitempty" validate:"max=128"`
	Weights     *WeightsRequest `json:"weights,omitempty"`
}

// DispatchResponse DTO записи выезда
type DispatchResponse struct {
	ID        uuid.UUID                 `json:"id"`
	TeamID    uuid.UUID                 `json:"team_id"`
	CreatedBy string                    `json:"created_by"`
	Status    string                    `json:"status"`
	PlanText  string                    `json:"plan_text"`
	Plan      models.Plan               `json:"plan"`
	Incidents []models.IncidentSnapshot `json:"incidents"`
	CreatedAt time.Time                 `json:"created_at"`
}

// TeamDispatchResponse DTO итога по бригаде
type TeamDispatchResponse struct {
	TeamID       uuid.UUID         `json:"team_id"`
	TeamName     string            `json:"team_name"`
	Dispatch     *DispatchResponse `json:"dispatch,omitempty"`
	IncidentIDs  []uuid.UUID       `json:"incident_ids"`
	PlanFallback bool              `json:"plan_fallback"`
	Failures     []string          `json:"failures"`
}

// BatchDispatchResponse DTO итога пакетного распределения
type BatchDispatchResponse struct {
	Dispatches []TeamDispatchResponse `json:"dispatches"`
	Loads      map[string]int         `json:"loads"`
	Warnings   []string               `json:"warnings"`
}

// ScoreRequest DTO для оценки пары инцидент/бригада
type ScoreRequest struct {
	IncidentID string          `json:"incident_id" validate:"required,uuid"`
	TeamID     string          `json:"team_id" validate:"required,uuid"`
	Weights    *WeightsRequest `json:"weights,omitempty"`
}

// ScoreResponse DTO оценки
type ScoreResponse struct {
	IncidentID uuid.UUID `json:"incident_id"`
	TeamID     uuid.UUID `json:"team_id"`
	Score      float64   `json:"score"`
	DistanceKm float64   `json:"distance_km"`
	Load       int       `json:"load"`
}
