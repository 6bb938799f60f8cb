package models

import (
	"time"

	"github.com/google/uuid"
)

// DispatchStatus - статус выезда, отслеживается вне записи
type DispatchStatus string

const (
	DispatchAssigned   DispatchStatus = "assigned"
	DispatchInProgress DispatchStatus = "in_progress"
	DispatchCompleted  DispatchStatus = "completed"
)

// IncidentSnapshot - состояние инцидента на момент создания выезда
type IncidentSnapshot struct {
	ID        uuid.UUID `json:"id"`
	Location  string    `json:"location"`
	Latitude  *float64  `json:"lat,omitempty"`
	Longitude *float64  `json:"lng,omitempty"`
	Severity  Severity  `json:"severity"`
}

// RouteStop - точка маршрута в плане
type RouteStop struct {
	IncidentID *uuid.UUID `json:"incident_id,omitempty"`
	Location   string     `json:"location"`
	Latitude   *float64   `json:"lat,omitempty"`
	Longitude  *float64   `json:"lng,omitempty"`
	Reason     string     `json:"reason"`
}

// Plan - структурированный план выезда
type Plan struct {
	Summary   string      `json:"summary"`
	Route     []RouteStop `json:"route"`
	Resources []string    `json:"resources"`
	Fallback  bool        `json:"fallback,omitempty"`
}

// Dispatch - неизменяемая запись о выезде бригады
type Dispatch struct {
	ID        uuid.UUID          `json:"id"`
	TeamID    uuid.UUID          `json:"team_id"`
	CreatedBy string             `json:"created_by"`
	Status    DispatchStatus     `json:"status"`
	PlanText  string             `json:"plan_text"`
	Plan      Plan               `json:"plan"`
	Incidents []IncidentSnapshot `json:"incidents"`
	CreatedAt time.Time          `json:"created_at"`
}

// Weights - веса линейной формулы оценки назначения
type Weights struct {
	Severity float64 `json:"severity"`
	Distance float64 `json:"distance"`
	Load     float64 `json:"load"`
}

// WeightsOverride - частичное переопределение весов; незаданные поля берутся из базовых
type WeightsOverride struct {
	Severity *float64
	Distance *float64
	Load     *float64
}

// Apply накладывает заданные поля на base
func (o *WeightsOverride) Apply(base Weights) Weights {
	if o == nil {
		return base
	}
	if o.Severity != nil {
		base.Severity = *o.Severity
	}
	if o.Distance != nil {
		base.Distance = *o.Distance
	}
	if o.Load != nil {
		base.Load = *o.Load
	}
	return base
}

// BatchRequest - запрос на распределение пакета инцидентов.
// Пустой IncidentIDs означает все новые инциденты, пустой TeamIDs - все бригады.
type BatchRequest struct {
	IncidentIDs []uuid.UUID
	TeamIDs     []uuid.UUID
	CreatedBy   string
	Weights     *WeightsOverride
}

// TeamDispatch - итог распределения по одной бригаде
type TeamDispatch struct {
	TeamID       uuid.UUID
	TeamName     string
	Dispatch     *Dispatch
	IncidentIDs  []uuid.UUID
	PlanFallback bool
	Failures     []string
}

// BatchResult - итог распределения; частичные сбои перечислены в Failures и Warnings
type BatchResult struct {
	Dispatches []TeamDispatch
	Loads      map[uuid.UUID]int
	Warnings   []string
}

// AssignmentScore - оценка пары инцидент/бригада
type AssignmentScore struct {
	IncidentID uuid.UUID
	TeamID     uuid.UUID
	Score      float64
	DistanceKm float64
	Load       int
}
