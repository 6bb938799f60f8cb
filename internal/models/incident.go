package models

import (
	"time"

	"github.com/google/uuid"
)

// IncidentStatus - состояние жизненного цикла инцидента
type IncidentStatus string

const (
	StatusNew              IncidentStatus = "new"
	StatusRescueDispatched IncidentStatus = "rescue_dispatched"
	StatusClosed           IncidentStatus = "closed"
)

// Valid проверяет, что статус входит в допустимый набор
func (s IncidentStatus) Valid() bool {
	switch s {
	case StatusNew, StatusRescueDispatched, StatusClosed:
		return true
	}
	return false
}

// IsTerminal - closed является конечным состоянием, дальнейшие переходы запрещены
func (s IncidentStatus) IsTerminal() bool {
	return s == StatusClosed
}

// IncidentType - категория инцидента по данным анализа
type IncidentType string

const (
	TypeFlood   IncidentType = "flood"
	TypeMedical IncidentType = "medical"
	TypePower   IncidentType = "power"
	TypeFire    IncidentType = "fire"
	TypeShelter IncidentType = "shelter"
	TypeOther   IncidentType = "other"
)

// ParseIncidentType приводит произвольную строку к известному типу, иначе other
func ParseIncidentType(s string) IncidentType {
	switch t := IncidentType(normalize(s)); t {
	case TypeFlood, TypeMedical, TypePower, TypeFire, TypeShelter:
		return t
	}
	return TypeOther
}

// Incident представляет обращение гражданина после триажа
type Incident struct {
	ID            uuid.UUID      `json:"id"`
	Location      string         `json:"location"`
	Latitude      *float64       `json:"lat,omitempty"`
	Longitude     *float64       `json:"lng,omitempty"`
	Description   string         `json:"description"`
	ReporterName  string         `json:"reporter_name,omitempty"`
	ReporterPhone string         `json:"reporter_phone,omitempty"`
	Status        IncidentStatus `json:"status"`
	DispatchID    *uuid.UUID     `json:"dispatch_id,omitempty"`
	AssignedTeam  *uuid.UUID     `json:"assigned_team,omitempty"`
	DispatchedAt  *time.Time     `json:"dispatched_at,omitempty"`
	Analysis      Analysis       `json:"analysis"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// HasCoordinates - у инцидента заданы обе координаты
func (i *Incident) HasCoordinates() bool {
	return i.Latitude != nil && i.Longitude != nil
}

// Snapshot фиксирует инцидент на момент диспетчеризации
func (i *Incident) Snapshot() IncidentSnapshot {
	snap := IncidentSnapshot{
		ID:       i.ID,
		Location: i.Location,
		Severity: i.Analysis.Severity,
	}
	if i.Latitude != nil {
		lat := *i.Latitude
		snap.Latitude = &lat
	}
	if i.Longitude != nil {
		lng := *i.Longitude
		snap.Longitude = &lng
	}
	return snap
}

// Report - сырое обращение до анализа
type Report struct {
	Location      string
	Description   string
	Latitude      *float64
	Longitude     *float64
	ReporterName  string
	ReporterPhone string
}

// IncidentFilter - условия выборки инцидентов
type IncidentFilter struct {
	Statuses []IncidentStatus
	Query    string
	IDs      []uuid.UUID
}

// OptionalUUID различает "не менять", "установить" и "снять назначение"
type OptionalUUID struct {
	Set   bool
	Value *uuid.UUID
}

// Keep оставляет поле без изменений
func Keep() OptionalUUID { return OptionalUUID{} }

// Assign устанавливает значение поля
func Assign(id uuid.UUID) OptionalUUID { return OptionalUUID{Set: true, Value: &id} }

// Unassign явно очищает поле
func Unassign() OptionalUUID { return OptionalUUID{Set: true} }

// AssignmentUpdate - изменение полей назначения инцидента
type AssignmentUpdate struct {
	DispatchID OptionalUUID
	TeamID     OptionalUUID
}

// ActionPlan - текстовый план действий по одному инциденту
type ActionPlan struct {
	IncidentID uuid.UUID
	Text       string
	Fallback   bool
}
