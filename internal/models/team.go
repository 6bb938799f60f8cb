package models

import (
	"time"

	"github.com/google/uuid"
)

// Team - спасательная бригада
type Team struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Contact      string    `json:"contact"`
	PasswordHash string    `json:"-"`
	BaseLat      *float64  `json:"base_lat,omitempty"`
	BaseLng      *float64  `json:"base_lng,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasBase - у бригады задана базовая точка
func (t *Team) HasBase() bool {
	return t.BaseLat != nil && t.BaseLng != nil
}

// TeamSession - активная сессия бригады
type TeamSession struct {
	ID        string    `json:"id"`
	TeamID    uuid.UUID `json:"team_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewTeam - данные для регистрации бригады
type NewTeam struct {
	Name     string
	Contact  string
	Password string
	BaseLat  *float64
	BaseLng  *float64
	Status   string
}

// LoginResult - выданный бригаде токен
type LoginResult struct {
	Token     string
	Team      *Team
	ExpiresAt time.Time
}

// TeamLoad - бригада и число ее незакрытых инцидентов
type TeamLoad struct {
	Team *Team
	Load int
}
