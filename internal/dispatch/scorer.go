package dispatch

import (
	"errors"
	"math"

	"github.com/shenikar/rescue_dispatch_system/internal/geo"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
)

// Config - параметры оценки назначения, передаются явно в каждый вызов
type Config struct {
	Weights         models.Weights
	DistanceScaleKm float64
	LoadScale       float64
	DistanceCapKm   float64
	TeamCapacity    int
	CapPenalty      float64
	UnderloadBonus  float64
}

// DefaultConfig возвращает параметры по умолчанию
func DefaultConfig() Config {
	return Config{
		Weights:         models.Weights{Severity: 1.0, Distance: 0.6, Load: 0.8},
		DistanceScaleKm: 50,
		LoadScale:       10,
		DistanceCapKm:   40,
		TeamCapacity:    8,
		CapPenalty:      1.5,
		UnderloadBonus:  0.2,
	}
}

const maxNormalized = 5.0

// ErrNoOpinion возвращается моделью, которая не загружена
var ErrNoOpinion = errors.New("assignment model has no opinion")

// AssignmentModel - обученная модель оценки пары инцидент/бригада.
// Признаки: [severity_norm, distance_km, load].
type AssignmentModel interface {
	PredictAssignment(severityNorm, distanceKm, load float64) (float64, error)
}

// NoModel - вариант без модели, всегда возвращает ErrNoOpinion
type NoModel struct{}

func (NoModel) PredictAssignment(float64, float64, float64) (float64, error) {
	return 0, ErrNoOpinion
}

// TeamState - бригада и ее текущая загрузка
type TeamState struct {
	Team *models.Team
	Load int
}

// SeverityNorm переводит критичность в [0,1]: low -> 0, critical -> 1
func SeverityNorm(s models.Severity) float64 {
	rank := s.Rank()
	if rank == 0 {
		rank = models.SeverityMedium.Rank()
	}
	return float64(rank-1) / 3
}

// DistanceKm возвращает расстояние между инцидентом и базой бригады.
// Если координат нет или они некорректны, используется 2*DistanceScaleKm.
func DistanceKm(incident *models.Incident, team *models.Team, cfg Config) float64 {
	sentinel := 2 * cfg.DistanceScaleKm
	if !incident.HasCoordinates() || !team.HasBase() {
		return sentinel
	}
	d := geo.DistanceKm(*incident.Latitude, *incident.Longitude, *team.BaseLat, *team.BaseLng)
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return sentinel
	}
	return d
}

// Score оценивает желательность назначения (больше - лучше).
// Если модель дала ответ, он заменяет линейную формулу; штраф за дальность и бонус
// недогруженной бригаде применяются в обоих случаях.
func Score(incident *models.Incident, team TeamState, cfg Config, model AssignmentModel) float64 {
	sevNorm := SeverityNorm(incident.Analysis.Severity)
	distKm := DistanceKm(incident, team.Team, cfg)
	load := float64(team.Load)

	base, err := model.PredictAssignment(sevNorm, distKm, load)
	if err != nil || math.IsNaN(base) || math.IsInf(base, 0) {
		base = linearScore(sevNorm, distKm, load, cfg)
	}

	score := base
	if distKm > cfg.DistanceCapKm {
		score -= ((distKm - cfg.DistanceCapKm) / cfg.DistanceScaleKm) * cfg.CapPenalty
	}
	if team.Load < cfg.TeamCapacity {
		score += cfg.UnderloadBonus
	}
	return score
}

func linearScore(sevNorm, distKm, load float64, cfg Config) float64 {
	loadNorm := math.Min(load/cfg.LoadScale, maxNormalized)
	distNorm := math.Min(distKm/cfg.DistanceScaleKm, maxNormalized)
	return cfg.Weights.Severity*sevNorm - cfg.Weights.Distance*distNorm - cfg.Weights.Load*loadNorm
}
