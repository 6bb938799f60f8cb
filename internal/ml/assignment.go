package ml

import (
	"fmt"
	"math"

	"github.com/goccy/go-json"
)

type assignmentArtifact struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
	// Raw=true - вернуть линейный отклик вместо вероятности
	Raw bool `json:"raw"`
}

// AssignmentModel - бинарная логистическая регрессия по признакам [severity_norm, distance_km, load]
type AssignmentModel struct {
	coef      []float64
	intercept float64
	raw       bool
}

// LoadAssignmentModel читает артефакт; nil без ошибки, если файла нет
func LoadAssignmentModel(path string) (*AssignmentModel, error) {
	data, err := readArtifact(path)
	if err != nil || data == nil {
		return nil, err
	}
	return ParseAssignmentModel(data)
}

// ParseAssignmentModel разбирает артефакт модели назначения
func ParseAssignmentModel(data []byte) (*AssignmentModel, error) {
	var a assignmentArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode assignment model: %w", err)
	}
	return &AssignmentModel{coef: a.Coef, intercept: a.Intercept, raw: a.Raw}, nil
}

// PredictAssignment возвращает вероятность положительного класса
func (m *AssignmentModel) PredictAssignment(severityNorm, distanceKm, load float64) (float64, error) {
	features := []float64{severityNorm, distanceKm, load}
	if len(m.coef) != len(features) {
		return 0, fmt.Errorf("assignment model expects %d features, got %d", len(m.coef), len(features))
	}
	z := m.intercept
	for i, f := range features {
		z += m.coef[i] * f
	}
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return 0, fmt.Errorf("assignment model produced non-finite output")
	}
	if m.raw {
		return z, nil
	}
	return 1 / (1 + math.Exp(-z)), nil
}
