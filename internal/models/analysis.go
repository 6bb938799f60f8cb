package models

import "strings"

// Severity - порядковая оценка критичности: low < medium < high < critical
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank возвращает порядковый номер 1..4, 0 для неизвестного значения
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Valid - значение входит в перечисление
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// ParseSeverity разбирает метку без учета регистра, ok=false если метка неизвестна
func ParseSeverity(label string) (Severity, bool) {
	s := Severity(normalize(label))
	if s.Valid() {
		return s, true
	}
	return "", false
}

// SeverityFromRank - обратное отображение для Rank, значения вне диапазона зажимаются
func SeverityFromRank(rank int) Severity {
	switch {
	case rank <= 1:
		return SeverityLow
	case rank == 2:
		return SeverityMedium
	case rank == 3:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// ScoreSource - источник, определивший итоговую критичность
type ScoreSource string

const (
	SourceAIDraft    ScoreSource = "ai_draft"
	SourceHeuristic  ScoreSource = "heuristic"
	SourceMLOverride ScoreSource = "ml_override"
)

// Analysis - результат триажа, встроенный в инцидент
type Analysis struct {
	IncidentType      IncidentType `json:"incident_type"`
	Severity          Severity     `json:"severity"`
	UrgencyScore      float64      `json:"urgency_score"`
	AffectedPeople    *int         `json:"affected_people_estimate"`
	FollowUpQuestions []string     `json:"follow_up_questions"`
	Summary           string       `json:"summary"`
	Adjustments       Adjustments  `json:"adjustments"`
}

// Adjustments - журнал эвристики и правил переопределения
type Adjustments struct {
	Children          bool        `json:"children"`
	Women             bool        `json:"women"`
	Water             bool        `json:"water"`
	Fire              bool        `json:"fire"`
	Collapse          bool        `json:"collapse"`
	Injury            bool        `json:"injury"`
	PeopleCount       *int        `json:"people_count"`
	OriginalSeverity  string      `json:"original_severity"`
	OriginalUrgency   float64     `json:"original_urgency"`
	HeuristicScore    float64     `json:"heuristic_score"`
	HeuristicSeverity Severity    `json:"heuristic_severity"`
	Source            ScoreSource `json:"source"`
	MLLabel           Severity    `json:"ml_label,omitempty"`
	MLConfidence      *float64    `json:"ml_confidence,omitempty"`
	DegradedReason    string      `json:"degraded_reason,omitempty"`
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
