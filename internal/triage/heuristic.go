package triage

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shenikar/rescue_dispatch_system/internal/models"
)

// Thresholds - настраиваемые константы эвристики.
// Границы и веса срочности подобраны вручную и не выводятся из данных.
type Thresholds struct {
	Critical float64
	High     float64
	Medium   float64

	// итоговая срочность = OriginalUrgencyWeight*исходная + ScoreUrgencyWeight*(score/5), затем clamp в [0,1]
	OriginalUrgencyWeight float64
	ScoreUrgencyWeight    float64
}

// DefaultThresholds возвращает значения по умолчанию
func DefaultThresholds() Thresholds {
	return Thresholds{
		Critical:              4.5,
		High:                  3.2,
		Medium:                2.2,
		OriginalUrgencyWeight: 0.6,
		ScoreUrgencyWeight:    0.6,
	}
}

const (
	defaultRank    = 2
	minScore       = 1.0
	maxScore       = 5.0
	defaultUrgency = 0.5
)

var (
	peopleDigitsRe = regexp.MustCompile(`(?i)\b(\d{1,6})\s*(?:people|persons|person|victims|individuals)\b`)
	peopleWordsRe  = regexp.MustCompile(`(?i)\b(zero|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty)\s+(?:people|persons|person|victims|individuals)\b`)

	childrenRe = regexp.MustCompile(`(?i)\b(child|children|kid|kids|infant|infants|baby|babies)\b`)
	womenRe    = regexp.MustCompile(`(?i)\b(woman|women|pregnant)\b`)
	waterRe    = regexp.MustCompile(`(?i)\b(boat|boats|sea|water|drown\w*|sink\w*|sank)\b`)
	fireRe     = regexp.MustCompile(`(?i)\b(fire|fires|burning|flames?|smoke|blaze)\b`)
	collapseRe = regexp.MustCompile(`(?i)\b(collaps\w*|rubble|debris|caved\s+in)\b`)
	injuryRe   = regexp.MustCompile(`(?i)\b(injur\w*|bleeding|wounded|unconscious|fracture\w*|hurt)\b`)
)

var numberWords = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20,
}

// Signals - признаки, извлеченные из текста обращения
type Signals struct {
	Children bool
	Women    bool
	Water    bool
	Fire     bool
	Collapse bool
	Injury   bool
}

// DetectSignals ищет ключевые слова без учета регистра
func DetectSignals(description string) Signals {
	return Signals{
		Children: childrenRe.MatchString(description),
		Women:    womenRe.MatchString(description),
		Water:    waterRe.MatchString(description),
		Fire:     fireRe.MatchString(description),
		Collapse: collapseRe.MatchString(description),
		Injury:   injuryRe.MatchString(description),
	}
}

// Hazard - есть хотя бы одна угроза среды
func (s Signals) Hazard() bool {
	return s.Water || s.Fire || s.Collapse
}

// ParsePeopleCount ищет в тексте "<N> people" или числительное до двадцати.
// nil означает "неизвестно".
func ParsePeopleCount(description string) *int {
	if m := peopleDigitsRe.FindStringSubmatch(description); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return &n
		}
	}
	if m := peopleWordsRe.FindStringSubmatch(description); m != nil {
		if n, ok := numberWords[strings.ToLower(m[1])]; ok {
			return &n
		}
	}
	return nil
}

// Adjust применяет эвристику к черновому анализу и описанию.
// Никогда не паникует: при ошибках разбора используются значения по умолчанию.
// Повторный вызов на уже скорректированном анализе исходит из исходной метки и срочности,
// поэтому признаки не учитываются дважды.
func Adjust(draft models.Analysis, description string, th Thresholds) models.Analysis {
	out := draft
	out.FollowUpQuestions = append([]string(nil), draft.FollowUpQuestions...)
	if out.FollowUpQuestions == nil {
		out.FollowUpQuestions = []string{}
	}
	out.IncidentType = models.ParseIncidentType(string(draft.IncidentType))

	originalLabel := string(draft.Severity)
	originalUrgency := draft.UrgencyScore
	if draft.Adjustments.Source != "" {
		originalLabel = draft.Adjustments.OriginalSeverity
		originalUrgency = draft.Adjustments.OriginalUrgency
	}
	originalUrgency = sanitizeUrgency(originalUrgency)

	rank := defaultRank
	if sev, ok := models.ParseSeverity(originalLabel); ok {
		rank = sev.Rank()
	}

	count := positiveCount(draft.AffectedPeople)
	if count == nil {
		count = ParsePeopleCount(description)
	}

	signals := DetectSignals(description)

	score := float64(rank)
	if count != nil {
		switch {
		case *count >= 50:
			score += 2
		case *count >= 10:
			score += 1
		}
	}
	if signals.Children {
		score += 1
	}
	if signals.Hazard() {
		score += 1
	}
	if signals.Injury {
		score += 1
	}
	if signals.Women {
		score += 0.5
	}
	switch {
	case originalUrgency > 0.75:
		score += 1
	case originalUrgency > 0.6:
		score += 0.5
	}
	score = clamp(score, minScore, maxScore)

	final := labelForScore(score, th)
	urgency := clamp(th.OriginalUrgencyWeight*originalUrgency+th.ScoreUrgencyWeight*(score/maxScore), 0, 1)

	source := models.SourceHeuristic
	if sev, ok := models.ParseSeverity(originalLabel); ok && sev == final {
		source = models.SourceAIDraft
	}

	out.Severity = final
	out.UrgencyScore = urgency
	out.AffectedPeople = count
	out.Adjustments = models.Adjustments{
		Children:          signals.Children,
		Women:             signals.Women,
		Water:             signals.Water,
		Fire:              signals.Fire,
		Collapse:          signals.Collapse,
		Injury:            signals.Injury,
		PeopleCount:       count,
		OriginalSeverity:  originalLabel,
		OriginalUrgency:   originalUrgency,
		HeuristicScore:    score,
		HeuristicSeverity: final,
		Source:            source,
		DegradedReason:    draft.Adjustments.DegradedReason,
	}
	return out
}

func labelForScore(score float64, th Thresholds) models.Severity {
	switch {
	case score >= th.Critical:
		return models.SeverityCritical
	case score >= th.High:
		return models.SeverityHigh
	case score >= th.Medium:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func positiveCount(n *int) *int {
	if n == nil || *n <= 0 {
		return nil
	}
	v := *n
	return &v
}

func sanitizeUrgency(u float64) float64 {
	if math.IsNaN(u) || math.IsInf(u, 0) {
		return defaultUrgency
	}
	return clamp(u, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
