package triage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shenikar/rescue_dispatch_system/internal/llmtext"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/sirupsen/logrus"
)

const maxRawInSummary = 400

// DraftClassifier - внешний генеративный сервис, возвращающий черновой анализ в виде JSON-текста
type DraftClassifier interface {
	Classify(ctx context.Context, location, description string) (string, error)
}

// Result - итог триажа. Degraded=true означает, что черновик ИИ недоступен
// и использован анализ по умолчанию; это успешный результат, а не ошибка.
type Result struct {
	Analysis models.Analysis
	Degraded bool
	Reason   string
}

// Pipeline - конвейер триажа: черновик ИИ -> классификатор -> эвристика -> правило переопределения
type Pipeline struct {
	drafts     DraftClassifier
	classifier SeverityClassifier
	thresholds Thresholds
	timeout    time.Duration
	logger     *logrus.Logger
}

// NewPipeline создает конвейер триажа
func NewPipeline(drafts DraftClassifier, classifier SeverityClassifier, thresholds Thresholds, timeout time.Duration, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		drafts:     drafts,
		classifier: classifier,
		thresholds: thresholds,
		timeout:    timeout,
		logger:     logger,
	}
}

// Analyze всегда возвращает анализ, возможно деградированный
func (p *Pipeline) Analyze(ctx context.Context, report models.Report) Result {
	log := p.logger.WithFields(logrus.Fields{
		"component": "triage",
		"method":    "Analyze",
	})

	result := Result{}
	draft, err := p.requestDraft(ctx, report)
	if err != nil {
		log.WithError(err).Warn("AI draft unavailable, using default analysis")
		result.Degraded = true
		result.Reason = err.Error()
		draft = DefaultDraft(err.Error())
	}

	label, confidence, ok := p.classifier.Predict(report.Description)
	adjusted := Adjust(draft, report.Description, p.thresholds)
	result.Analysis = ApplyOverride(adjusted, label, confidence, ok)

	log.WithFields(logrus.Fields{
		"severity": result.Analysis.Severity,
		"source":   result.Analysis.Adjustments.Source,
		"degraded": result.Degraded,
	}).Debug("Triage completed")
	return result
}

func (p *Pipeline) requestDraft(ctx context.Context, report models.Report) (models.Analysis, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	raw, err := p.drafts.Classify(ctx, report.Location, report.Description)
	if err != nil {
		return models.Analysis{}, fmt.Errorf("AI classification failed: %w", err)
	}
	draft, err := ParseDraft(raw)
	if err != nil {
		return models.Analysis{}, fmt.Errorf("AI response is not valid analysis JSON: %w (raw: %s)", err, llmtext.Truncate(raw, maxRawInSummary))
	}
	return draft, nil
}

// DefaultDraft - безопасный анализ на случай недоступности ИИ
func DefaultDraft(reason string) models.Analysis {
	return models.Analysis{
		IncidentType:      models.TypeOther,
		Severity:          models.SeverityMedium,
		UrgencyScore:      defaultUrgency,
		AffectedPeople:    nil,
		FollowUpQuestions: []string{},
		Summary:           "AI analysis failed: " + llmtext.Truncate(reason, maxRawInSummary),
		Adjustments: models.Adjustments{
			DegradedReason: reason,
		},
	}
}

type draftPayload struct {
	IncidentType      string          `json:"incident_type"`
	Severity          string          `json:"severity"`
	UrgencyScore      json.RawMessage `json:"urgency_score"`
	AffectedPeople    json.RawMessage `json:"affected_people_estimate"`
	FollowUpQuestions []string        `json:"follow_up_questions"`
	Summary           string          `json:"summary"`
}

var errNotObject = errors.New("response is not a JSON object")

// ParseDraft разбирает ответ ИИ. Допускаются markdown-ограждения вокруг JSON.
func ParseDraft(raw string) (models.Analysis, error) {
	body := []byte(llmtext.StripFences(raw))
	if len(body) == 0 || body[0] != '{' {
		return models.Analysis{}, errNotObject
	}

	var payload draftPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.Analysis{}, err
	}

	analysis := models.Analysis{
		IncidentType:      models.ParseIncidentType(payload.IncidentType),
		Severity:          models.Severity(strings.ToLower(strings.TrimSpace(payload.Severity))),
		UrgencyScore:      parseUrgency(payload.UrgencyScore),
		AffectedPeople:    parseAffected(payload.AffectedPeople),
		FollowUpQuestions: payload.FollowUpQuestions,
		Summary:           payload.Summary,
	}
	if analysis.FollowUpQuestions == nil {
		analysis.FollowUpQuestions = []string{}
	}
	return analysis, nil
}

func parseUrgency(raw json.RawMessage) float64 {
	v, ok := parseNumber(raw)
	if !ok {
		return defaultUrgency
	}
	return sanitizeUrgency(v)
}

func parseAffected(raw json.RawMessage) *int {
	v, ok := parseNumber(raw)
	if !ok || v < 0 {
		return nil
	}
	n := int(v)
	return &n
}

// parseNumber принимает как число, так и числовую строку
func parseNumber(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
