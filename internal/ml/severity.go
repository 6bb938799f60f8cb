package ml

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
)

// severityArtifact - выгрузка мультиклассовой логистической регрессии по униграммам и биграммам
type severityArtifact struct {
	Labels     []string             `json:"labels"`
	Intercepts []float64            `json:"intercepts"`
	Weights    map[string][]float64 `json:"weights"`
}

// SeverityModel - классификатор критичности по тексту обращения
type SeverityModel struct {
	labels     []models.Severity
	intercepts []float64
	weights    map[string][]float64
}

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

// LoadSeverityModel читает артефакт модели. Отсутствие файла - нормальная ситуация:
// возвращается nil без ошибки.
func LoadSeverityModel(path string) (*SeverityModel, error) {
	data, err := readArtifact(path)
	if err != nil || data == nil {
		return nil, err
	}
	return ParseSeverityModel(data)
}

// ParseSeverityModel разбирает и проверяет артефакт
func ParseSeverityModel(data []byte) (*SeverityModel, error) {
	var a severityArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode severity model: %w", err)
	}
	if len(a.Labels) == 0 || len(a.Intercepts) != len(a.Labels) {
		return nil, fmt.Errorf("severity model: %d labels and %d intercepts", len(a.Labels), len(a.Intercepts))
	}

	m := &SeverityModel{
		labels:     make([]models.Severity, len(a.Labels)),
		intercepts: a.Intercepts,
		weights:    a.Weights,
	}
	for i, l := range a.Labels {
		sev, ok := models.ParseSeverity(l)
		if !ok {
			return nil, fmt.Errorf("severity model: unknown label %q", l)
		}
		m.labels[i] = sev
	}
	for term, w := range a.Weights {
		if len(w) != len(a.Labels) {
			return nil, fmt.Errorf("severity model: term %q has %d weights, want %d", term, len(w), len(a.Labels))
		}
	}
	return m, nil
}

// Predict возвращает наиболее вероятную метку и ее вероятность
func (m *SeverityModel) Predict(description string) (models.Severity, float64, bool) {
	terms := Terms(description)
	if len(terms) == 0 {
		return "", 0, false
	}

	logits := make([]float64, len(m.labels))
	copy(logits, m.intercepts)
	// нормировка как у tf-idf с l2: вклад термина делится на корень из числа терминов
	norm := 1 / math.Sqrt(float64(len(terms)))
	for _, term := range terms {
		w, ok := m.weights[term]
		if !ok {
			continue
		}
		for i := range logits {
			logits[i] += w[i] * norm
		}
	}

	probs := softmax(logits)
	best := 0
	for i := range probs {
		if probs[i] > probs[best] {
			best = i
		}
	}
	if math.IsNaN(probs[best]) {
		return "", 0, false
	}
	return m.labels[best], probs[best], true
}

// Terms - униграммы и биграммы в нижнем регистре
func Terms(text string) []string {
	words := tokenRe.FindAllString(strings.ToLower(text), -1)
	terms := make([]string, 0, 2*len(words))
	terms = append(terms, words...)
	for i := 0; i+1 < len(words); i++ {
		terms = append(terms, words[i]+" "+words[i+1])
	}
	return terms
}

func softmax(logits []float64) []float64 {
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		maxLogit = math.Max(maxLogit, l)
	}
	out := make([]float64, len(logits))
	sum := 0.0
	for i, l := range logits {
		out[i] = math.Exp(l - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func readArtifact(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read model artifact %s: %w", path, err)
	}
	return data, nil
}
