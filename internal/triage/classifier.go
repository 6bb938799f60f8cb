package triage

import "github.com/shenikar/rescue_dispatch_system/internal/models"

// SeverityClassifier - обученный классификатор критичности по тексту.
// ok=false означает "нет мнения" и не является ошибкой.
type SeverityClassifier interface {
	Predict(description string) (label models.Severity, confidence float64, ok bool)
}

// NoOpinion используется, когда модель не загружена
type NoOpinion struct{}

func (NoOpinion) Predict(string) (models.Severity, float64, bool) {
	return "", 0, false
}

// ApplyOverride заменяет итоговую критичность меткой классификатора,
// если она строго выше результата эвристики.
func ApplyOverride(adjusted models.Analysis, label models.Severity, confidence float64, ok bool) models.Analysis {
	if !ok || !label.Valid() {
		return adjusted
	}
	conf := confidence
	adjusted.Adjustments.MLLabel = label
	adjusted.Adjustments.MLConfidence = &conf

	if label.Rank() > adjusted.Severity.Rank() {
		adjusted.Severity = label
		adjusted.Adjustments.Source = models.SourceMLOverride
	}
	return adjusted
}
