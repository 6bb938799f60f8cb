package triage

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shenikar/rescue_dispatch_system/internal/ai"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDrafts struct {
	text  string
	err   error
	block bool
	calls int
}

func (f *fakeDrafts) Classify(ctx context.Context, _, _ string) (string, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.text, f.err
}

type fakeClassifier struct {
	label      models.Severity
	confidence float64
}

func (f fakeClassifier) Predict(string) (models.Severity, float64, bool) {
	return f.label, f.confidence, true
}

func newTestPipeline(drafts DraftClassifier, classifier SeverityClassifier) *Pipeline {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return NewPipeline(drafts, classifier, DefaultThresholds(), 50*time.Millisecond, logger)
}

var boatReport = models.Report{
	Location:    "Harbour",
	Description: "boat sinking, many children on board",
}

func TestAnalyze_UsesAIDraft(t *testing.T) {
	drafts := &fakeDrafts{text: `{"incident_type":"flood","severity":"medium","urgency_score":0.5,` +
		`"affected_people_estimate":"unknown","follow_up_questions":["How many on board?"],"summary":"boat in distress"}`}
	p := newTestPipeline(drafts, NoOpinion{})

	res := p.Analyze(context.Background(), boatReport)

	assert.False(t, res.Degraded)
	assert.Equal(t, models.TypeFlood, res.Analysis.IncidentType)
	assert.Equal(t, models.SeverityHigh, res.Analysis.Severity)
	assert.Nil(t, res.Analysis.AffectedPeople)
	assert.Equal(t, "boat in distress", res.Analysis.Summary)
	assert.Equal(t, []string{"How many on board?"}, res.Analysis.FollowUpQuestions)
	assert.Equal(t, models.SourceHeuristic, res.Analysis.Adjustments.Source)
	assert.Empty(t, res.Analysis.Adjustments.MLLabel)
}

func TestAnalyze_FencedJSON(t *testing.T) {
	drafts := &fakeDrafts{text: "```json\n{\"incident_type\":\"fire\",\"severity\":\"high\",\"urgency_score\":\"0.9\",\"affected_people_estimate\":4}\n```"}
	p := newTestPipeline(drafts, NoOpinion{})

	res := p.Analyze(context.Background(), models.Report{Location: "Mall", Description: "shop on fire"})

	require.False(t, res.Degraded)
	assert.Equal(t, models.TypeFire, res.Analysis.IncidentType)
	require.NotNil(t, res.Analysis.AffectedPeople)
	assert.Equal(t, 4, *res.Analysis.AffectedPeople)
	assert.Equal(t, 0.9, res.Analysis.Adjustments.OriginalUrgency)
	// 3 + пожар + срочность > 0.75
	assert.Equal(t, 5.0, res.Analysis.Adjustments.HeuristicScore)
	assert.Equal(t, models.SeverityCritical, res.Analysis.Severity)
}

func TestAnalyze_FallsBackOnError(t *testing.T) {
	p := newTestPipeline(&fakeDrafts{err: errors.New("quota exceeded")}, NoOpinion{})

	res := p.Analyze(context.Background(), boatReport)

	assert.True(t, res.Degraded)
	assert.Contains(t, res.Reason, "quota exceeded")
	assert.Equal(t, models.TypeOther, res.Analysis.IncidentType)
	assert.Contains(t, res.Analysis.Summary, "AI analysis failed")
	assert.Equal(t, "medium", res.Analysis.Adjustments.OriginalSeverity)
	assert.Contains(t, res.Analysis.Adjustments.DegradedReason, "quota exceeded")
	assert.Equal(t, models.SeverityHigh, res.Analysis.Severity)
}

func TestAnalyze_FallsBackOnMalformedJSON(t *testing.T) {
	for _, text := range []string{"Sorry, I cannot help with that", `{"severity": "high"`, "null", ""} {
		p := newTestPipeline(&fakeDrafts{text: text}, NoOpinion{})

		res := p.Analyze(context.Background(), models.Report{Location: "x", Description: "tree fell on road"})

		assert.True(t, res.Degraded, "input %q", text)
		assert.True(t, res.Analysis.Severity.Valid())
		assert.Equal(t, models.TypeOther, res.Analysis.IncidentType)
	}
}

func TestAnalyze_FallsBackOnTimeout(t *testing.T) {
	p := newTestPipeline(&fakeDrafts{block: true}, NoOpinion{})

	start := time.Now()
	res := p.Analyze(context.Background(), boatReport)

	assert.True(t, res.Degraded)
	assert.Contains(t, res.Reason, "deadline exceeded")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAnalyze_DegradedReasonHidesAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	var logs bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&logs)
	client := ai.NewClient(srv.URL, "SECRET-KEY-123", "gemini", 2*time.Second, logger)
	p := NewPipeline(client, NoOpinion{}, DefaultThresholds(), 50*time.Millisecond, logger)

	res := p.Analyze(context.Background(), boatReport)

	require.True(t, res.Degraded)
	assert.NotContains(t, res.Reason, "SECRET-KEY-123")
	assert.NotContains(t, res.Analysis.Summary, "SECRET-KEY-123")
	assert.NotContains(t, res.Analysis.Adjustments.DegradedReason, "SECRET-KEY-123")
	assert.NotContains(t, logs.String(), "SECRET-KEY-123")
}

func TestAnalyze_LongRawKeepsValidUTF8(t *testing.T) {
	raw := strings.Repeat("ж", maxRawInSummary)
	p := newTestPipeline(&fakeDrafts{text: raw}, NoOpinion{})

	res := p.Analyze(context.Background(), boatReport)

	require.True(t, res.Degraded)
	assert.True(t, utf8.ValidString(res.Analysis.Summary))
	assert.True(t, utf8.ValidString(res.Reason))
}

func TestAnalyze_ClassifierOverride(t *testing.T) {
	draft := `{"incident_type":"flood","severity":"medium","urgency_score":0.5}`

	t.Run("higher label wins", func(t *testing.T) {
		p := newTestPipeline(&fakeDrafts{text: draft}, fakeClassifier{label: models.SeverityCritical, confidence: 0.91})

		res := p.Analyze(context.Background(), boatReport)

		assert.Equal(t, models.SeverityCritical, res.Analysis.Severity)
		assert.Equal(t, models.SourceMLOverride, res.Analysis.Adjustments.Source)
		assert.Equal(t, models.SeverityHigh, res.Analysis.Adjustments.HeuristicSeverity)
		require.NotNil(t, res.Analysis.Adjustments.MLConfidence)
		assert.Equal(t, 0.91, *res.Analysis.Adjustments.MLConfidence)
	})

	t.Run("equal or lower label is recorded only", func(t *testing.T) {
		for _, label := range []models.Severity{models.SeverityHigh, models.SeverityLow} {
			p := newTestPipeline(&fakeDrafts{text: draft}, fakeClassifier{label: label, confidence: 0.7})

			res := p.Analyze(context.Background(), boatReport)

			assert.Equal(t, models.SeverityHigh, res.Analysis.Severity)
			assert.Equal(t, models.SourceHeuristic, res.Analysis.Adjustments.Source)
			assert.Equal(t, label, res.Analysis.Adjustments.MLLabel)
		}
	})
}

func TestAnalyze_Idempotent(t *testing.T) {
	drafts := &fakeDrafts{text: `{"incident_type":"medical","severity":"low","urgency_score":0.7,"affected_people_estimate":12}`}
	p := newTestPipeline(drafts, fakeClassifier{label: models.SeverityMedium, confidence: 0.5})
	report := models.Report{Location: "School", Description: "kids injured after roof collapse"}

	first := p.Analyze(context.Background(), report)
	second := p.Analyze(context.Background(), report)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, drafts.calls)
}

func TestApplyOverride_IgnoresInvalidLabel(t *testing.T) {
	in := models.Analysis{Severity: models.SeverityLow}
	out := ApplyOverride(in, "extreme", 0.99, true)
	assert.Equal(t, in, out)
}
