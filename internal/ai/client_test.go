package ai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewClient(srv.URL, "test-key", "test-model", 2*time.Second, logger)
}

func candidateBody(text string) string {
	body, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	})
	return string(body)
}

func TestClassify_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Empty(t, r.URL.RawQuery)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Contains(t, req.Contents[0].Parts[0].Text, "Location: Pier 4")
		assert.Contains(t, req.Contents[0].Parts[0].Text, "boat capsized")

		_, _ = w.Write([]byte(candidateBody(`{"severity":"high"}`)))
	})

	raw, err := client.Classify(context.Background(), "Pier 4", "boat capsized")
	require.NoError(t, err)
	assert.Equal(t, `{"severity":"high"}`, raw)
}

func TestClassify_UpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("overloaded"))
	})

	_, err := client.Classify(context.Background(), "x", "y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "overloaded")
}

func TestClassify_NoCandidates(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": []}`))
	})

	_, err := client.Classify(context.Background(), "x", "y")
	assert.Error(t, err)
}

func TestClassify_ContextTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Classify(ctx, "x", "y")
	assert.Error(t, err)
}

func TestClassify_TransportErrorHidesKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	client := NewClient(srv.URL, "SECRET-KEY-123", "test-model", 2*time.Second, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Classify(ctx, "x", "y")

	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET-KEY-123")
	assert.NotContains(t, err.Error(), srv.URL)
}

func TestClient_Disabled(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	client := NewClient("http://127.0.0.1:1", "", "m", time.Second, logger)

	_, err := client.Classify(context.Background(), "x", "y")
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = client.PlanDispatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestPlanDispatch_MatchesStopsToIncidents(t *testing.T) {
	lat, lng := 13.01, 74.79
	pier := &models.Incident{ID: uuid.New(), Location: "Pier 4", Latitude: &lat, Longitude: &lng,
		Analysis: models.Analysis{Severity: models.SeverityCritical}}
	school := &models.Incident{ID: uuid.New(), Location: "Old School",
		Analysis: models.Analysis{Severity: models.SeverityMedium}}

	planJSON := "```json\n" + `{
	  "summary": "Go to the pier first.",
	  "route": [
	    {"location": "pier 4", "reason": "people in water"},
	    {"location": "Old School", "lat": 13.2, "lng": 74.8, "reason": "shelter check"},
	    {"location": "Fuel depot", "reason": "refuel"}
	  ],
	  "resources": ["rescue boat"]
	}` + "\n```"

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		prompt := req.Contents[0].Parts[0].Text
		assert.True(t, strings.Contains(prompt, "Pier 4") && strings.Contains(prompt, "Old School"))
		_, _ = w.Write([]byte(candidateBody(planJSON)))
	})

	plan, err := client.PlanDispatch(context.Background(), []*models.Incident{pier, school})
	require.NoError(t, err)

	assert.Equal(t, "Go to the pier first.", plan.Summary)
	assert.Equal(t, []string{"rescue boat"}, plan.Resources)
	require.Len(t, plan.Route, 3)

	require.NotNil(t, plan.Route[0].IncidentID)
	assert.Equal(t, pier.ID, *plan.Route[0].IncidentID)
	require.NotNil(t, plan.Route[0].Latitude)
	assert.Equal(t, lat, *plan.Route[0].Latitude)

	require.NotNil(t, plan.Route[1].IncidentID)
	assert.Equal(t, school.ID, *plan.Route[1].IncidentID)
	assert.Equal(t, 13.2, *plan.Route[1].Latitude)

	assert.Nil(t, plan.Route[2].IncidentID)
}

func TestParsePlan_Invalid(t *testing.T) {
	_, err := ParsePlan("Sorry, I cannot help with that.", nil)
	assert.Error(t, err)

	_, err = ParsePlan(`{"summary": 42}`, nil)
	assert.Error(t, err)

	plan, err := ParsePlan(`{"summary": "ok"}`, nil)
	require.NoError(t, err)
	assert.NotNil(t, plan.Resources)
	assert.Empty(t, plan.Route)
}

func TestActionPlan(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Contents[0].Parts[0].Text, "Bridge road")
		_, _ = w.Write([]byte(candidateBody("  1. Close the bridge.  ")))
	})

	text, err := client.ActionPlan(context.Background(), &models.Incident{ID: uuid.New(), Location: "Bridge road"})
	require.NoError(t, err)
	assert.Equal(t, "1. Close the bridge.", text)
}
