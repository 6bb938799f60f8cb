package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPlanner struct {
	plan models.Plan
	err  error
	got  []*models.Incident
}

func (s *stubPlanner) PlanDispatch(_ context.Context, incidents []*models.Incident) (models.Plan, error) {
	s.got = incidents
	return s.plan, s.err
}

func TestBuildPlan_UsesPlanner(t *testing.T) {
	low := newIncident(models.SeverityLow, 1, 1)
	crit := newIncident(models.SeverityCritical, 2, 2)
	planner := &stubPlanner{plan: models.Plan{Summary: "go", Route: []models.RouteStop{{Location: "x"}}}}

	plan, err := BuildPlan(context.Background(), planner, []*models.Incident{low, crit})

	require.NoError(t, err)
	assert.Equal(t, "go", plan.Summary)
	assert.False(t, plan.Fallback)
	assert.NotNil(t, plan.Resources)
	assert.Equal(t, []*models.Incident{crit, low}, planner.got)
}

func TestBuildPlan_FallsBack(t *testing.T) {
	incidents := []*models.Incident{
		{ID: uuid.New(), Location: "Pier", Description: "boat capsized, child missing", Analysis: models.Analysis{Severity: models.SeverityHigh}},
		{ID: uuid.New(), Location: "Block 4", Description: "building collapsed, man injured", Analysis: models.Analysis{Severity: models.SeverityCritical}},
	}

	for _, planner := range []*stubPlanner{{err: errors.New("timeout")}, {plan: models.Plan{}}} {
		plan, err := BuildPlan(context.Background(), planner, incidents)

		assert.Error(t, err)
		assert.True(t, plan.Fallback)
		require.Len(t, plan.Route, 2)
		assert.Equal(t, "Block 4", plan.Route[0].Location)
		assert.Equal(t, "Pier", plan.Route[1].Location)
		assert.Contains(t, plan.Resources, "rescue boat")
		assert.Contains(t, plan.Resources, "search and rescue kit")
		assert.Contains(t, plan.Resources, "ambulance")
		assert.Contains(t, plan.Resources, "pediatric and maternal care kit")
		assert.NotContains(t, plan.Resources, "fire tender")
	}
}

func TestRenderPlanText(t *testing.T) {
	plan := models.Plan{
		Summary:   "Two stops",
		Route:     []models.RouteStop{{Location: "A", Latitude: f64(1), Longitude: f64(2), Reason: "critical"}, {Location: "B"}},
		Resources: []string{"boat", "medic"},
	}

	text := RenderPlanText(plan)

	assert.Contains(t, text, "Two stops")
	assert.Contains(t, text, "1. A (1.00000, 2.00000) - critical")
	assert.Contains(t, text, "2. B")
	assert.Contains(t, text, "Resources: boat, medic")
}

func TestIsStale(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(ago time.Duration) *time.Time {
		ts := now.Add(-ago)
		return &ts
	}

	cases := []struct {
		name   string
		status models.IncidentStatus
		since  *time.Time
		stale  bool
	}{
		{"past ttl", models.StatusRescueDispatched, at(1801 * time.Second), true},
		{"exactly ttl", models.StatusRescueDispatched, at(DefaultStaleTTL), true},
		{"fresh", models.StatusRescueDispatched, at(100 * time.Second), false},
		{"no timestamp", models.StatusRescueDispatched, nil, false},
		{"new", models.StatusNew, at(time.Hour), false},
		{"closed", models.StatusClosed, at(time.Hour), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			inc := &models.Incident{Status: c.status, DispatchedAt: c.since}
			assert.Equal(t, c.stale, IsStale(inc, DefaultStaleTTL, now))
		})
	}
}

func TestReap(t *testing.T) {
	now := time.Now()
	old := now.Add(-1801 * time.Second)
	recent := now.Add(-100 * time.Second)

	stale := &models.Incident{Status: models.StatusRescueDispatched, DispatchedAt: &old}
	fresh := &models.Incident{Status: models.StatusRescueDispatched, DispatchedAt: &recent}

	assert.True(t, Reap(stale, DefaultStaleTTL, now))
	assert.Equal(t, models.StatusClosed, stale.Status)
	assert.False(t, Reap(stale, DefaultStaleTTL, now), "closed is terminal")

	assert.False(t, Reap(fresh, DefaultStaleTTL, now))
	assert.Equal(t, models.StatusRescueDispatched, fresh.Status)
}
