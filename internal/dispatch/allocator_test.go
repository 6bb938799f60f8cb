package dispatch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func newTeam(name string, lat, lng float64) *models.Team {
	return &models.Team{ID: uuid.New(), Name: name, BaseLat: f64(lat), BaseLng: f64(lng), Status: "ready"}
}

func newIncident(sev models.Severity, lat, lng float64) *models.Incident {
	return &models.Incident{
		ID:        uuid.New(),
		Location:  fmt.Sprintf("%.3f,%.3f", lat, lng),
		Latitude:  f64(lat),
		Longitude: f64(lng),
		Status:    models.StatusNew,
		Analysis:  models.Analysis{Severity: sev},
	}
}

type fixedModel struct {
	byDistance map[float64]float64
	err        error
}

func (m fixedModel) PredictAssignment(_, distanceKm, _ float64) (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.byDistance[distanceKm], nil
}

func TestAllocate_SingleTeamTakesEverything(t *testing.T) {
	team := newTeam("solo", 0, 0)
	incidents := []*models.Incident{
		newIncident(models.SeverityLow, 0, 1),
		newIncident(models.SeverityCritical, 1, 0),
		newIncident(models.SeverityMedium, 5, 5),
		{ID: uuid.New(), Analysis: models.Analysis{Severity: models.SeverityHigh}},
	}
	loads := map[uuid.UUID]int{team.ID: 3}

	res := Allocate(incidents, []*models.Team{team}, loads, DefaultConfig(), NoModel{})

	require.Len(t, res.Assignments[team.ID], len(incidents))
	assert.Equal(t, 3+len(incidents), res.Loads[team.ID])
	assert.Equal(t, []uuid.UUID{team.ID}, res.Teams)
	assert.Equal(t, 3, loads[team.ID], "input loads must not be mutated")

	got := res.Assignments[team.ID]
	assert.Equal(t, models.SeverityCritical, got[0].Analysis.Severity)
	assert.Equal(t, models.SeverityHigh, got[1].Analysis.Severity)
	assert.Equal(t, models.SeverityMedium, got[2].Analysis.Severity)
	assert.Equal(t, models.SeverityLow, got[3].Analysis.Severity)
}

func TestAllocate_PrefersCloserLessLoadedTeam(t *testing.T) {
	teamA := newTeam("A", 0, 0)
	teamB := newTeam("B", 0, 10)
	incident := newIncident(models.SeverityCritical, 0, 0.1)
	loads := map[uuid.UUID]int{teamA.ID: 0, teamB.ID: 5}

	res := Allocate([]*models.Incident{incident}, []*models.Team{teamB, teamA}, loads, DefaultConfig(), NoModel{})

	require.Len(t, res.Assignments[teamA.ID], 1)
	assert.Empty(t, res.Assignments[teamB.ID])
	assert.Equal(t, 1, res.Loads[teamA.ID])
	assert.Equal(t, 5, res.Loads[teamB.ID])
}

func TestAllocate_LoadIncrementsAreVisibleWithinBatch(t *testing.T) {
	teamA := newTeam("A", 0, 0)
	teamB := newTeam("B", 0, 0)
	incidents := []*models.Incident{
		newIncident(models.SeverityHigh, 0, 0.01),
		newIncident(models.SeverityHigh, 0, 0.01),
		newIncident(models.SeverityHigh, 0, 0.01),
		newIncident(models.SeverityHigh, 0, 0.01),
	}

	res := Allocate(incidents, []*models.Team{teamA, teamB}, map[uuid.UUID]int{}, DefaultConfig(), NoModel{})

	assert.Len(t, res.Assignments[teamA.ID], 2)
	assert.Len(t, res.Assignments[teamB.ID], 2)
	assert.Equal(t, 2, res.Loads[teamA.ID])
	assert.Equal(t, 2, res.Loads[teamB.ID])
	assert.Equal(t, []uuid.UUID{teamA.ID, teamB.ID}, res.Teams)
}

func TestAllocate_CapacityIsSoft(t *testing.T) {
	cfg := DefaultConfig()
	busy := newTeam("busy", 10, 10)
	far := newTeam("far", 10, 10.9)
	incident := newIncident(models.SeverityHigh, 10, 10)
	loads := map[uuid.UUID]int{busy.ID: cfg.TeamCapacity + 2, far.ID: 0}

	res := Allocate([]*models.Incident{incident}, []*models.Team{far, busy}, loads, cfg, NoModel{})

	assert.Len(t, res.Assignments[busy.ID], 1, "over-capacity team still wins when it scores best")
	assert.Equal(t, cfg.TeamCapacity+3, res.Loads[busy.ID])
}

func TestAllocate_UsesModelWhenAvailable(t *testing.T) {
	near := newTeam("near", 0, 0)
	far := newTeam("far", 0, 0.2)
	incident := newIncident(models.SeverityMedium, 0, 0)
	farDist := DistanceKm(incident, far, DefaultConfig())

	model := fixedModel{byDistance: map[float64]float64{0: 0.1, farDist: 0.95}}
	res := Allocate([]*models.Incident{incident}, []*models.Team{near, far}, nil, DefaultConfig(), model)
	assert.Len(t, res.Assignments[far.ID], 1)

	broken := fixedModel{err: errors.New("shape mismatch")}
	res = Allocate([]*models.Incident{incident}, []*models.Team{near, far}, nil, DefaultConfig(), broken)
	assert.Len(t, res.Assignments[near.ID], 1)
}

func TestAllocate_DegenerateScoresFallBackToLeastLoaded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DistanceScaleKm = 0
	teamA := &models.Team{ID: uuid.New(), Name: "A"}
	teamB := &models.Team{ID: uuid.New(), Name: "B"}
	incident := &models.Incident{ID: uuid.New(), Analysis: models.Analysis{Severity: models.SeverityLow}}
	loads := map[uuid.UUID]int{teamA.ID: 3, teamB.ID: 1}

	res := Allocate([]*models.Incident{incident}, []*models.Team{teamA, teamB}, loads, cfg, NoModel{})

	assert.Len(t, res.Assignments[teamB.ID], 1)
}

func TestAllocate_NoTeams(t *testing.T) {
	res := Allocate([]*models.Incident{newIncident(models.SeverityLow, 0, 0)}, nil, nil, DefaultConfig(), NoModel{})
	assert.Empty(t, res.Assignments)
	assert.Empty(t, res.Teams)
}

func TestSortBySeverity_IsStable(t *testing.T) {
	a := newIncident(models.SeverityHigh, 0, 0)
	b := newIncident(models.SeverityLow, 0, 0)
	c := newIncident(models.SeverityHigh, 0, 0)
	d := newIncident(models.SeverityCritical, 0, 0)
	input := []*models.Incident{a, b, c, d}

	sorted := SortBySeverity(input)

	assert.Equal(t, []*models.Incident{d, a, c, b}, sorted)
	assert.Equal(t, []*models.Incident{a, b, c, d}, input)
}
