package dispatch

import (
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
)

// Allocation - результат жадного распределения
type Allocation struct {
	// Assignments - инциденты каждой бригады в порядке назначения
	Assignments map[uuid.UUID][]*models.Incident
	// Teams - бригады с непустыми списками в порядке первого назначения
	Teams []uuid.UUID
	// Loads - загрузка после распределения
	Loads map[uuid.UUID]int
}

// Allocate распределяет пакет инцидентов по бригадам жадно, в порядке убывания критичности.
// Загрузка бригады увеличивается сразу после назначения, поэтому следующие инциденты пакета
// видят обновленную конкуренцию. Входная карта loads не изменяется.
func Allocate(incidents []*models.Incident, teams []*models.Team, loads map[uuid.UUID]int, cfg Config, model AssignmentModel) Allocation {
	current := make(map[uuid.UUID]int, len(teams))
	for _, t := range teams {
		current[t.ID] = loads[t.ID]
	}

	result := Allocation{
		Assignments: make(map[uuid.UUID][]*models.Incident),
		Teams:       make([]uuid.UUID, 0),
		Loads:       current,
	}
	if len(teams) == 0 {
		return result
	}

	for _, incident := range SortBySeverity(incidents) {
		team := pickTeam(incident, teams, current, cfg, model)
		if _, seen := result.Assignments[team.ID]; !seen {
			result.Teams = append(result.Teams, team.ID)
		}
		result.Assignments[team.ID] = append(result.Assignments[team.ID], incident)
		current[team.ID]++
	}
	return result
}

// SortBySeverity возвращает копию пакета, отсортированную по убыванию критичности.
// При равенстве сохраняется входной порядок.
func SortBySeverity(incidents []*models.Incident) []*models.Incident {
	sorted := make([]*models.Incident, len(incidents))
	copy(sorted, incidents)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Analysis.Severity.Rank() > sorted[j].Analysis.Severity.Rank()
	})
	return sorted
}

func pickTeam(incident *models.Incident, teams []*models.Team, loads map[uuid.UUID]int, cfg Config, model AssignmentModel) *models.Team {
	var best *models.Team
	bestScore := math.Inf(-1)
	for _, t := range teams {
		s := Score(incident, TeamState{Team: t, Load: loads[t.ID]}, cfg, model)
		if math.IsNaN(s) {
			continue
		}
		if best == nil || s > bestScore {
			best, bestScore = t, s
		}
	}
	if best != nil {
		return best
	}
	return leastLoaded(teams, loads)
}

func leastLoaded(teams []*models.Team, loads map[uuid.UUID]int) *models.Team {
	best := teams[0]
	for _, t := range teams[1:] {
		if loads[t.ID] < loads[best.ID] {
			best = t
		}
	}
	return best
}
