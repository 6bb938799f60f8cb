package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/shenikar/rescue_dispatch_system/internal/triage"
)

// Planner - внешний генеративный сервис планирования выезда
type Planner interface {
	PlanDispatch(ctx context.Context, incidents []*models.Incident) (models.Plan, error)
}

// BuildPlan запрашивает сводный план и при любой ошибке строит локальный.
// Возвращаемая ошибка носит информационный характер: план есть всегда.
func BuildPlan(ctx context.Context, planner Planner, incidents []*models.Incident) (models.Plan, error) {
	ordered := SortBySeverity(incidents)
	plan, err := planner.PlanDispatch(ctx, ordered)
	if err == nil && (plan.Summary != "" || len(plan.Route) > 0) {
		if plan.Resources == nil {
			plan.Resources = []string{}
		}
		return plan, nil
	}
	if err == nil {
		err = fmt.Errorf("planner returned an empty plan")
	}
	return FallbackPlan(ordered), err
}

// FallbackPlan упорядочивает инциденты по критичности и подбирает
// минимальный набор ресурсов по ключевым словам угроз.
func FallbackPlan(incidents []*models.Incident) models.Plan {
	ordered := SortBySeverity(incidents)

	route := make([]models.RouteStop, 0, len(ordered))
	var signals triage.Signals
	for _, inc := range ordered {
		s := triage.DetectSignals(inc.Description)
		signals.Children = signals.Children || s.Children
		signals.Women = signals.Women || s.Women
		signals.Water = signals.Water || s.Water
		signals.Fire = signals.Fire || s.Fire
		signals.Collapse = signals.Collapse || s.Collapse
		signals.Injury = signals.Injury || s.Injury

		id := inc.ID
		route = append(route, models.RouteStop{
			IncidentID: &id,
			Location:   inc.Location,
			Latitude:   inc.Latitude,
			Longitude:  inc.Longitude,
			Reason:     fmt.Sprintf("%s severity %s", inc.Analysis.Severity, inc.Analysis.IncidentType),
		})
	}

	return models.Plan{
		Summary:   fmt.Sprintf("Respond to %d incident(s) in order of severity.", len(ordered)),
		Route:     route,
		Resources: resourcesFor(signals, ordered),
		Fallback:  true,
	}
}

func resourcesFor(s triage.Signals, incidents []*models.Incident) []string {
	resources := []string{"rescue vehicle", "first aid kit"}
	medical := s.Injury
	for _, inc := range incidents {
		if inc.Analysis.IncidentType == models.TypeMedical {
			medical = true
		}
	}
	if s.Water {
		resources = append(resources, "rescue boat", "life jackets")
	}
	if s.Fire {
		resources = append(resources, "fire tender", "breathing apparatus")
	}
	if s.Collapse {
		resources = append(resources, "search and rescue kit", "hydraulic cutters")
	}
	if medical {
		resources = append(resources, "ambulance", "stretchers")
	}
	if s.Children || s.Women {
		resources = append(resources, "pediatric and maternal care kit")
	}
	return resources
}

// RenderPlanText формирует текстовое представление плана для бригады
func RenderPlanText(plan models.Plan) string {
	var b strings.Builder
	b.WriteString(plan.Summary)
	if len(plan.Route) > 0 {
		b.WriteString("\n\nRoute:")
		for i, stop := range plan.Route {
			fmt.Fprintf(&b, "\n%d. %s", i+1, stop.Location)
			if stop.Latitude != nil && stop.Longitude != nil {
				fmt.Fprintf(&b, " (%.5f, %.5f)", *stop.Latitude, *stop.Longitude)
			}
			if stop.Reason != "" {
				fmt.Fprintf(&b, " - %s", stop.Reason)
			}
		}
	}
	if len(plan.Resources) > 0 {
		b.WriteString("\n\nResources: ")
		b.WriteString(strings.Join(plan.Resources, ", "))
	}
	return b.String()
}
