package ai

import "fmt"

func classifyPrompt(location, description string) string {
	return fmt.Sprintf(`You are an emergency response assistant. Analyze the citizen report and return ONLY valid JSON (no markdown).

Report:
Location: %s
Description: %s

Return JSON with this structure:
{
  "incident_type": "flood | medical | power | fire | shelter | other",
  "severity": "low | medium | high | critical",
  "urgency_score": 0.0,
  "affected_people_estimate": 0,
  "follow_up_questions": ["short question 1", "short question 2"],
  "summary": "short explanation"
}
`, location, description)
}

func actionPlanPrompt(incident string) string {
	return fmt.Sprintf(`You are a disaster response coordinator. Given this incident, produce a concise action plan in plain text.

Incident:
%s

Output a plan that includes:
- Top immediate actions (ordered)
- Resources required (type and approximate quantity)
- Priority and urgency
- Notes for human operators (access issues, vulnerable groups)
Return only the action plan text.
`, incident)
}

func dispatchPlanPrompt(incidents string) string {
	return fmt.Sprintf(`You are a disaster response coordinator. One rescue team must handle the incidents below in a single trip.
Order the stops by urgency, then by travel convenience, and list the resources the team must carry.

Incidents:
%s

Return ONLY valid JSON (no markdown) with this structure:
{
  "summary": "one paragraph briefing for the team",
  "route": [{"location": "incident location as given", "lat": 0.0, "lng": 0.0, "reason": "why this stop is here"}],
  "resources": ["resource 1", "resource 2"]
}
`, incidents)
}
