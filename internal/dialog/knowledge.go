package dialog

import (
	"ai_call_agent/internal/models"
)

// lookupKnowledge 返回关键词命中最多的问答片段
func lookupKnowledge(entries []models.KnowledgeEntry, p phraseSet) (models.KnowledgeEntry, bool) {
	best, bestHits := models.KnowledgeEntry{}, 0
	for _, e := range entries {
		if hits := p.count(e.Keywords); hits > bestHits {
			best, bestHits = e, hits
		}
	}
	return best, bestHits > 0
}

// matchObjection 返回命中的异议话术
func matchObjection(templates []models.ObjectionTemplate, p phraseSet) (string, bool) {
	for _, t := range templates {
		if p.count(t.Keywords) > 0 {
			return t.Response, true
		}
	}
	return "", false
}

var weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// extractPreferences 提取预约日期与时段偏好
func extractPreferences(p phraseSet, urgency Urgency) models.AppointmentPreferences {
	prefs := models.AppointmentPreferences{Urgent: urgency == UrgencyHigh}
	switch {
	case p.has("today") || p.has("right away") || p.has("asap"):
		prefs.Date = "today"
	case p.has("tomorrow"):
		prefs.Date = "tomorrow"
	case p.has("next week"):
		prefs.Date = "next_week"
	default:
		for _, d := range weekdays {
			if p.has(d) {
				prefs.Date = d
				break
			}
		}
	}
	switch {
	case p.has("morning"):
		prefs.TimeOfDay = "morning"
	case p.has("afternoon"):
		prefs.TimeOfDay = "afternoon"
	case p.has("evening") || p.has("after work"):
		prefs.TimeOfDay = "evening"
	}
	return prefs
}
