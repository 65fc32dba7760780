package dialog

import (
	"regexp"
	"strconv"
)

var emergencyPhrases = []string{
	"emergency", "gas leak", "smell gas", "carbon monoxide", "smoke", "fire", "flooding",
	"sparks", "burning smell", "no heat", "dangerous",
}

var (
	failurePhrases = []string{"stopped working", "broken", "not working", "wont turn on", "died", "quit working"}
	soonPhrases    = []string{"soon", "this week", "asap", "as soon as possible", "today", "right away"}
	temperatureRe  = regexp.MustCompile(`(-?\d{1,3})\s*(?:degrees|°|deg)`)
)

// 紧急度打分阈值
const (
	urgencyHighPoints   = 4
	urgencyMediumPoints = 2
	extremeHot          = 90
	extremeCold         = 40
)

// detectUrgency 按词汇线索累计分数判断紧急程度
func detectUrgency(raw string, p phraseSet, intent Intent) Urgency {
	if intent == IntentEmergency || p.count(emergencyPhrases) > 0 {
		return UrgencyHigh
	}

	points := 0
	if p.count(failurePhrases) > 0 {
		points += 2
	}
	if m := temperatureRe.FindStringSubmatch(raw); m != nil {
		if deg, err := strconv.Atoi(m[1]); err == nil && (deg >= extremeHot || deg <= extremeCold) {
			points += 2
		}
	}
	for _, r := range raw {
		if r == '!' {
			points++
			break
		}
	}
	if p.count(soonPhrases) > 0 {
		points++
	}

	switch {
	case points >= urgencyHighPoints:
		return UrgencyHigh
	case points >= urgencyMediumPoints:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}
