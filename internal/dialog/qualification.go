package dialog

import (
	"math"
	"regexp"
	"strconv"
	"time"

	"ai_call_agent/internal/models"
)

// 内置资质项
const (
	CriterionOwnership = "ownership"
	CriterionAssetAge  = "asset_age"
	CriterionUrgency   = "urgency"
	CriterionIntent    = "intent"
)

// DefaultCriteria 脚本未定义资质项时使用
func DefaultCriteria() []models.CriterionDefinition {
	return []models.CriterionDefinition{
		{Name: CriterionOwnership, Weight: 2.5, Question: "Do you own the home, or are you renting?"},
		{Name: CriterionAssetAge, Weight: 2, Question: "About how old is your current system?"},
		{Name: CriterionUrgency, Weight: 2.5, Question: "How soon do you need this taken care of?"},
		{Name: CriterionIntent, Weight: 3, Question: "Would you like us to send a technician out?"},
	}
}

var builtinValues = map[string][]models.CriterionValue{
	CriterionOwnership: {
		{Value: "owner", Score: 1, Keywords: []string{"i own", "we own", "my house", "my home", "homeowner", "own the", "own it"}},
		{Value: "renter", Score: 0.3, Keywords: []string{"i rent", "we rent", "renting", "landlord", "tenant", "apartment"}},
	},
	CriterionAssetAge: {
		{Value: "new", Score: 0.2, Keywords: []string{"brand new", "just installed", "new unit", "new system"}},
		{Value: "old", Score: 0.8, Keywords: []string{"really old", "ancient", "original unit", "very old"}},
	},
}

var ageRe = regexp.MustCompile(`(?i)(\d{1,2})\s*(?:years?|yrs?)(?:\s+old)?`)

// extraction 一次提取的结果
type extraction struct {
	value string
	score float64
}

// extractCriteria 从一轮客户输入中提取各资质项
func extractCriteria(defs []models.CriterionDefinition, raw string, p phraseSet, intent Intent, urgency Urgency) map[string]extraction {
	out := make(map[string]extraction)
	for _, def := range defs {
		values := def.Values
		if len(values) == 0 {
			values = builtinValues[def.Name]
		}

		switch def.Name {
		case CriterionAssetAge:
			if m := ageRe.FindStringSubmatch(raw); m != nil {
				years, _ := strconv.Atoi(m[1])
				out[def.Name] = extraction{value: m[1] + " years", score: ageScore(years)}
				continue
			}
		case CriterionUrgency:
			if len(def.Values) == 0 {
				switch urgency {
				case UrgencyHigh:
					out[def.Name] = extraction{value: string(UrgencyHigh), score: 1}
				case UrgencyMedium:
					out[def.Name] = extraction{value: string(UrgencyMedium), score: 0.6}
				}
				continue
			}
		case CriterionIntent:
			if len(def.Values) == 0 {
				if e, ok := intentCriterion(intent); ok {
					out[def.Name] = e
				}
				continue
			}
		}

		for _, v := range values {
			if p.count(v.Keywords) > 0 {
				out[def.Name] = extraction{value: v.Value, score: clamp(v.Score, 0, 1)}
				break
			}
		}
	}
	return out
}

func ageScore(years int) float64 {
	switch {
	case years >= 10:
		return 1
	case years >= 5:
		return 0.7
	default:
		return 0.4
	}
}

func intentCriterion(intent Intent) (extraction, bool) {
	switch intent {
	case IntentScheduleAppointment, IntentEmergency:
		return extraction{value: "ready_to_book", score: 1}, true
	case IntentPricingQuestion:
		return extraction{value: "price_shopping", score: 0.6}, true
	case IntentServiceQuestion:
		return extraction{value: "researching", score: 0.5}, true
	case IntentObjection:
		return extraction{value: "not_interested", score: 0.1}, true
	}
	return extraction{}, false
}

// applyCriteria 合并提取结果：相同取值不覆盖，取值矛盾时以最新为准
func applyCriteria(current map[string]Criterion, defs []models.CriterionDefinition, found map[string]extraction, turnIndex int, now time.Time) []string {
	var changed []string
	for _, def := range defs {
		e, ok := found[def.Name]
		if !ok {
			continue
		}
		if prev, exists := current[def.Name]; exists && prev.Value == e.value {
			continue
		}
		current[def.Name] = Criterion{
			Name:      def.Name,
			Value:     e.value,
			Score:     e.score,
			Weight:    def.Weight,
			TurnIndex: turnIndex,
			UpdatedAt: now,
		}
		changed = append(changed, def.Name)
	}
	return changed
}

// qualificationScore 加权汇总并归一化到 0~10
func qualificationScore(defs []models.CriterionDefinition, current map[string]Criterion) float64 {
	total, got := 0.0, 0.0
	for _, def := range defs {
		if def.Weight <= 0 {
			continue
		}
		total += def.Weight
		if c, ok := current[def.Name]; ok {
			got += def.Weight * clamp(c.Score, 0, 1)
		}
	}
	if total == 0 {
		return 0
	}
	return clamp(math.Round(got/total*100)/10, 0, 10)
}

// nextQuestion 第一个尚未采集的资质项及其问题
func nextQuestion(defs []models.CriterionDefinition, current map[string]Criterion) (string, string) {
	for _, def := range defs {
		if _, ok := current[def.Name]; !ok && def.Question != "" {
			return def.Name, def.Question
		}
	}
	return "", ""
}
