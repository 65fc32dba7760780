package dialog

import (
	"math"
	"strings"
)

// intentRule 意图及其触发短语，按优先级排列
type intentRule struct {
	intent  Intent
	phrases []string
}

var intentRules = []intentRule{
	{IntentRequestHuman, []string{
		"real person", "human", "speak to someone", "talk to someone", "speak to a person",
		"talk to a person", "representative", "live agent", "an operator", "the operator",
		"a manager", "your manager", "the manager", "supervisor",
	}},
	{IntentEmergency, []string{
		"emergency", "gas leak", "smell gas", "smoke", "fire", "flooding", "flooded",
		"carbon monoxide", "sparks", "burning smell",
	}},
	{IntentObjection, []string{
		"too expensive", "not interested", "already have", "think about it", "call me back",
		"call back later", "no time", "dont need", "not right now", "cant afford", "no thanks",
		"another company", "get other quotes",
	}},
	{IntentScheduleAppointment, []string{
		"appointment", "schedule", "book", "come out", "send someone", "send a technician",
		"set up a visit", "when can you", "available",
	}},
	{IntentPricingQuestion, []string{
		"how much", "price", "pricing", "cost", "quote", "estimate", "charge", "fee", "rates",
	}},
	{IntentServiceQuestion, []string{
		"do you", "can you", "what kind", "repair", "install", "installation", "maintenance",
		"warranty", "service area", "financing",
	}},
	{IntentProvideInformation, []string{
		"my unit", "my ac", "my furnace", "my heater", "my system", "i have", "i own", "i rent",
		"stopped working", "broken", "not working", "years old", "degrees", "leaking",
		"making noise", "the unit", "the system",
	}},
	{IntentNegative, []string{"no", "nope", "nah", "not really", "i dont think so"}},
	{IntentAffirmative, []string{
		"yes", "yeah", "yep", "sure", "okay", "ok", "sounds good", "correct", "that works",
		"absolutely", "please do", "lets do it",
	}},
	{IntentGreeting, []string{"hello", "hi", "hey", "good morning", "good afternoon", "good evening"}},
}

var fillerWords = []string{"um", "uh", "hmm", "er", "erm", "like", "you know", "i mean", "whatever"}

var (
	affirmWords = []string{"yes", "yeah", "sure"}
	denyWords   = []string{"no", "nope", "nah"}
)

// 置信度参数
const (
	confidenceUnknown    = 0.4
	confidenceMatched    = 0.75
	confidencePerExtra   = 0.05
	confidenceMatchCap   = 0.95
	penaltyShortText     = 0.1
	penaltyFiller        = 0.05
	penaltyFillerCap     = 0.2
	penaltyContradiction = 0.2
	shortTextWords       = 3
)

// classifyIntent 返回优先级最高的命中意图及命中数
func classifyIntent(p phraseSet) (Intent, int) {
	for _, rule := range intentRules {
		if n := p.count(rule.phrases); n > 0 {
			return rule.intent, n
		}
	}
	return IntentUnknown, 0
}

// scoreConfidence 根据命中强度和干扰因素计算置信度，结果在 [0,1]
func scoreConfidence(p phraseSet, intent Intent, matches int) float64 {
	c := confidenceUnknown
	if intent != IntentUnknown {
		c = math.Min(confidenceMatched+confidencePerExtra*float64(matches-1), confidenceMatchCap)
	}

	// 简短的肯定、否定和问候本身就很明确
	switch intent {
	case IntentAffirmative, IntentNegative, IntentGreeting, IntentRequestHuman:
	default:
		if len(p.words()) < shortTextWords {
			c -= penaltyShortText
		}
	}

	filler := 0.0
	for _, w := range p.words() {
		for _, f := range fillerWords {
			if w == f {
				filler += penaltyFiller
			}
		}
	}
	for _, f := range fillerWords {
		// 多词填充语
		if strings.Contains(f, " ") && p.has(f) {
			filler += penaltyFiller
		}
	}
	c -= math.Min(filler, penaltyFillerCap)

	if contradictory(p) {
		c -= penaltyContradiction
	}
	return clamp(math.Round(c*100)/100, 0, 1)
}

// contradictory 同时出现肯定与否定，或含糊其辞
func contradictory(p phraseSet) bool {
	if p.has("maybe") || p.has("not sure") || p.has("i guess") {
		return true
	}
	return p.count(affirmWords) > 0 && p.count(denyWords) > 0
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
