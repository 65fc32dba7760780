package dialog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai_call_agent/internal/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateGreeting, StateIntroduction, true},
		{StateIntroduction, StateQualification, true},
		{StateIntroduction, StateAppointmentBooking, false},
		{StateGreeting, StateQualification, false},
		{StateQualification, StateAppointmentBooking, true},
		{StateQualification, StateObjectionHandling, true},
		{StateQualification, StateClosing, false},
		{StateAppointmentBooking, StateClosing, true},
		{StateObjectionHandling, StateAppointmentBooking, true},
		{StateObjectionHandling, StateClosing, true},
		{StateGreeting, StateTransferToHuman, true},
		{StateObjectionHandling, StateTransferToHuman, true},
		{StateClosing, StateTransferToHuman, false},
		{StateTransferToHuman, StateQualification, false},
		{StateQualification, StateQualification, true},
		{StateClosing, StateClosing, true},
		{State("BOGUS"), StateIntroduction, false},
		{StateGreeting, State("BOGUS"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestParseState(t *testing.T) {
	s, err := ParseState("QUALIFICATION")
	require.NoError(t, err)
	assert.Equal(t, StateQualification, s)

	_, err = ParseState("qualification")
	assert.ErrorIs(t, err, ErrUnknownState)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "its great", normalize("It's   GREAT!!"))
	assert.Equal(t, "95 degrees outside", normalize("95 degrees... outside?"))
	assert.Equal(t, "", normalize("?!"))

	p := newPhraseSet("Can I talk to a manager?")
	assert.True(t, p.has("manager"))
	assert.True(t, p.has("Talk to"))
	assert.False(t, p.has("man"))
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{"Can I talk to a manager?", IntentRequestHuman},
		{"I smell gas in the basement", IntentEmergency},
		{"No thanks, not interested", IntentObjection},
		{"Can you come out on Tuesday", IntentScheduleAppointment},
		{"What's the price for a tune up", IntentPricingQuestion},
		{"Do you do installations", IntentServiceQuestion},
		{"My furnace is making noise", IntentProvideInformation},
		{"My property manager said the unit is broken", IntentProvideInformation},
		{"yes, my wife will be home", IntentAffirmative},
		{"no, its my day off", IntentNegative},
		{"nope", IntentNegative},
		{"yes", IntentAffirmative},
		{"hello there", IntentGreeting},
		{"the purple elephant sings loudly", IntentUnknown},
	}
	for _, tt := range tests {
		got, _ := classifyIntent(newPhraseSet(tt.text))
		assert.Equal(t, tt.want, got, tt.text)
	}
}

func TestScoreConfidence(t *testing.T) {
	tests := []struct {
		text string
		want float64
	}{
		{"yes", 0.75},
		{"broken", 0.65},
		{"the purple elephant sings loudly", 0.4},
		{"um like you know my unit is broken", 0.65},
		{"yes no maybe", 0.55},
		{"um uh hmm er erm", 0.2},
		{"my unit is broken and its 20 years old and not working", 0.9},
		{"my ac is broken, it stopped working and its 95 degrees and leaking", 0.95},
	}
	for _, tt := range tests {
		p := newPhraseSet(tt.text)
		intent, n := classifyIntent(p)
		got := scoreConfidence(p, intent, n)
		assert.InDelta(t, tt.want, got, 0.001, tt.text)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
	}
}

func TestDetectUrgency(t *testing.T) {
	tests := []struct {
		text string
		want Urgency
	}{
		{"There's a gas leak", UrgencyHigh},
		{"It's 35 degrees in here and the heater is broken", UrgencyHigh},
		{"My AC completely stopped working and it's 95 degrees!", UrgencyHigh},
		{"my heater is broken", UrgencyMedium},
		{"It's 98 degrees upstairs", UrgencyMedium},
		{"Can someone come this week?", UrgencyLow},
		{"It's 72 degrees!", UrgencyLow},
		{"Just a routine checkup", UrgencyLow},
	}
	for _, tt := range tests {
		p := newPhraseSet(tt.text)
		intent, _ := classifyIntent(p)
		assert.Equal(t, tt.want, detectUrgency(tt.text, p, intent), tt.text)
	}
}

func TestScoreSentiment(t *testing.T) {
	assert.InDelta(t, 1, scoreSentiment(newPhraseSet("thanks, this is great")), 0.001)
	assert.InDelta(t, -1, scoreSentiment(newPhraseSet("this is terrible and awful")), 0.001)
	assert.InDelta(t, 0, scoreSentiment(newPhraseSet("good but bad")), 0.001)
	assert.InDelta(t, 0, scoreSentiment(newPhraseSet("the unit")), 0.001)
}

func TestSentimentTrend(t *testing.T) {
	avg, trend := sentimentTrend(nil)
	assert.Zero(t, avg)
	assert.Equal(t, TrendStable, trend)

	_, trend = sentimentTrend([]float64{0.5})
	assert.Equal(t, TrendStable, trend)

	avg, trend = sentimentTrend([]float64{-1, -0.5, 0, 0.5, 1})
	assert.InDelta(t, 0, avg, 0.001)
	assert.Equal(t, TrendImproving, trend)

	_, trend = sentimentTrend([]float64{1, 0.5, 0, -0.5, -1})
	assert.Equal(t, TrendDeclining, trend)

	_, trend = sentimentTrend([]float64{0.2, 0.25, 0.2, 0.25})
	assert.Equal(t, TrendStable, trend)
}

func TestExtractCriteria(t *testing.T) {
	defs := DefaultCriteria()

	text := "We rent an apartment and the system is brand new"
	p := newPhraseSet(text)
	got := extractCriteria(defs, text, p, IntentProvideInformation, UrgencyLow)
	assert.Equal(t, "renter", got[CriterionOwnership].value)
	assert.Equal(t, "new", got[CriterionAssetAge].value)
	assert.NotContains(t, got, CriterionUrgency)
	assert.NotContains(t, got, CriterionIntent)

	text = "It's about 7 yrs old, can we book today"
	p = newPhraseSet(text)
	got = extractCriteria(defs, text, p, IntentScheduleAppointment, UrgencyMedium)
	assert.Equal(t, extraction{value: "7 years", score: 0.7}, got[CriterionAssetAge])
	assert.Equal(t, extraction{value: "medium", score: 0.6}, got[CriterionUrgency])
	assert.Equal(t, extraction{value: "ready_to_book", score: 1}, got[CriterionIntent])

	custom := []models.CriterionDefinition{{
		Name:   "property_type",
		Weight: 1,
		Values: []models.CriterionValue{
			{Value: "commercial", Score: 1, Keywords: []string{"office", "store"}},
			{Value: "residential", Score: 0.5, Keywords: []string{"house", "home"}},
		},
	}}
	text = "It's for our office building"
	got = extractCriteria(custom, text, newPhraseSet(text), IntentProvideInformation, UrgencyLow)
	assert.Equal(t, "commercial", got["property_type"].value)
}

func TestApplyCriteria(t *testing.T) {
	defs := DefaultCriteria()
	current := make(map[string]Criterion)
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

	changed := applyCriteria(current, defs, map[string]extraction{CriterionOwnership: {value: "owner", score: 1}}, 1, now)
	assert.Equal(t, []string{CriterionOwnership}, changed)
	assert.Equal(t, 2.5, current[CriterionOwnership].Weight)

	// 相同取值不覆盖
	changed = applyCriteria(current, defs, map[string]extraction{CriterionOwnership: {value: "owner", score: 1}}, 3, now.Add(time.Minute))
	assert.Empty(t, changed)
	assert.Equal(t, 1, current[CriterionOwnership].TurnIndex)

	// 矛盾时以最新为准
	changed = applyCriteria(current, defs, map[string]extraction{CriterionOwnership: {value: "renter", score: 0.3}}, 5, now.Add(2*time.Minute))
	assert.Equal(t, []string{CriterionOwnership}, changed)
	assert.Equal(t, "renter", current[CriterionOwnership].Value)
	assert.Equal(t, 5, current[CriterionOwnership].TurnIndex)
}

func TestQualificationScore(t *testing.T) {
	defs := DefaultCriteria()
	assert.Zero(t, qualificationScore(defs, map[string]Criterion{}))
	assert.Zero(t, qualificationScore(nil, map[string]Criterion{}))

	full := make(map[string]Criterion)
	for _, d := range defs {
		full[d.Name] = Criterion{Name: d.Name, Score: 1}
	}
	assert.Equal(t, 10.0, qualificationScore(defs, full))

	full[CriterionIntent] = Criterion{Name: CriterionIntent, Score: 5}
	assert.Equal(t, 10.0, qualificationScore(defs, full))

	partial := map[string]Criterion{
		CriterionOwnership: {Score: 1},
		CriterionUrgency:   {Score: 0.6},
	}
	assert.InDelta(t, 4.0, qualificationScore(defs, partial), 0.001)

	name, q := nextQuestion(defs, partial)
	assert.Equal(t, CriterionAssetAge, name)
	assert.NotEmpty(t, q)
}

func TestExtractPreferences(t *testing.T) {
	prefs := extractPreferences(newPhraseSet("next week in the evening"), UrgencyLow)
	assert.Equal(t, models.AppointmentPreferences{Date: "next_week", TimeOfDay: "evening"}, prefs)

	prefs = extractPreferences(newPhraseSet("Thursday after work"), UrgencyMedium)
	assert.Equal(t, "thursday", prefs.Date)
	assert.Equal(t, "evening", prefs.TimeOfDay)

	prefs = extractPreferences(newPhraseSet("asap please"), UrgencyHigh)
	assert.Equal(t, "today", prefs.Date)
	assert.True(t, prefs.Urgent)

	assert.True(t, extractPreferences(newPhraseSet("sounds good"), UrgencyLow).Empty())
}

func TestLookupKnowledge(t *testing.T) {
	entries := []models.KnowledgeEntry{
		{Topic: "warranty", Keywords: []string{"warranty"}, Answer: "Ten years parts."},
		{Topic: "pricing", Keywords: []string{"price", "cost", "how much"}, Answer: "$89 diagnostic."},
	}
	entry, ok := lookupKnowledge(entries, newPhraseSet("how much does the warranty cost"))
	require.True(t, ok)
	assert.Equal(t, "pricing", entry.Topic)

	_, ok = lookupKnowledge(entries, newPhraseSet("hello"))
	assert.False(t, ok)
}
