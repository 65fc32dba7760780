package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"ai_call_agent/internal/models"
)

const (
	emergencyInput = "My AC completely stopped working and it's 95 degrees!"
	humanInput     = "I want to speak to a real person"
	gibberishInput = "the purple elephant sings loudly"
)

func testScript() *models.Script {
	return &models.Script{
		ID:              "hvac-test",
		Industry:        "hvac",
		Greeting:        "Hi, this is Alex from CoolAir.",
		Introduction:    "I'm following up about your heating and cooling service.",
		Closing:         "Thanks for choosing CoolAir!",
		TransferMessage: "Connecting you to a specialist now.",
		Knowledge: []models.KnowledgeEntry{
			{Topic: "pricing", Keywords: []string{"how much", "price", "cost"}, Answer: "Our diagnostic visit is $89."},
		},
		Objections: []models.ObjectionTemplate{
			{Keywords: []string{"too expensive"}, Response: "We offer financing with no interest for 12 months."},
		},
	}
}

// fakeScheduler 记录预约请求并返回预设结果
type fakeScheduler struct {
	mu       sync.Mutex
	requests []models.BookingRequest
	result   *models.BookingResult
	err      error
}

func (s *fakeScheduler) Book(_ context.Context, req models.BookingRequest) (*models.BookingResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.result, s.err
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	cfg.Clock = clock
	e, err := NewEngine(SessionInfo{CallID: "call-1", LeadID: "lead-1", TenantID: "tenant-a", Industry: "hvac"}, testScript(), cfg)
	require.NoError(t, err)
	return e, clock
}

func startedEngine(t *testing.T, cfg Config) (*Engine, clockwork.FakeClock) {
	t.Helper()
	e, clock := newTestEngine(t, cfg)
	require.NotEmpty(t, e.StartConversation())
	return e, clock
}

func TestNewEngine_RequiresScript(t *testing.T) {
	_, err := NewEngine(SessionInfo{CallID: "c"}, nil, Config{})
	assert.ErrorIs(t, err, ErrNoScript)
}

func TestStartConversation(t *testing.T) {
	e, _ := newTestEngine(t, Config{})
	assert.Equal(t, StateGreeting, e.CurrentState())

	greeting := e.StartConversation()
	assert.Contains(t, greeting, "Alex from CoolAir")
	assert.Equal(t, StateIntroduction, e.CurrentState())

	history := e.History()
	require.Len(t, history, 1)
	assert.Equal(t, RoleAssistant, history[0].Role)

	// 重复开场不产生新的轮次
	assert.Empty(t, e.StartConversation())
	assert.Len(t, e.History(), 1)
}

func TestProcessCustomerInput_Emergency(t *testing.T) {
	e, _ := startedEngine(t, Config{})

	resp := e.ProcessCustomerInput(context.Background(), emergencyInput)

	assert.Equal(t, UrgencyHigh, resp.Urgency)
	assert.Contains(t, resp.SuggestedActions, SuggestedEmergencyService)
	assert.False(t, resp.ShouldTransferToHuman)
	assert.Equal(t, StateQualification, resp.NextState)
	assert.Equal(t, IntentProvideInformation, resp.Intent)
	assert.Contains(t, resp.Content, "urgent")
}

func TestProcessCustomerInput_RequestHuman(t *testing.T) {
	e, _ := startedEngine(t, Config{})

	resp := e.ProcessCustomerInput(context.Background(), humanInput)

	assert.True(t, resp.ShouldTransferToHuman)
	assert.Equal(t, TransferCustomerRequest, resp.TransferReason)
	assert.Equal(t, ActionTransfer, resp.Action)
	assert.Equal(t, StateTransferToHuman, resp.NextState)
	assert.Equal(t, "Connecting you to a specialist now.", resp.Content)

	// 转人工后继续说话仍然保持转接
	again := e.ProcessCustomerInput(context.Background(), "hello?")
	assert.True(t, again.ShouldTransferToHuman)
	assert.Equal(t, StateTransferToHuman, e.CurrentState())
}

func TestProcessCustomerInput_EmptyInput(t *testing.T) {
	e, _ := startedEngine(t, Config{})

	for i, input := range []string{"", "   \t "} {
		resp := e.ProcessCustomerInput(context.Background(), input)
		assert.Contains(t, resp.Content, "didn't catch that", "第%d次", i+1)
		assert.True(t, resp.NeedsClarification)
		assert.False(t, resp.ShouldTransferToHuman)
		assert.Empty(t, resp.Warning)
		assert.Equal(t, ActionClarify, resp.Action)
	}

	// 空输入不追加客户轮次
	for _, turn := range e.History() {
		assert.Equal(t, RoleAssistant, turn.Role)
	}

	third := e.ProcessCustomerInput(context.Background(), "")
	assert.Contains(t, third.Content, "didn't catch that")
	assert.True(t, third.ShouldTransferToHuman)
	assert.Equal(t, TransferMaxClarifications, third.TransferReason)
}

func TestProcessCustomerInput_MaxClarifications(t *testing.T) {
	e, _ := startedEngine(t, Config{})

	first := e.ProcessCustomerInput(context.Background(), gibberishInput)
	assert.True(t, first.NeedsClarification)
	assert.NotEmpty(t, first.ClarificationQuestion)
	assert.False(t, first.ShouldTransferToHuman)

	second := e.ProcessCustomerInput(context.Background(), gibberishInput)
	assert.False(t, second.ShouldTransferToHuman)

	third := e.ProcessCustomerInput(context.Background(), gibberishInput)
	assert.True(t, third.ShouldTransferToHuman)
	assert.Equal(t, TransferMaxClarifications, third.TransferReason)
	assert.Equal(t, StateTransferToHuman, third.NextState)
}

func TestProcessCustomerInput_ClarificationCounterResets(t *testing.T) {
	e, _ := startedEngine(t, Config{})

	e.ProcessCustomerInput(context.Background(), gibberishInput)
	e.ProcessCustomerInput(context.Background(), gibberishInput)
	answered := e.ProcessCustomerInput(context.Background(), "My furnace is 12 years old")
	assert.False(t, answered.NeedsClarification)

	resp := e.ProcessCustomerInput(context.Background(), gibberishInput)
	assert.True(t, resp.NeedsClarification)
	assert.False(t, resp.ShouldTransferToHuman)
}

func TestProcessCustomerInput_MaxClarificationsConfigurable(t *testing.T) {
	e, _ := startedEngine(t, Config{MaxClarifications: 4})

	for i := 0; i < 3; i++ {
		resp := e.ProcessCustomerInput(context.Background(), gibberishInput)
		assert.False(t, resp.ShouldTransferToHuman)
	}
	resp := e.ProcessCustomerInput(context.Background(), gibberishInput)
	assert.Equal(t, TransferMaxClarifications, resp.TransferReason)
}

func TestProcessCustomerInput_LowConfidence(t *testing.T) {
	e, _ := startedEngine(t, Config{})

	resp := e.ProcessCustomerInput(context.Background(), "um uh hmm")
	assert.Less(t, resp.Confidence, DefaultLowConfidenceThreshold)
	assert.True(t, resp.ShouldTransferToHuman)
	assert.Equal(t, TransferLowConfidence, resp.TransferReason)
}

func TestProcessCustomerInput_Truncation(t *testing.T) {
	e, _ := startedEngine(t, Config{})

	long := strings.Repeat("x", 1500)
	resp := e.ProcessCustomerInput(context.Background(), long)
	assert.NotEmpty(t, resp.Warning)

	history := e.History()
	var customer Turn
	for _, turn := range history {
		if turn.Role == RoleCustomer {
			customer = turn
		}
	}
	assert.Equal(t, DefaultMaxInputLength, len([]rune(customer.Content)))
}

func TestProcessCustomerInput_ReasoningFailure(t *testing.T) {
	tests := []struct {
		name   string
		reason func(string) (*analysis, error)
	}{
		{"panic", func(string) (*analysis, error) { panic("boom") }},
		{"错误", func(string) (*analysis, error) { return nil, errors.New("classifier unavailable") }},
		{"空结果", func(string) (*analysis, error) { return nil, nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := startedEngine(t, Config{})
			e.reason = tt.reason

			resp := e.ProcessCustomerInput(context.Background(), "I need help with my furnace")
			assert.Equal(t, ReplyReasoningFailed, resp.Content)
			assert.True(t, resp.NeedsClarification)
			assert.False(t, resp.ShouldTransferToHuman)
			assert.Equal(t, StateIntroduction, resp.NextState)
		})
	}
}

func TestProcessCustomerInput_QualifiesAndBooks(t *testing.T) {
	slot := models.Slot{Start: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC), End: time.Date(2026, 10, 16, 11, 0, 0, 0, time.UTC)}
	scheduler := &fakeScheduler{result: &models.BookingResult{Status: models.BookingConfirmed, ConfirmationID: "CONF-1", Slot: &slot}}
	e, _ := startedEngine(t, Config{Scheduler: scheduler})

	first := e.ProcessCustomerInput(context.Background(), "I own my home and the unit is 15 years old")
	assert.Equal(t, StateQualification, first.NextState)
	assert.InDelta(t, 4.5, first.QualificationScore, 0.001)

	criteria := e.QualificationCriteria()
	assert.Equal(t, "owner", criteria[CriterionOwnership].Value)
	assert.Equal(t, "15 years", criteria[CriterionAssetAge].Value)

	second := e.ProcessCustomerInput(context.Background(), "It stopped working this week, can you send someone tomorrow morning?")
	assert.Equal(t, IntentScheduleAppointment, second.Intent)
	assert.Equal(t, StateAppointmentBooking, second.NextState)
	assert.Equal(t, ActionBookAppointment, second.Action)
	assert.Nil(t, second.Booking)
	require.NotNil(t, second.AppointmentPrefs)
	assert.Equal(t, "tomorrow", second.AppointmentPrefs.Date)
	assert.Equal(t, "morning", second.AppointmentPrefs.TimeOfDay)
	assert.Contains(t, second.Content, "tomorrow in the morning")
	assert.Empty(t, scheduler.requests)

	third := e.ProcessCustomerInput(context.Background(), "Yes please")
	assert.Equal(t, IntentAffirmative, third.Intent)
	assert.Equal(t, StateClosing, third.NextState)
	assert.Equal(t, ActionEndCall, third.Action)
	require.NotNil(t, third.Booking)
	assert.Equal(t, "CONF-1", third.Booking.ConfirmationID)
	require.NotNil(t, third.AppointmentPrefs)
	assert.Equal(t, "tomorrow", third.AppointmentPrefs.Date)
	assert.Equal(t, "morning", third.AppointmentPrefs.TimeOfDay)
	assert.Contains(t, third.Content, "Friday, October 16 at 9:00 AM")

	assert.True(t, e.Qualified())
	assert.GreaterOrEqual(t, e.QualificationScore(), DefaultQualifiedScore)

	require.Len(t, scheduler.requests, 1)
	assert.Equal(t, "tenant-a", scheduler.requests[0].TenantID)
	assert.Equal(t, "call-1", scheduler.requests[0].CallID)
}

func TestProcessCustomerInput_BookingConflict(t *testing.T) {
	alts := []models.Slot{
		{Start: time.Date(2026, 10, 17, 13, 0, 0, 0, time.UTC)},
		{Start: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)},
	}
	scheduler := &fakeScheduler{result: &models.BookingResult{Status: models.BookingConflict, Alternatives: alts}}
	e, _ := startedEngine(t, Config{Scheduler: scheduler})

	e.ProcessCustomerInput(context.Background(), "My heater is broken")
	offer := e.ProcessCustomerInput(context.Background(), "Can you schedule someone for tomorrow afternoon?")
	assert.Equal(t, StateAppointmentBooking, offer.NextState)
	assert.Empty(t, offer.AlternativeSlots)

	resp := e.ProcessCustomerInput(context.Background(), "Yes, go ahead")
	assert.Equal(t, StateAppointmentBooking, resp.NextState)
	assert.Len(t, resp.AlternativeSlots, 2)
	assert.Contains(t, resp.Content, "already taken")
	assert.Equal(t, ActionBookAppointment, resp.Action)
}

func TestProcessCustomerInput_SchedulerError(t *testing.T) {
	scheduler := &fakeScheduler{err: errors.New("scheduling backend down")}
	e, _ := startedEngine(t, Config{Scheduler: scheduler})

	e.ProcessCustomerInput(context.Background(), "My heater is broken")
	e.ProcessCustomerInput(context.Background(), "Please book me for Monday morning")
	resp := e.ProcessCustomerInput(context.Background(), "Yes")

	assert.Equal(t, StateAppointmentBooking, resp.NextState)
	assert.Equal(t, ActionContinue, resp.Action)
	assert.Contains(t, resp.Content, "another day")
}

func TestProcessCustomerInput_Objections(t *testing.T) {
	e, _ := startedEngine(t, Config{})

	pricing := e.ProcessCustomerInput(context.Background(), "I want to know how much it costs")
	assert.Equal(t, IntentPricingQuestion, pricing.Intent)
	assert.Contains(t, pricing.Content, "$89")
	assert.Equal(t, StateQualification, pricing.NextState)

	objection := e.ProcessCustomerInput(context.Background(), "That's too expensive")
	assert.Equal(t, IntentObjection, objection.Intent)
	assert.Equal(t, StateObjectionHandling, objection.NextState)
	assert.Contains(t, objection.Content, "financing")

	second := e.ProcessCustomerInput(context.Background(), "I'm not interested")
	assert.Equal(t, StateClosing, second.NextState)
	assert.Equal(t, ActionEndCall, second.Action)
	assert.Contains(t, second.Content, "Thanks for choosing CoolAir")
}

func TestProcessCustomerInput_UrgentBookingTakesTwoTurns(t *testing.T) {
	e, _ := startedEngine(t, Config{})

	first := e.ProcessCustomerInput(context.Background(), "hello")
	assert.Equal(t, StateQualification, first.NextState)

	urgent := e.ProcessCustomerInput(context.Background(), emergencyInput)
	assert.Equal(t, StateAppointmentBooking, urgent.NextState)
	assert.True(t, CanTransition(StateQualification, urgent.NextState))
	assert.Equal(t, ActionBookAppointment, urgent.Action)
	assert.Contains(t, urgent.Content, "What day and time")
	require.NotNil(t, urgent.AppointmentPrefs)
	assert.True(t, urgent.AppointmentPrefs.Urgent)

	slot := e.ProcessCustomerInput(context.Background(), "Can you send someone today in the afternoon")
	assert.Equal(t, StateClosing, slot.NextState)
	assert.Contains(t, slot.Content, "we'll get that scheduled")
	require.NotNil(t, slot.AppointmentPrefs)
	assert.Equal(t, "today", slot.AppointmentPrefs.Date)
	assert.True(t, slot.AppointmentPrefs.Urgent)
}

func TestProcessCustomerInput_BoundsAndTransitions(t *testing.T) {
	inputs := []string{
		"hello", "My AC completely stopped working and it's 95 degrees!", "yes", "no", "maybe yes no",
		"how much is a tune up", "um like you know", "I rent an apartment", "it's 20 years old",
		"That's too expensive", "sure, tomorrow evening works", strings.Repeat("word ", 400), "ok",
	}
	for start := 0; start < len(inputs); start++ {
		e, _ := startedEngine(t, Config{})
		prev := e.CurrentState()
		for i := 0; i < len(inputs); i++ {
			resp := e.ProcessCustomerInput(context.Background(), inputs[(start+i)%len(inputs)])
			assert.GreaterOrEqual(t, resp.Confidence, 0.0)
			assert.LessOrEqual(t, resp.Confidence, 1.0)
			assert.GreaterOrEqual(t, resp.QualificationScore, 0.0)
			assert.LessOrEqual(t, resp.QualificationScore, 10.0)
			assert.True(t, CanTransition(prev, resp.NextState), "%s -> %s", prev, resp.NextState)
			prev = resp.NextState
		}
	}
}

func TestSetState(t *testing.T) {
	e, _ := startedEngine(t, Config{})

	require.NoError(t, e.SetState(StateAppointmentBooking))
	assert.Equal(t, StateAppointmentBooking, e.CurrentState())

	err := e.SetState(State("BOGUS"))
	assert.ErrorIs(t, err, ErrUnknownState)
	assert.Equal(t, StateAppointmentBooking, e.CurrentState())
}

func TestConversationMetrics(t *testing.T) {
	e, clock := startedEngine(t, Config{})

	for _, input := range []string{
		"My furnace is terrible",
		"My heater is awful",
		"Yes, that sounds great",
		"Okay, thanks, that's helpful",
	} {
		e.ProcessCustomerInput(context.Background(), input)
	}
	clock.Advance(2 * time.Minute)

	m := e.ConversationMetrics()
	assert.Equal(t, 2*time.Minute, m.Duration)
	assert.Equal(t, 9, m.TurnCount)
	assert.InDelta(t, 0.75, m.AverageConfidence, 0.001)
	assert.Equal(t, TrendImproving, m.SentimentTrend)
	assert.InDelta(t, 0, m.Sentiment, 0.001)
}

func TestTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	e, _ := startedEngine(t, Config{TracerProvider: tp})
	e.ProcessCustomerInput(context.Background(), emergencyInput)

	e.reason = func(string) (*analysis, error) { panic("boom") }
	e.ProcessCustomerInput(context.Background(), "anything")

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "dialog.ProcessCustomerInput", spans[0].Name())

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "call-1", attrs["call.id"].AsString())
	assert.Equal(t, "high", attrs["dialog.urgency"].AsString())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestSnapshotRestore(t *testing.T) {
	e, _ := startedEngine(t, Config{})
	e.ProcessCustomerInput(context.Background(), "I own my home and the unit is 15 years old")
	e.ProcessCustomerInput(context.Background(), gibberishInput)

	data, err := json.Marshal(e.Snapshot())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))

	restored, err := Restore(snap, testScript(), Config{Clock: clockwork.NewFakeClock()})
	require.NoError(t, err)
	assert.Equal(t, e.CurrentState(), restored.CurrentState())
	assert.Equal(t, len(e.History()), len(restored.History()))
	assert.Equal(t, e.QualificationScore(), restored.QualificationScore())
	assert.Equal(t, e.Info(), restored.Info())

	// 恢复后连续追问次数延续
	restored.ProcessCustomerInput(context.Background(), gibberishInput)
	resp := restored.ProcessCustomerInput(context.Background(), gibberishInput)
	assert.Equal(t, TransferMaxClarifications, resp.TransferReason)

	snap.State = "BOGUS"
	_, err = Restore(snap, testScript(), Config{})
	assert.ErrorIs(t, err, ErrUnknownState)
}
