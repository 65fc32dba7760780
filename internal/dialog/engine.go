// Package dialog 实现通话的对话状态机与逐轮推理流水线
package dialog

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ai_call_agent/internal/metrics"
	"ai_call_agent/internal/models"
)

const tracerName = "ai_call_agent/internal/dialog"

// 固定话术
const (
	ReplyEmptyInput      = "I'm sorry, I didn't catch that. Could you please repeat?"
	ReplyReasoningFailed = "I'm sorry, I'm having trouble understanding. Could you say that another way?"

	defaultTransfer      = "Let me connect you with a member of our team who can help. Please hold for a moment."
	defaultClosing       = "Thank you for your time today. Have a great day!"
	defaultBookingPrompt = "What day and time would work best for a technician to come out?"
	defaultClarify       = "Could you tell me a little more about what's going on?"
	defaultObjection     = "I completely understand. Would it help if we started with a free, no-obligation estimate?"
	offerBooking         = "Would you like us to schedule a visit?"

	// askBooking 上一轮询问了是否预约
	askBooking = "booking"
)

// analysis 推理流水线的输出
type analysis struct {
	intent      Intent
	confidence  float64
	urgency     Urgency
	sentiment   float64
	criteria    map[string]extraction
	knowledge   *models.KnowledgeEntry
	objection   string
	preferences models.AppointmentPreferences
}

// Engine 单通电话的对话状态机，所有方法并发安全
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	clock  clockwork.Clock
	tracer trace.Tracer

	info         SessionInfo
	script       *models.Script
	criteriaDefs []models.CriterionDefinition

	state          State
	history        []Turn
	criteria       map[string]Criterion
	score          float64
	clarifications int
	objections     int
	transferReason TransferReason
	pendingAsk     string
	bookingPrefs   models.AppointmentPreferences
	startedAt      time.Time
	latencies      []time.Duration

	// reason 可在测试中替换
	reason func(text string) (*analysis, error)
}

// NewEngine 为一通电话创建对话引擎
func NewEngine(info SessionInfo, script *models.Script, cfg Config) (*Engine, error) {
	if script == nil {
		return nil, ErrNoScript
	}
	cfg = cfg.withDefaults()
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	defs := script.Criteria
	if len(defs) == 0 {
		defs = DefaultCriteria()
	}

	e := &Engine{
		cfg:          cfg,
		clock:        cfg.Clock,
		tracer:       tp.Tracer(tracerName),
		info:         info,
		script:       script,
		criteriaDefs: defs,
		state:        StateGreeting,
		criteria:     make(map[string]Criterion),
		startedAt:    cfg.Clock.Now(),
	}
	e.reason = e.analyze
	return e, nil
}

// Info 通话标识
func (e *Engine) Info() SessionInfo {
	return e.info
}

// StartConversation 进入自我介绍阶段并返回开场白
func (e *Engine) StartConversation() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateGreeting {
		log.Printf("[WARN] 对话已开始，忽略重复的开场: call_id=%s, state=%s", e.info.CallID, e.state)
		return ""
	}
	content := strings.TrimSpace(e.script.Greeting + " " + e.script.Introduction)
	e.transition(StateIntroduction)
	e.appendAssistant(content)
	log.Printf("[INFO] 对话开始: call_id=%s, script=%s", e.info.CallID, e.script.ID)
	return content
}

// ProcessCustomerInput 处理一轮客户输入，内部失败会转换为兜底回复，不会返回错误
func (e *Engine) ProcessCustomerInput(ctx context.Context, text string) *Response {
	ctx, span := e.tracer.Start(ctx, "dialog.ProcessCustomerInput",
		trace.WithAttributes(attribute.String("call.id", e.info.CallID)))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.clock.Now()
	resp := e.process(ctx, span, text)
	latency := e.clock.Since(start)
	e.latencies = append(e.latencies, latency)

	resp.QualificationScore = e.score
	metrics.TurnsTotal.WithLabelValues(string(resp.Intent)).Inc()
	metrics.ReasoningDuration.Observe(latency.Seconds())
	metrics.QualificationScore.Observe(e.score)

	span.SetAttributes(
		attribute.String("dialog.intent", string(resp.Intent)),
		attribute.Float64("dialog.confidence", resp.Confidence),
		attribute.String("dialog.urgency", string(resp.Urgency)),
		attribute.String("dialog.state", string(resp.NextState)),
		attribute.Bool("dialog.transfer", resp.ShouldTransferToHuman),
	)
	return resp
}

func (e *Engine) process(ctx context.Context, span trace.Span, text string) *Response {
	text = strings.TrimSpace(text)

	if e.state.Terminal() {
		return e.terminalReply(text)
	}

	if text == "" {
		verr := &ValidationError{Field: "text", Reason: "为空"}
		log.Printf("[DEBUG] %v: call_id=%s", verr, e.info.CallID)
		return e.clarify(&Response{Intent: IntentUnknown, Urgency: UrgencyLow}, ReplyEmptyInput, ReplyEmptyInput)
	}

	var warning string
	if runes := []rune(text); len(runes) > e.cfg.MaxInputLength {
		verr := &ValidationError{Field: "text", Reason: fmt.Sprintf("超过%d个字符，已截断", e.cfg.MaxInputLength)}
		log.Printf("[WARN] %v: call_id=%s, length=%d", verr, e.info.CallID, len(runes))
		text = string(runes[:e.cfg.MaxInputLength])
		warning = fmt.Sprintf("input truncated to %d characters", e.cfg.MaxInputLength)
	}

	a, err := e.safeReason(text)
	if err != nil {
		log.Printf("[ERROR] %v: call_id=%s", err, e.info.CallID)
		metrics.ReasoningFailures.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "reasoning failed")
		e.appendCustomer(text, &analysis{intent: IntentUnknown, urgency: UrgencyLow})
		resp := e.clarify(&Response{Intent: IntentUnknown, Urgency: UrgencyLow}, ReplyReasoningFailed, ReplyReasoningFailed)
		resp.Warning = warning
		return resp
	}

	turnIndex := e.appendCustomer(text, a)
	if changed := applyCriteria(e.criteria, e.criteriaDefs, a.criteria, turnIndex, e.clock.Now()); len(changed) > 0 {
		e.score = qualificationScore(e.criteriaDefs, e.criteria)
		log.Printf("[DEBUG] 资质更新: call_id=%s, criteria=%v, score=%.1f", e.info.CallID, changed, e.score)
	}

	resp := &Response{
		Intent:           a.intent,
		Confidence:       a.confidence,
		Urgency:          a.urgency,
		SuggestedActions: []string{},
		Warning:          warning,
	}
	if a.urgency == UrgencyHigh {
		resp.SuggestedActions = append(resp.SuggestedActions, SuggestedEmergencyService)
	}

	needsClarification := a.confidence < e.cfg.ClarificationThreshold
	var reason TransferReason
	switch {
	case a.intent == IntentRequestHuman:
		reason = TransferCustomerRequest
	case a.confidence < e.cfg.LowConfidenceThreshold:
		reason = TransferLowConfidence
	}

	switch {
	case reason != "":
		if needsClarification {
			e.clarifications++
		}
		return e.transferTo(resp, reason, "")
	case needsClarification:
		return e.clarify(resp, "I'm sorry, I didn't quite get that.", e.clarificationQuestion())
	}

	e.clarifications = 0
	e.advance(ctx, resp, a)
	e.appendAssistant(resp.Content)
	return resp
}

// safeReason 运行推理流水线，panic 和错误都转换为 ReasoningError
func (e *Engine) safeReason(text string) (a *analysis, err error) {
	defer func() {
		if r := recover(); r != nil {
			a, err = nil, &ReasoningError{Stage: "pipeline", Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	a, err = e.reason(text)
	if err != nil {
		return nil, &ReasoningError{Stage: "pipeline", Err: err}
	}
	if a == nil {
		return nil, &ReasoningError{Stage: "pipeline", Err: fmt.Errorf("空的推理结果")}
	}
	return a, nil
}

// analyze 意图、置信度、资质、紧急度、知识检索依次执行
func (e *Engine) analyze(text string) (*analysis, error) {
	p := newPhraseSet(text)
	intent, matches := classifyIntent(p)
	confidence := scoreConfidence(p, intent, matches)
	urgency := detectUrgency(text, p, intent)

	a := &analysis{
		intent:      intent,
		confidence:  confidence,
		urgency:     urgency,
		sentiment:   scoreSentiment(p),
		criteria:    extractCriteria(e.criteriaDefs, text, p, intent, urgency),
		preferences: extractPreferences(p, urgency),
	}
	if entry, ok := lookupKnowledge(e.script.Knowledge, p); ok {
		a.knowledge = &entry
	}
	if intent == IntentObjection {
		if reply, ok := matchObjection(e.script.Objections, p); ok {
			a.objection = reply
		}
	}
	return a, nil
}

// clarify 追问；连续追问达到上限时转人工
func (e *Engine) clarify(resp *Response, prefix, question string) *Response {
	e.clarifications++
	resp.NeedsClarification = true
	resp.ClarificationQuestion = question
	if resp.SuggestedActions == nil {
		resp.SuggestedActions = []string{}
	}

	if e.clarifications >= e.cfg.MaxClarifications {
		if prefix != ReplyEmptyInput && prefix != ReplyReasoningFailed {
			prefix = ""
		}
		return e.transferTo(resp, TransferMaxClarifications, prefix)
	}

	content := prefix
	if question != prefix {
		content = prefix + " " + question
	}
	resp.Content = content
	resp.Action = ActionClarify
	resp.NextState = e.state
	e.appendAssistant(content)
	return resp
}

// transferTo 转人工并记录原因
func (e *Engine) transferTo(resp *Response, reason TransferReason, prefix string) *Response {
	e.transition(StateTransferToHuman)
	e.transferReason = reason
	metrics.TransfersTotal.WithLabelValues(string(reason)).Inc()
	log.Printf("[INFO] 转人工: call_id=%s, reason=%s, clarifications=%d", e.info.CallID, reason, e.clarifications)

	resp.ShouldTransferToHuman = true
	resp.TransferReason = reason
	resp.Action = ActionTransfer
	resp.NextState = e.state
	resp.Content = firstNonEmpty(e.script.TransferMessage, defaultTransfer)
	if prefix != "" {
		resp.Content = prefix + " " + resp.Content
	}
	if resp.SuggestedActions == nil {
		resp.SuggestedActions = []string{}
	}
	e.appendAssistant(resp.Content)
	return resp
}

// advance 根据意图、紧急度和资质决定下一阶段并组织回复
func (e *Engine) advance(ctx context.Context, resp *Response, a *analysis) {
	urgent := a.urgency == UrgencyHigh || a.intent == IntentEmergency
	asked := e.pendingAsk
	e.pendingAsk = ""

	next := e.state
	switch e.state {
	case StateGreeting:
		next = StateIntroduction
	case StateIntroduction:
		next = StateQualification
	case StateQualification:
		switch {
		case a.intent == IntentObjection:
			e.objections++
			next = StateObjectionHandling
		case a.intent == IntentNegative && asked == askBooking:
			next = StateObjectionHandling
		case a.intent == IntentScheduleAppointment || urgent || e.score >= e.cfg.QualifiedScore:
			next = StateAppointmentBooking
		case a.intent == IntentAffirmative && asked == askBooking:
			e.markReadyToBook()
			next = StateAppointmentBooking
		}
	case StateObjectionHandling:
		switch {
		case a.intent == IntentObjection:
			e.objections++
			if e.objections >= e.cfg.MaxObjections {
				next = StateClosing
			}
		case a.intent == IntentNegative:
			next = StateClosing
		case a.intent == IntentAffirmative || a.intent == IntentScheduleAppointment || urgent:
			e.markReadyToBook()
			next = StateAppointmentBooking
		}
	case StateAppointmentBooking:
		if a.intent == IntentObjection || a.intent == IntentNegative {
			if a.intent == IntentObjection {
				e.objections++
			}
			next = StateObjectionHandling
		}
	}

	var parts []string
	if a.knowledge != nil && (a.intent == IntentPricingQuestion || a.intent == IntentServiceQuestion) {
		parts = append(parts, a.knowledge.Answer)
	}

	// 进入预约阶段的这一轮只确认时段，下一轮才提交预约
	if e.state == StateAppointmentBooking && next == StateAppointmentBooking {
		prefs := e.bookingPrefs.Merge(a.preferences)
		if a.preferences.HasSlot() || a.intent == IntentAffirmative {
			e.bookingPrefs = prefs
			e.book(ctx, resp, prefs, parts)
			return
		}
	}
	entering := next == StateAppointmentBooking && e.state != StateAppointmentBooking

	e.transition(next)
	resp.NextState = e.state

	switch e.state {
	case StateIntroduction:
		parts = append(parts, e.script.Introduction)
		resp.Action = ActionContinue
	case StateQualification:
		if urgent {
			parts = append(parts, "That sounds urgent, so let's get you help quickly.")
		}
		name, q := nextQuestion(e.criteriaDefs, e.criteria)
		if q == "" || name == CriterionIntent {
			name, q = askBooking, firstNonEmpty(q, offerBooking)
		}
		e.pendingAsk = name
		parts = append(parts, q)
		resp.Action = ActionContinue
	case StateAppointmentBooking:
		if entering {
			e.bookingPrefs = a.preferences
		} else {
			e.bookingPrefs = e.bookingPrefs.Merge(a.preferences)
		}
		if urgent {
			parts = append(parts, "Since this is urgent, we'll prioritize your visit.")
		}
		if e.bookingPrefs.HasSlot() {
			parts = append(parts, fmt.Sprintf("I can put you down for %s. Shall I go ahead and book that?", describePreferences(e.bookingPrefs)))
		} else {
			parts = append(parts, firstNonEmpty(e.script.BookingPrompt, defaultBookingPrompt))
		}
		prefs := e.bookingPrefs
		resp.AppointmentPrefs = &prefs
		resp.Action = ActionBookAppointment
	case StateObjectionHandling:
		parts = append(parts, firstNonEmpty(a.objection, defaultObjection))
		resp.Action = ActionContinue
	case StateClosing:
		parts = append(parts, firstNonEmpty(e.script.Closing, defaultClosing))
		resp.Action = ActionEndCall
	}
	resp.Content = strings.Join(parts, " ")
}

// book 调用排期服务：确认则结束，冲突则给出备选时段
func (e *Engine) book(ctx context.Context, resp *Response, prefs models.AppointmentPreferences, parts []string) {
	resp.AppointmentPrefs = &prefs
	resp.Action = ActionBookAppointment

	if e.cfg.Scheduler == nil {
		e.transition(StateClosing)
		parts = append(parts, "Great, we'll get that scheduled and send you a confirmation shortly.",
			firstNonEmpty(e.script.Closing, defaultClosing))
		resp.Content = strings.Join(parts, " ")
		resp.NextState = e.state
		return
	}

	result, err := e.cfg.Scheduler.Book(ctx, models.BookingRequest{
		TenantID:    e.info.TenantID,
		CallID:      e.info.CallID,
		LeadID:      e.info.LeadID,
		Industry:    e.info.Industry,
		Preferences: prefs,
	})
	switch {
	case err != nil:
		log.Printf("[WARN] 预约失败: call_id=%s, err=%v", e.info.CallID, err)
		parts = append(parts, "I'm having trouble reaching our schedule right now. Is there another day that works for you?")
		resp.Action = ActionContinue
	case result.Status == models.BookingConfirmed:
		resp.Booking = result
		e.transition(StateClosing)
		when := "your requested time"
		if result.Slot != nil {
			when = formatSlot(*result.Slot)
		}
		parts = append(parts, fmt.Sprintf("You're all set for %s.", when), firstNonEmpty(e.script.Closing, defaultClosing))
		resp.Action = ActionEndCall
		log.Printf("[INFO] 预约成功: call_id=%s, confirmation=%s", e.info.CallID, result.ConfirmationID)
	default:
		resp.Booking = result
		resp.AlternativeSlots = result.Alternatives
		parts = append(parts, alternativesText(result.Alternatives))
	}
	resp.NextState = e.state
	resp.Content = strings.Join(parts, " ")
}

// describePreferences 把偏好读成口语，如 "tomorrow in the morning"
func describePreferences(p models.AppointmentPreferences) string {
	var parts []string
	switch p.Date {
	case "":
	case "next_week":
		parts = append(parts, "next week")
	case "today", "tomorrow":
		parts = append(parts, p.Date)
	default:
		parts = append(parts, strings.ToUpper(p.Date[:1])+p.Date[1:])
	}
	if p.TimeOfDay != "" {
		parts = append(parts, "in the "+p.TimeOfDay)
	}
	return strings.Join(parts, " ")
}

func formatSlot(s models.Slot) string {
	return s.Start.Format("Monday, January 2 at 3:04 PM")
}

func alternativesText(slots []models.Slot) string {
	if len(slots) == 0 {
		return "That time isn't available. What other day would work for you?"
	}
	opts := make([]string, 0, len(slots))
	for _, s := range slots {
		opts = append(opts, formatSlot(s))
	}
	return fmt.Sprintf("That time is already taken. I can offer %s. Which works better for you?", strings.Join(opts, " or "))
}

// markReadyToBook 客户同意预约时补全意向项
func (e *Engine) markReadyToBook() {
	found := map[string]extraction{CriterionIntent: {value: "ready_to_book", score: 1}}
	if len(applyCriteria(e.criteria, e.criteriaDefs, found, len(e.history)-1, e.clock.Now())) > 0 {
		e.score = qualificationScore(e.criteriaDefs, e.criteria)
	}
}

// terminalReply 通话已结束或已转人工后的输入
func (e *Engine) terminalReply(text string) *Response {
	if text != "" {
		e.appendCustomer(text, &analysis{intent: IntentUnknown, urgency: UrgencyLow})
	}
	resp := &Response{
		Intent:           IntentUnknown,
		Urgency:          UrgencyLow,
		SuggestedActions: []string{},
		NextState:        e.state,
	}
	if e.state == StateTransferToHuman {
		resp.ShouldTransferToHuman = true
		resp.TransferReason = e.transferReason
		resp.Action = ActionTransfer
		resp.Content = "Please hold while I connect you."
	} else {
		resp.Action = ActionEndCall
		resp.Content = "Thanks again for calling. Goodbye!"
	}
	e.appendAssistant(resp.Content)
	return resp
}

func (e *Engine) clarificationQuestion() string {
	qs := e.script.ClarificationQuestions
	if len(qs) == 0 {
		return defaultClarify
	}
	return qs[e.clarifications%len(qs)]
}

// transition 按状态图跳转，非法跳转保持原阶段
func (e *Engine) transition(to State) {
	if e.state == to {
		return
	}
	if !CanTransition(e.state, to) {
		log.Printf("[ERROR] %v: call_id=%s, from=%s, to=%s", ErrInvalidTransition, e.info.CallID, e.state, to)
		return
	}
	log.Printf("[INFO] 阶段跳转: call_id=%s, %s -> %s", e.info.CallID, e.state, to)
	e.state = to
}

func (e *Engine) appendCustomer(text string, a *analysis) int {
	e.history = append(e.history, Turn{
		Role:       RoleCustomer,
		Content:    text,
		Timestamp:  e.clock.Now(),
		Intent:     a.intent,
		Confidence: a.confidence,
		Urgency:    a.urgency,
		Sentiment:  a.sentiment,
	})
	return len(e.history) - 1
}

func (e *Engine) appendAssistant(content string) {
	e.history = append(e.history, Turn{
		Role:       RoleAssistant,
		Content:    content,
		Timestamp:  e.clock.Now(),
		Confidence: 1,
	})
}

// CurrentState 当前阶段
func (e *Engine) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SetState 外部恢复时直接设置阶段，不受状态图约束
func (e *Engine) SetState(s State) error {
	if !s.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownState, s)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	log.Printf("[INFO] 外部设置阶段: call_id=%s, %s -> %s", e.info.CallID, e.state, s)
	e.state = s
	return nil
}

// History 对话历史副本
func (e *Engine) History() []Turn {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Turn, len(e.history))
	copy(out, e.history)
	return out
}

// QualificationScore 当前资质评分 0~10
func (e *Engine) QualificationScore() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.score
}

// Qualified 是否达到合格线索分数
func (e *Engine) Qualified() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.score >= e.cfg.QualifiedScore
}

// QualificationCriteria 已采集资质项副本
func (e *Engine) QualificationCriteria() map[string]Criterion {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]Criterion, len(e.criteria))
	for k, v := range e.criteria {
		out[k] = v
	}
	return out
}

// ConversationMetrics 通话统计
func (e *Engine) ConversationMetrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	var confidences, sentiments []float64
	for _, t := range e.history {
		if t.Role != RoleCustomer {
			continue
		}
		confidences = append(confidences, t.Confidence)
		sentiments = append(sentiments, t.Sentiment)
	}
	if len(sentiments) > e.cfg.SentimentWindow {
		sentiments = sentiments[len(sentiments)-e.cfg.SentimentWindow:]
	}
	sentiment, trend := sentimentTrend(sentiments)

	var avgLatency time.Duration
	if len(e.latencies) > 0 {
		var total time.Duration
		for _, l := range e.latencies {
			total += l
		}
		avgLatency = total / time.Duration(len(e.latencies))
	}

	return Metrics{
		Duration:           e.clock.Since(e.startedAt),
		TurnCount:          len(e.history),
		AverageLatency:     avgLatency,
		AverageConfidence:  mean(confidences),
		Sentiment:          sentiment,
		SentimentTrend:     trend,
		QualificationScore: e.score,
		Qualified:          e.score >= e.cfg.QualifiedScore,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
