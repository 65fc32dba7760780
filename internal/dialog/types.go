package dialog

import (
	"time"

	"ai_call_agent/internal/models"
)

// Role 发言方
type Role string

// 发言方
const (
	RoleAssistant Role = "assistant"
	RoleCustomer  Role = "customer"
)

// Urgency 紧急程度
type Urgency string

// 紧急程度
const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Intent 客户意图
type Intent string

// 客户意图
const (
	IntentGreeting            Intent = "greeting"
	IntentRequestHuman        Intent = "request_human"
	IntentEmergency           Intent = "emergency"
	IntentScheduleAppointment Intent = "schedule_appointment"
	IntentPricingQuestion     Intent = "pricing_question"
	IntentServiceQuestion     Intent = "service_question"
	IntentObjection           Intent = "objection"
	IntentAffirmative         Intent = "affirmative"
	IntentNegative            Intent = "negative"
	IntentProvideInformation  Intent = "provide_information"
	IntentUnknown             Intent = "unknown"
)

// Action 建议的下一步动作
type Action string

// 下一步动作
const (
	ActionContinue        Action = "continue"
	ActionClarify         Action = "clarify"
	ActionBookAppointment Action = "book_appointment"
	ActionTransfer        Action = "transfer"
	ActionEndCall         Action = "end_call"
)

// TransferReason 转人工原因
type TransferReason string

// 转人工原因，按优先级从高到低
const (
	TransferCustomerRequest   TransferReason = "customer_request"
	TransferLowConfidence     TransferReason = "low_confidence"
	TransferMaxClarifications TransferReason = "max_clarifications"
)

// SentimentTrend 情绪趋势
type SentimentTrend string

// 情绪趋势
const (
	TrendImproving SentimentTrend = "improving"
	TrendDeclining SentimentTrend = "declining"
	TrendStable    SentimentTrend = "stable"
)

// SuggestedEmergencyService 高紧急度时附加的建议动作
const SuggestedEmergencyService = "emergency_service"

// Turn 一轮发言，追加后不再修改
type Turn struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Intent     Intent    `json:"intent,omitempty"`
	Confidence float64   `json:"confidence"`
	Urgency    Urgency   `json:"urgency,omitempty"`
	Sentiment  float64   `json:"sentiment"`
}

// Criterion 已采集的资质项
type Criterion struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	Score     float64   `json:"score"`
	Weight    float64   `json:"weight"`
	TurnIndex int       `json:"turn_index"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Response 一轮客户输入的处理结果
type Response struct {
	Content               string                         `json:"content"`
	Intent                Intent                         `json:"intent"`
	Confidence            float64                        `json:"confidence"`
	Urgency               Urgency                        `json:"urgency"`
	SuggestedActions      []string                       `json:"suggestedActions"`
	NeedsClarification    bool                           `json:"needsClarification"`
	ClarificationQuestion string                         `json:"clarificationQuestion,omitempty"`
	ShouldTransferToHuman bool                           `json:"shouldTransferToHuman"`
	TransferReason        TransferReason                 `json:"transferReason,omitempty"`
	Action                Action                         `json:"action"`
	NextState             State                          `json:"nextState"`
	QualificationScore    float64                        `json:"qualificationScore"`
	AppointmentPrefs      *models.AppointmentPreferences `json:"appointmentPreferences,omitempty"`
	AlternativeSlots      []models.Slot                  `json:"alternativeSlots,omitempty"`
	Booking               *models.BookingResult          `json:"booking,omitempty"`
	Warning               string                         `json:"warning,omitempty"`
}

// Metrics 通话统计
type Metrics struct {
	Duration           time.Duration  `json:"duration"`
	TurnCount          int            `json:"turnCount"`
	AverageLatency     time.Duration  `json:"averageLatency"`
	AverageConfidence  float64        `json:"averageConfidence"`
	Sentiment          float64        `json:"sentiment"`
	SentimentTrend     SentimentTrend `json:"sentimentTrend"`
	QualificationScore float64        `json:"qualificationScore"`
	Qualified          bool           `json:"qualified"`
}

// SessionInfo 通话标识
type SessionInfo struct {
	CallID   string `json:"call_id"`
	LeadID   string `json:"lead_id"`
	TenantID string `json:"tenant_id"`
	Industry string `json:"industry"`
}
