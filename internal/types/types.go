// Package types 定义基本类型
package types

import "time"

// CallStatus 通话状态
type CallStatus string

// 定义通话状态常量
const (
	CallStatusConnecting  CallStatus = "connecting"
	CallStatusActive      CallStatus = "active"
	CallStatusRecovering  CallStatus = "recovering"
	CallStatusTransferred CallStatus = "transferred"
	CallStatusCompleted   CallStatus = "completed"
	CallStatusError       CallStatus = "error"
)

// Terminal 通话是否已经结束
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusTransferred, CallStatusCompleted, CallStatusError:
		return true
	}
	return false
}

// MediaEvent 媒体通道上的文本控制消息
type MediaEvent string

// 定义媒体控制消息常量
const (
	MediaEventCommit    MediaEvent = "commit"
	MediaEventInterrupt MediaEvent = "interrupt"
	MediaEventResponse  MediaEvent = "response"
	MediaEventTransfer  MediaEvent = "transfer"
	MediaEventHangup    MediaEvent = "hangup"
	MediaEventError     MediaEvent = "error"
)

// MediaMessage 媒体通道文本消息
type MediaMessage struct {
	Event   MediaEvent `json:"event"`
	Text    string     `json:"text,omitempty"`
	Reason  string     `json:"reason,omitempty"`
	Summary string     `json:"summary,omitempty"`
}

// TransferSignal 通知电话层将通话转给人工坐席
type TransferSignal struct {
	CallID    string    // 通话ID
	TenantID  string    // 租户ID
	Reason    string    // 转接原因
	Summary   string    // 给坐席的简要说明
	Timestamp time.Time // 触发时间
}

// CallSummary 通话概要
type CallSummary struct {
	CallID            string     `json:"call_id"`
	TenantID          string     `json:"tenant_id"`
	LeadID            string     `json:"lead_id,omitempty"`
	Industry          string     `json:"industry"`
	Status            CallStatus `json:"status"`
	State             string     `json:"state"`
	RealtimeSessionID string     `json:"realtime_session_id,omitempty"`
	Turns             int        `json:"turns"`
	StartedAt         time.Time  `json:"started_at"`
}
