package realtime

import "ai_call_agent/internal/realtime/protocol"

// Event 客户端对外发出的事件，取值为本文件中定义的具体类型之一
type Event interface {
	isEvent()
}

// AudioResponse 解码后的合成音频片段
type AudioResponse struct {
	ResponseID string
	Audio      []byte
}

// AudioResponseDone 一次回复的音频结束
type AudioResponseDone struct {
	ResponseID string
}

// TextResponse 回复文本片段（文本或语音文字稿）
type TextResponse struct {
	ResponseID string
	Delta      string
}

// TextResponseComplete 回复文本结束
type TextResponseComplete struct {
	ResponseID string
	Text       string
}

// Transcript 客户语音的转写文本
type Transcript struct {
	ItemID string
	Text   string
}

// SpeechStarted 远端检测到客户开始说话
type SpeechStarted struct {
	AudioStartMs int
}

// SpeechStopped 远端检测到客户停止说话
type SpeechStopped struct {
	AudioEndMs int
}

// SessionCreated 新的远端会话已建立（首次连接或重连）
type SessionCreated struct {
	Session   Session
	Reconnect bool
}

// SessionUpdated 远端确认了会话更新
type SessionUpdated struct {
	Session Session
}

// ErrorEvent 连接、协议或工具错误
type ErrorEvent struct {
	Err error
}

// RateLimitsUpdated 远端限流状态
type RateLimitsUpdated struct {
	Limits []protocol.RateLimit
}

// Disconnected 连接已断开；Final 为 true 时不会再重连
type Disconnected struct {
	Code   int
	Reason string
	Final  bool
}

func (AudioResponse) isEvent()        {}
func (AudioResponseDone) isEvent()    {}
func (TextResponse) isEvent()         {}
func (TextResponseComplete) isEvent() {}
func (Transcript) isEvent()           {}
func (SpeechStarted) isEvent()        {}
func (SpeechStopped) isEvent()        {}
func (SessionCreated) isEvent()       {}
func (SessionUpdated) isEvent()       {}
func (ErrorEvent) isEvent()           {}
func (RateLimitsUpdated) isEvent()    {}
func (Disconnected) isEvent()         {}
