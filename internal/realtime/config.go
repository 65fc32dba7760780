package realtime

import (
	"time"

	"github.com/jonboulle/clockwork"

	"ai_call_agent/internal/realtime/protocol"
)

// 默认参数
const (
	DefaultConnectTimeout   = 10 * time.Second
	DefaultToolTimeout      = 10 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultPendingLimit     = 512
	DefaultEventBuffer      = 256
	maxMessageSize          = 16 * 1024 * 1024
	outboundQueueSize       = 1024
)

// TurnDetection 服务端VAD参数
type TurnDetection struct {
	Threshold       float64       // 触发阈值 0~1
	PrefixPadding   time.Duration // 语音前保留的音频
	SilenceDuration time.Duration // 判定说话结束的静音时长
	Disabled        bool          // 关闭服务端VAD，改由调用方手动提交
	ManualResponse  bool          // 检测到说话结束后不自动生成回复
}

// ReconnectPolicy 异常断开后的重连策略
type ReconnectPolicy struct {
	MaxAttempts int           // 最大尝试次数，0表示不重连
	BaseDelay   time.Duration // 首次重连前等待
	MaxDelay    time.Duration // 单次等待上限
}

// Config 实时客户端配置
type Config struct {
	URL                string
	APIKey             string
	Model              string
	Voice              string
	Instructions       string
	Modalities         []string
	InputAudioFormat   string
	OutputAudioFormat  string
	TranscriptionModel string
	TurnDetection      TurnDetection

	ConnectTimeout   time.Duration
	ToolTimeout      time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration // 0 表示不发送心跳
	PendingLimit     int
	EventBuffer      int
	Reconnect        ReconnectPolicy

	// Clock 用于所有计时器，测试中可替换为虚拟时钟
	Clock clockwork.Clock
}

// DefaultReconnectPolicy 默认重连策略：500ms起指数退避，上限8s，最多5次
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
	}
}

// withDefaults 补全未设置的配置项
func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = DefaultToolTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.PendingLimit <= 0 {
		c.PendingLimit = DefaultPendingLimit
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	if len(c.Modalities) == 0 {
		c.Modalities = []string{"audio", "text"}
	}
	if c.InputAudioFormat == "" {
		c.InputAudioFormat = "pcm16"
	}
	if c.OutputAudioFormat == "" {
		c.OutputAudioFormat = "pcm16"
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return c
}

// toProtocol 转换为协议中的turn_detection字段
func (t TurnDetection) toProtocol() *protocol.TurnDetection {
	if t.Disabled {
		return nil
	}
	td := &protocol.TurnDetection{
		Type:              "server_vad",
		Threshold:         t.Threshold,
		PrefixPaddingMs:   int(t.PrefixPadding / time.Millisecond),
		SilenceDurationMs: int(t.SilenceDuration / time.Millisecond),
	}
	if t.ManualResponse {
		auto := false
		td.CreateResponse = &auto
	}
	return td
}

// validate 检查VAD参数范围
func (t TurnDetection) validate() error {
	if t.Disabled {
		return nil
	}
	if t.Threshold < 0 || t.Threshold > 1 {
		return ErrInvalidParams
	}
	if t.PrefixPadding < 0 || t.SilenceDuration < 0 {
		return ErrInvalidParams
	}
	return nil
}

// Session 一次连接对应的远端会话
type Session struct {
	ID                string
	Model             string
	Voice             string
	Modalities        []string
	InputAudioFormat  string
	OutputAudioFormat string
	TurnDetection     TurnDetection
	CreatedAt         time.Time
}

// sessionFromInfo 由远端会话信息构建 Session
func sessionFromInfo(info protocol.SessionInfo, now time.Time) Session {
	s := Session{
		ID:                info.ID,
		Model:             info.Model,
		Voice:             info.Voice,
		Modalities:        info.Modalities,
		InputAudioFormat:  info.InputAudioFormat,
		OutputAudioFormat: info.OutputAudioFormat,
		CreatedAt:         now,
	}
	if td := info.TurnDetection; td != nil {
		s.TurnDetection = TurnDetection{
			Threshold:       td.Threshold,
			PrefixPadding:   time.Duration(td.PrefixPaddingMs) * time.Millisecond,
			SilenceDuration: time.Duration(td.SilenceDurationMs) * time.Millisecond,
		}
	} else {
		s.TurnDetection.Disabled = true
	}
	return s
}
