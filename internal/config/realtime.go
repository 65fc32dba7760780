package config

import (
	"time"

	"ai_call_agent/internal/realtime"
)

// RealtimeConfig 远端实时引擎配置
type RealtimeConfig struct {
	Enabled            bool            `yaml:"enabled"`             // 关闭时只能通过文本接口驱动对话
	URL                string          `yaml:"url"`                 // 实时接口地址
	APIKey             string          `yaml:"api_key"`             // API密钥，可由 OPENAI_API_KEY 覆盖
	Model              string          `yaml:"model"`               // 模型名称
	Voice              string          `yaml:"voice"`               // 合成音色
	Instructions       string          `yaml:"instructions"`        // 附加的系统指令
	TranscriptionModel string          `yaml:"transcription_model"` // 客户语音转写模型
	ConnectTimeout     time.Duration   `yaml:"connect_timeout"`     // 等待会话建立的超时时间
	ToolTimeout        time.Duration   `yaml:"tool_timeout"`        // 工具执行超时时间
	PingInterval       time.Duration   `yaml:"ping_interval"`       // 心跳间隔，0表示不发送
	PendingLimit       int             `yaml:"pending_limit"`       // 连接建立前缓存的消息上限
	VAD                VADConfig       `yaml:"vad"`
	Reconnect          ReconnectConfig `yaml:"reconnect"`
}

// VADConfig 服务端语音检测参数
type VADConfig struct {
	Threshold       float64       `yaml:"threshold"`        // 触发阈值 0~1
	PrefixPadding   time.Duration `yaml:"prefix_padding"`   // 语音前保留的音频
	SilenceDuration time.Duration `yaml:"silence_duration"` // 判定说话结束的静音时长
}

// ReconnectConfig 异常断开后的重连策略
type ReconnectConfig struct {
	MaxAttempts int           `yaml:"max_attempts"` // 最大尝试次数
	BaseDelay   time.Duration `yaml:"base_delay"`   // 首次重连前等待
	MaxDelay    time.Duration `yaml:"max_delay"`    // 单次等待上限
}

func (c *RealtimeConfig) setDefaults() {
	if c.URL == "" {
		c.URL = realtime.DefaultURL
	}
	if c.Model == "" {
		c.Model = "gpt-4o-realtime-preview"
	}
	if c.Voice == "" {
		c.Voice = "alloy"
	}
	if c.TranscriptionModel == "" {
		c.TranscriptionModel = "whisper-1"
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = realtime.DefaultConnectTimeout
	}
	if c.ToolTimeout == 0 {
		c.ToolTimeout = realtime.DefaultToolTimeout
	}
	if c.PendingLimit == 0 {
		c.PendingLimit = realtime.DefaultPendingLimit
	}
	if c.VAD.Threshold == 0 {
		c.VAD.Threshold = 0.5
	}
	if c.VAD.PrefixPadding == 0 {
		c.VAD.PrefixPadding = 300 * time.Millisecond
	}
	if c.VAD.SilenceDuration == 0 {
		c.VAD.SilenceDuration = 500 * time.Millisecond
	}
	def := realtime.DefaultReconnectPolicy()
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = def.MaxAttempts
	}
	if c.Reconnect.BaseDelay == 0 {
		c.Reconnect.BaseDelay = def.BaseDelay
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = def.MaxDelay
	}
}

// Validate 验证实时引擎配置
func (c *RealtimeConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.APIKey == "" {
		return ErrEmptyAPIKey
	}
	if c.VAD.Threshold < 0 || c.VAD.Threshold > 1 {
		return ErrInvalidVAD
	}
	if c.Reconnect.MaxAttempts < 0 || c.Reconnect.BaseDelay > c.Reconnect.MaxDelay {
		return ErrInvalidReconnect
	}
	return nil
}

// ClientConfig 转换为实时客户端配置
func (c *RealtimeConfig) ClientConfig() realtime.Config {
	return realtime.Config{
		URL:                c.URL,
		APIKey:             c.APIKey,
		Model:              c.Model,
		Voice:              c.Voice,
		Instructions:       c.Instructions,
		TranscriptionModel: c.TranscriptionModel,
		TurnDetection: realtime.TurnDetection{
			Threshold:       c.VAD.Threshold,
			PrefixPadding:   c.VAD.PrefixPadding,
			SilenceDuration: c.VAD.SilenceDuration,
		},
		ConnectTimeout: c.ConnectTimeout,
		ToolTimeout:    c.ToolTimeout,
		PingInterval:   c.PingInterval,
		PendingLimit:   c.PendingLimit,
		Reconnect: realtime.ReconnectPolicy{
			MaxAttempts: c.Reconnect.MaxAttempts,
			BaseDelay:   c.Reconnect.BaseDelay,
			MaxDelay:    c.Reconnect.MaxDelay,
		},
	}
}
