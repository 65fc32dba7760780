// Package protocol 定义与远端实时对话引擎交互的JSON消息格式
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// 客户端消息类型
const (
	TypeSessionUpdate          = "session.update"
	TypeInputAudioBufferAppend = "input_audio_buffer.append"
	TypeInputAudioBufferCommit = "input_audio_buffer.commit"
	TypeInputAudioBufferClear  = "input_audio_buffer.clear"
	TypeConversationItemCreate = "conversation.item.create"
	TypeResponseCreate         = "response.create"
	TypeResponseCancel         = "response.cancel"
)

// 服务端消息类型
const (
	TypeSessionCreated               = "session.created"
	TypeSessionUpdated               = "session.updated"
	TypeInputAudioBufferCommitted    = "input_audio_buffer.committed"
	TypeInputAudioBufferCleared      = "input_audio_buffer.cleared"
	TypeSpeechStarted                = "input_audio_buffer.speech_started"
	TypeSpeechStopped                = "input_audio_buffer.speech_stopped"
	TypeConversationItemCreated      = "conversation.item.created"
	TypeInputTranscriptionCompleted  = "conversation.item.input_audio_transcription.completed"
	TypeResponseCreated              = "response.created"
	TypeResponseDone                 = "response.done"
	TypeResponseAudioDelta           = "response.audio.delta"
	TypeResponseAudioDone            = "response.audio.done"
	TypeResponseTextDelta            = "response.text.delta"
	TypeResponseTextDone             = "response.text.done"
	TypeResponseAudioTranscriptDelta = "response.audio_transcript.delta"
	TypeResponseAudioTranscriptDone  = "response.audio_transcript.done"
	TypeFunctionCallArgumentsDone    = "response.function_call_arguments.done"
	TypeError                        = "error"
	TypeRateLimitsUpdated            = "rate_limits.updated"
)

// ErrMalformed 消息无法解析或缺少必填字段
var ErrMalformed = errors.New("消息格式错误")

// Envelope 所有消息共有的信封字段
type Envelope struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
}

func (e *Envelope) envelope() *Envelope { return e }

// ClientMessage 客户端发往服务端的消息
type ClientMessage interface {
	MessageType() string
	envelope() *Envelope
}

// TurnDetection 服务端语音活动检测参数
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
	CreateResponse    *bool   `json:"create_response,omitempty"`
}

// Transcription 输入音频转写配置
type Transcription struct {
	Model string `json:"model"`
}

// ToolDefinition 会话中声明的工具
type ToolDefinition struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// SessionConfig session.update 中携带的会话配置
type SessionConfig struct {
	Model                   string           `json:"model,omitempty"`
	Modalities              []string         `json:"modalities,omitempty"`
	Instructions            string           `json:"instructions,omitempty"`
	Voice                   string           `json:"voice,omitempty"`
	InputAudioFormat        string           `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string           `json:"output_audio_format,omitempty"`
	InputAudioTranscription *Transcription   `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection   `json:"turn_detection,omitempty"`
	Tools                   []ToolDefinition `json:"tools,omitempty"`
}

// SessionUpdate 协商或更新会话参数
type SessionUpdate struct {
	Envelope
	Session SessionConfig `json:"session"`
}

// MessageType 实现 ClientMessage
func (*SessionUpdate) MessageType() string { return TypeSessionUpdate }

// InputAudioBufferAppend 追加一段base64音频
type InputAudioBufferAppend struct {
	Envelope
	Audio string `json:"audio"`
}

// MessageType 实现 ClientMessage
func (*InputAudioBufferAppend) MessageType() string { return TypeInputAudioBufferAppend }

// InputAudioBufferCommit 提交已追加的音频
type InputAudioBufferCommit struct {
	Envelope
}

// MessageType 实现 ClientMessage
func (*InputAudioBufferCommit) MessageType() string { return TypeInputAudioBufferCommit }

// InputAudioBufferClear 丢弃已追加的音频
type InputAudioBufferClear struct {
	Envelope
}

// MessageType 实现 ClientMessage
func (*InputAudioBufferClear) MessageType() string { return TypeInputAudioBufferClear }

// ContentPart 会话条目内容
type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// Item 会话条目：消息、函数调用或函数输出
type Item struct {
	ID        string        `json:"id,omitempty"`
	Type      string        `json:"type"`
	Role      string        `json:"role,omitempty"`
	Content   []ContentPart `json:"content,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Name      string        `json:"name,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
	Output    string        `json:"output,omitempty"`
}

// ConversationItemCreate 注入文本、系统或函数输出条目
type ConversationItemCreate struct {
	Envelope
	Item Item `json:"item"`
}

// MessageType 实现 ClientMessage
func (*ConversationItemCreate) MessageType() string { return TypeConversationItemCreate }

// ResponseOptions response.create 的可选参数
type ResponseOptions struct {
	Modalities   []string `json:"modalities,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

// ResponseCreate 请求远端生成回复
type ResponseCreate struct {
	Envelope
	Response *ResponseOptions `json:"response,omitempty"`
}

// MessageType 实现 ClientMessage
func (*ResponseCreate) MessageType() string { return TypeResponseCreate }

// ResponseCancel 取消正在进行的回复
type ResponseCancel struct {
	Envelope
}

// MessageType 实现 ClientMessage
func (*ResponseCancel) MessageType() string { return TypeResponseCancel }

// NewFunctionCallOutput 构造函数调用结果条目
func NewFunctionCallOutput(callID, output string) *ConversationItemCreate {
	return &ConversationItemCreate{
		Item: Item{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	}
}

// NewSystemText 构造系统文本条目
func NewSystemText(text string) *ConversationItemCreate {
	return &ConversationItemCreate{
		Item: Item{
			Type:    "message",
			Role:    "system",
			Content: []ContentPart{{Type: "input_text", Text: text}},
		},
	}
}

// Encode 序列化客户端消息，补全type和event_id
func Encode(msg ClientMessage) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: 空消息", ErrMalformed)
	}
	env := msg.envelope()
	env.Type = msg.MessageType()
	if env.EventID == "" {
		env.EventID = "evt_" + uuid.NewString()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("序列化消息失败: %w", err)
	}
	return data, nil
}

// ServerMessage 服务端发往客户端的消息
type ServerMessage interface {
	MessageType() string
}

// SessionInfo 远端协商后的会话信息
type SessionInfo struct {
	ID                string         `json:"id"`
	Model             string         `json:"model"`
	Modalities        []string       `json:"modalities"`
	Voice             string         `json:"voice"`
	InputAudioFormat  string         `json:"input_audio_format"`
	OutputAudioFormat string         `json:"output_audio_format"`
	TurnDetection     *TurnDetection `json:"turn_detection"`
}

// SessionCreated 会话已建立
type SessionCreated struct {
	Envelope
	Session SessionInfo `json:"session"`
}

// MessageType 实现 ServerMessage
func (*SessionCreated) MessageType() string { return TypeSessionCreated }

// SessionUpdated 会话更新已确认
type SessionUpdated struct {
	Envelope
	Session SessionInfo `json:"session"`
}

// MessageType 实现 ServerMessage
func (*SessionUpdated) MessageType() string { return TypeSessionUpdated }

// InputAudioBufferCommitted 音频已提交
type InputAudioBufferCommitted struct {
	Envelope
	ItemID string `json:"item_id"`
}

// MessageType 实现 ServerMessage
func (*InputAudioBufferCommitted) MessageType() string { return TypeInputAudioBufferCommitted }

// InputAudioBufferCleared 音频缓冲已清空
type InputAudioBufferCleared struct {
	Envelope
}

// MessageType 实现 ServerMessage
func (*InputAudioBufferCleared) MessageType() string { return TypeInputAudioBufferCleared }

// SpeechStarted 检测到说话开始
type SpeechStarted struct {
	Envelope
	AudioStartMs int    `json:"audio_start_ms"`
	ItemID       string `json:"item_id"`
}

// MessageType 实现 ServerMessage
func (*SpeechStarted) MessageType() string { return TypeSpeechStarted }

// SpeechStopped 检测到说话结束
type SpeechStopped struct {
	Envelope
	AudioEndMs int    `json:"audio_end_ms"`
	ItemID     string `json:"item_id"`
}

// MessageType 实现 ServerMessage
func (*SpeechStopped) MessageType() string { return TypeSpeechStopped }

// ConversationItemCreated 条目已加入会话
type ConversationItemCreated struct {
	Envelope
	Item Item `json:"item"`
}

// MessageType 实现 ServerMessage
func (*ConversationItemCreated) MessageType() string { return TypeConversationItemCreated }

// InputTranscriptionCompleted 客户语音转写完成
type InputTranscriptionCompleted struct {
	Envelope
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

// MessageType 实现 ServerMessage
func (*InputTranscriptionCompleted) MessageType() string { return TypeInputTranscriptionCompleted }

// ResponseInfo 回复概要
type ResponseInfo struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ResponseCreated 回复开始生成
type ResponseCreated struct {
	Envelope
	Response ResponseInfo `json:"response"`
}

// MessageType 实现 ServerMessage
func (*ResponseCreated) MessageType() string { return TypeResponseCreated }

// ResponseDone 回复结束（完成、取消或失败）
type ResponseDone struct {
	Envelope
	Response ResponseInfo `json:"response"`
}

// MessageType 实现 ServerMessage
func (*ResponseDone) MessageType() string { return TypeResponseDone }

// ResponseAudioDelta 合成音频片段，Audio 已在边界处完成base64解码
type ResponseAudioDelta struct {
	Envelope
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
	Audio      []byte `json:"-"`
}

// MessageType 实现 ServerMessage
func (*ResponseAudioDelta) MessageType() string { return TypeResponseAudioDelta }

// ResponseAudioDone 合成音频结束
type ResponseAudioDone struct {
	Envelope
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
}

// MessageType 实现 ServerMessage
func (*ResponseAudioDone) MessageType() string { return TypeResponseAudioDone }

// ResponseTextDelta 文本片段
type ResponseTextDelta struct {
	Envelope
	ResponseID string `json:"response_id"`
	Delta      string `json:"delta"`
}

// MessageType 实现 ServerMessage
func (*ResponseTextDelta) MessageType() string { return TypeResponseTextDelta }

// ResponseTextDone 文本结束
type ResponseTextDone struct {
	Envelope
	ResponseID string `json:"response_id"`
	Text       string `json:"text"`
}

// MessageType 实现 ServerMessage
func (*ResponseTextDone) MessageType() string { return TypeResponseTextDone }

// ResponseAudioTranscriptDelta 合成语音的文字稿片段
type ResponseAudioTranscriptDelta struct {
	Envelope
	ResponseID string `json:"response_id"`
	Delta      string `json:"delta"`
}

// MessageType 实现 ServerMessage
func (*ResponseAudioTranscriptDelta) MessageType() string { return TypeResponseAudioTranscriptDelta }

// ResponseAudioTranscriptDone 合成语音的文字稿结束
type ResponseAudioTranscriptDone struct {
	Envelope
	ResponseID string `json:"response_id"`
	Transcript string `json:"transcript"`
}

// MessageType 实现 ServerMessage
func (*ResponseAudioTranscriptDone) MessageType() string { return TypeResponseAudioTranscriptDone }

// FunctionCallArgumentsDone 远端请求执行工具
type FunctionCallArgumentsDone struct {
	Envelope
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	CallID     string `json:"call_id"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`
}

// MessageType 实现 ServerMessage
func (*FunctionCallArgumentsDone) MessageType() string { return TypeFunctionCallArgumentsDone }

// ErrorDetail 远端错误详情
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

// Error 远端报告的错误
type Error struct {
	Envelope
	Error ErrorDetail `json:"error"`
}

// MessageType 实现 ServerMessage
func (*Error) MessageType() string { return TypeError }

// RateLimit 限流状态
type RateLimit struct {
	Name         string  `json:"name"`
	Limit        int     `json:"limit"`
	Remaining    int     `json:"remaining"`
	ResetSeconds float64 `json:"reset_seconds"`
}

// RateLimitsUpdated 限流状态更新
type RateLimitsUpdated struct {
	Envelope
	RateLimits []RateLimit `json:"rate_limits"`
}

// MessageType 实现 ServerMessage
func (*RateLimitsUpdated) MessageType() string { return TypeRateLimitsUpdated }

// Unknown 未识别的消息类型，原样保留
type Unknown struct {
	Envelope
	Raw json.RawMessage `json:"-"`
}

// MessageType 实现 ServerMessage
func (u *Unknown) MessageType() string { return u.Type }

// Parse 解析服务端消息并校验必填字段
func Parse(data []byte) (ServerMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: 缺少type字段", ErrMalformed)
	}

	var msg ServerMessage
	switch env.Type {
	case TypeSessionCreated:
		msg = &SessionCreated{}
	case TypeSessionUpdated:
		msg = &SessionUpdated{}
	case TypeInputAudioBufferCommitted:
		msg = &InputAudioBufferCommitted{}
	case TypeInputAudioBufferCleared:
		msg = &InputAudioBufferCleared{}
	case TypeSpeechStarted:
		msg = &SpeechStarted{}
	case TypeSpeechStopped:
		msg = &SpeechStopped{}
	case TypeConversationItemCreated:
		msg = &ConversationItemCreated{}
	case TypeInputTranscriptionCompleted:
		msg = &InputTranscriptionCompleted{}
	case TypeResponseCreated:
		msg = &ResponseCreated{}
	case TypeResponseDone:
		msg = &ResponseDone{}
	case TypeResponseAudioDelta:
		msg = &ResponseAudioDelta{}
	case TypeResponseAudioDone:
		msg = &ResponseAudioDone{}
	case TypeResponseTextDelta:
		msg = &ResponseTextDelta{}
	case TypeResponseTextDone:
		msg = &ResponseTextDone{}
	case TypeResponseAudioTranscriptDelta:
		msg = &ResponseAudioTranscriptDelta{}
	case TypeResponseAudioTranscriptDone:
		msg = &ResponseAudioTranscriptDone{}
	case TypeFunctionCallArgumentsDone:
		msg = &FunctionCallArgumentsDone{}
	case TypeError:
		msg = &Error{}
	case TypeRateLimitsUpdated:
		msg = &RateLimitsUpdated{}
	default:
		return &Unknown{Envelope: env, Raw: append(json.RawMessage(nil), data...)}, nil
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	if err := validate(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// validate 检查各消息类型的必填字段
func validate(msg ServerMessage) error {
	switch m := msg.(type) {
	case *SessionCreated:
		if m.Session.ID == "" {
			return fmt.Errorf("%w: session.created 缺少 session.id", ErrMalformed)
		}
	case *FunctionCallArgumentsDone:
		if m.CallID == "" || m.Name == "" {
			return fmt.Errorf("%w: 函数调用缺少 call_id 或 name", ErrMalformed)
		}
	case *ResponseAudioDelta:
		audio, err := base64.StdEncoding.DecodeString(m.Delta)
		if err != nil {
			return fmt.Errorf("%w: 音频片段不是合法的base64: %v", ErrMalformed, err)
		}
		m.Audio = audio
	case *Error:
		if m.Error.Message == "" && m.Error.Code == "" {
			return fmt.Errorf("%w: error 消息缺少 code 和 message", ErrMalformed)
		}
	}
	return nil
}
