// Package realtime 实现与远端实时对话引擎的流式客户端
package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"slices"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"ai_call_agent/internal/metrics"
	"ai_call_agent/internal/realtime/protocol"
)

// DefaultURL 默认的实时接口地址
const DefaultURL = "wss://api.openai.com/v1/realtime"

// 远端在没有进行中的回复时取消会返回该错误码
const codeCancelNotActive = "response_cancel_not_active"

// Client 一通电话对应一个实时客户端
type Client struct {
	cfg   Config
	clock clockwork.Clock

	ctx    context.Context
	cancel context.CancelFunc
	// closing 在 Disconnect 时关闭
	closing chan struct{}

	mu               sync.Mutex
	conn             *connection
	ready            bool
	closed           bool
	reconnecting     bool
	session          *Session
	pending          []outboundFrame
	audio            []string
	responseInFlight bool
	tools            map[string]registeredTool

	eventsMu     sync.RWMutex
	events       chan Event
	eventsClosed bool
}

// NewClient 创建实时客户端，不会发起连接
func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:     cfg,
		clock:   cfg.Clock,
		ctx:     ctx,
		cancel:  cancel,
		closing: make(chan struct{}),
		tools:   make(map[string]registeredTool),
		events:  make(chan Event, cfg.EventBuffer),
	}
}

// Events 事件通道，Disconnect 后关闭
func (c *Client) Events() <-chan Event {
	return c.events
}

// Connect 建立连接并等待 session.created
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	return c.open(ctx, false)
}

// open 拨号、协商会话，成功后该连接成为当前连接
func (c *Client) open(ctx context.Context, reconnect bool) error {
	target, err := c.endpoint()
	if err != nil {
		return &ConnectionError{Op: "dial", Err: err}
	}

	header := http.Header{}
	if c.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	log.Printf("[INFO] 正在连接实时服务: url=%s, reconnect=%v", target, reconnect)
	ws, _, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		return &ConnectionError{Op: "dial", Err: err}
	}
	ws.SetReadLimit(maxMessageSize)

	cn := newConnection(ws, reconnect)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cn.close()
		return ErrClosed
	}
	c.conn = cn
	c.ready = false
	update, err := c.encode(c.sessionUpdateLocked())
	c.mu.Unlock()
	if err != nil {
		c.abandon(cn)
		return &ConnectionError{Op: "session", Err: err}
	}

	// session.update 必须先于任何缓存消息写出
	if err := cn.enqueue(update); err != nil {
		c.abandon(cn)
		return &ConnectionError{Op: "session", Err: err}
	}
	go cn.writeLoop(c.clock, c.cfg.WriteTimeout, c.cfg.PingInterval)
	go c.readLoop(cn)

	timer := c.clock.NewTimer(c.cfg.ConnectTimeout)
	defer timer.Stop()

	select {
	case <-cn.established:
		return nil
	case err := <-cn.failed:
		c.abandon(cn)
		return &ConnectionError{Op: "session", Err: err}
	case <-timer.Chan():
		c.abandon(cn)
		log.Printf("[ERROR] 等待会话建立超时: timeout=%v", c.cfg.ConnectTimeout)
		return &ConnectionError{Op: "session", Err: ErrConnectTimeout}
	case <-ctx.Done():
		c.abandon(cn)
		return &ConnectionError{Op: "session", Err: ctx.Err()}
	case <-c.closing:
		c.abandon(cn)
		return ErrClosed
	}
}

func (c *Client) endpoint() (string, error) {
	raw := c.cfg.URL
	if raw == "" {
		raw = DefaultURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("解析URL失败: %w", err)
	}
	if c.cfg.Model != "" {
		q := u.Query()
		if q.Get("model") == "" {
			q.Set("model", c.cfg.Model)
			u.RawQuery = q.Encode()
		}
	}
	return u.String(), nil
}

// abandon 放弃尚未建立会话的连接
func (c *Client) abandon(cn *connection) {
	cn.clientClose.Store(true)
	cn.close()
	c.mu.Lock()
	if c.conn == cn {
		c.conn = nil
		c.ready = false
	}
	c.mu.Unlock()
}

// sessionUpdateLocked 构造完整的会话配置，调用方持有 c.mu
func (c *Client) sessionUpdateLocked() *protocol.SessionUpdate {
	cfg := protocol.SessionConfig{
		Model:             c.cfg.Model,
		Modalities:        c.cfg.Modalities,
		Instructions:      c.cfg.Instructions,
		Voice:             c.cfg.Voice,
		InputAudioFormat:  c.cfg.InputAudioFormat,
		OutputAudioFormat: c.cfg.OutputAudioFormat,
		TurnDetection:     c.cfg.TurnDetection.toProtocol(),
		Tools:             c.toolDefinitionsLocked(),
	}
	if c.cfg.TranscriptionModel != "" {
		cfg.InputAudioTranscription = &protocol.Transcription{Model: c.cfg.TranscriptionModel}
	}
	return &protocol.SessionUpdate{Session: cfg}
}

func (c *Client) encode(msg protocol.ClientMessage) (outboundFrame, error) {
	data, err := protocol.Encode(msg)
	if err != nil {
		return outboundFrame{}, err
	}
	return outboundFrame{typ: msg.MessageType(), data: data}, nil
}

// send 发送消息；未建立会话时先缓存，建立后按序补发
func (c *Client) send(msg protocol.ClientMessage) error {
	f, err := c.encode(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(f)
}

func (c *Client) sendLocked(f outboundFrame) error {
	if c.closed {
		return ErrClosed
	}
	if c.conn == nil || !c.ready {
		return c.queueLocked(f)
	}
	if err := c.conn.enqueue(f); err != nil {
		return c.queueLocked(f)
	}
	return nil
}

// queueLocked 缓存未就绪时的消息，队列满时只淘汰最早的音频，控制消息不丢弃
func (c *Client) queueLocked(f outboundFrame) error {
	if len(c.pending) >= c.cfg.PendingLimit {
		i := slices.IndexFunc(c.pending, func(p outboundFrame) bool {
			return p.typ == protocol.TypeInputAudioBufferAppend
		})
		if i < 0 {
			log.Printf("[WARN] 待发送队列已满且没有可淘汰的音频: type=%s, pending=%d", f.typ, len(c.pending))
			return fmt.Errorf("%w: type=%s", ErrQueueFull, f.typ)
		}
		log.Printf("[WARN] 待发送队列已满，丢弃最早的音频: pending=%d", len(c.pending))
		c.pending = slices.Delete(c.pending, i, i+1)
	}
	c.pending = append(c.pending, f)
	log.Printf("[DEBUG] 实时会话未就绪，消息已缓存: type=%s, pending=%d", f.typ, len(c.pending))
	return nil
}

// SendAudio 追加一段音频到远端输入缓冲
func (c *Client) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return fmt.Errorf("%w: 空音频", ErrInvalidParams)
	}
	encoded := base64.StdEncoding.EncodeToString(chunk)
	f, err := c.encode(&protocol.InputAudioBufferAppend{Audio: encoded})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.sendLocked(f); err != nil {
		return err
	}
	c.audio = append(c.audio, encoded)
	return nil
}

// CommitAudioBuffer 提交已追加的音频
func (c *Client) CommitAudioBuffer() error {
	f, err := c.encode(&protocol.InputAudioBufferCommit{})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.audio) == 0 {
		log.Printf("[DEBUG] 提交空的音频缓冲")
	}
	if err := c.sendLocked(f); err != nil {
		return err
	}
	c.audio = nil
	return nil
}

// Interrupt 打断当前回复并丢弃未提交的音频，没有进行中的回复时只清空缓冲
func (c *Client) Interrupt() error {
	cancel, err := c.encode(&protocol.ResponseCancel{})
	if err != nil {
		return err
	}
	clr, err := c.encode(&protocol.InputAudioBufferClear{})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.responseInFlight {
		if err := c.sendLocked(cancel); err != nil {
			return err
		}
		c.responseInFlight = false
	}
	c.dropPendingAudioLocked()
	if err := c.sendLocked(clr); err != nil {
		return err
	}
	c.audio = nil
	return nil
}

// CancelResponse 只取消进行中的回复，保留已追加的客户音频
func (c *Client) CancelResponse() error {
	cancel, err := c.encode(&protocol.ResponseCancel{})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.responseInFlight {
		return nil
	}
	if err := c.sendLocked(cancel); err != nil {
		return err
	}
	c.responseInFlight = false
	return nil
}

func countAppends(frames []outboundFrame) int {
	n := 0
	for _, f := range frames {
		if f.typ == protocol.TypeInputAudioBufferAppend {
			n++
		}
	}
	return n
}

func (c *Client) dropPendingAudioLocked() {
	kept := c.pending[:0]
	for _, f := range c.pending {
		if f.typ != protocol.TypeInputAudioBufferAppend {
			kept = append(kept, f)
		}
	}
	c.pending = kept
}

// BufferedChunks 当前未提交的音频片段数
func (c *Client) BufferedChunks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.audio)
}

// ConfigureTurnDetection 更新服务端VAD参数
func (c *Client) ConfigureTurnDetection(td TurnDetection) error {
	if td.Disabled {
		return fmt.Errorf("%w: 会话中不支持关闭VAD", ErrInvalidParams)
	}
	if err := td.validate(); err != nil {
		return fmt.Errorf("%w: threshold=%v", err, td.Threshold)
	}
	c.mu.Lock()
	c.cfg.TurnDetection = td
	c.mu.Unlock()
	return c.send(&protocol.SessionUpdate{Session: protocol.SessionConfig{TurnDetection: td.toProtocol()}})
}

// Say 让远端按原文播报一段回复
func (c *Client) Say(text string) error {
	if text == "" {
		return fmt.Errorf("%w: 空文本", ErrInvalidParams)
	}
	if err := c.send(protocol.NewSystemText("Reply to the caller with exactly this text: " + text)); err != nil {
		return err
	}
	return c.send(&protocol.ResponseCreate{Response: &protocol.ResponseOptions{
		Instructions: "Speak the latest system text to the caller verbatim.",
	}})
}

// Session 返回当前远端会话
func (c *Client) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// SessionID 当前远端会话ID，未连接时为空
func (c *Client) SessionID() string {
	s, _ := c.Session()
	return s.ID
}

// Connected 当前连接是否已完成会话协商
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.ready
}

// Disconnect 正常关闭连接并释放事件通道，不会返回错误
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cn := c.conn
	c.conn = nil
	c.ready = false
	c.pending = nil
	c.audio = nil
	c.mu.Unlock()

	if cn != nil {
		cn.closeNormal(c.cfg.WriteTimeout)
	}
	c.tryEmit(Disconnected{Code: websocket.CloseNormalClosure, Reason: "client disconnect", Final: true})

	c.cancel()
	close(c.closing)

	c.eventsMu.Lock()
	c.eventsClosed = true
	close(c.events)
	c.eventsMu.Unlock()
	log.Printf("[INFO] 实时客户端已关闭")
}

// emit 投递事件，消费者阻塞时等待直至客户端关闭
func (c *Client) emit(ev Event) {
	c.eventsMu.RLock()
	defer c.eventsMu.RUnlock()
	if c.eventsClosed {
		return
	}
	select {
	case c.events <- ev:
	case <-c.closing:
	}
}

func (c *Client) tryEmit(ev Event) {
	c.eventsMu.RLock()
	defer c.eventsMu.RUnlock()
	if c.eventsClosed {
		return
	}
	select {
	case c.events <- ev:
	default:
		log.Printf("[WARN] 事件通道已满，丢弃事件: %T", ev)
	}
}

// readLoop 每条连接一个读协程，负责分发入站消息
func (c *Client) readLoop(cn *connection) {
	seen := false
	for {
		_, data, err := cn.ws.ReadMessage()
		if err != nil {
			c.handleReadError(cn, err, seen)
			return
		}

		msg, err := protocol.Parse(data)
		if err != nil {
			log.Printf("[WARN] 解析实时消息失败: %v", err)
			if seen {
				c.emit(ErrorEvent{Err: &ProtocolError{Err: err}})
			}
			continue
		}
		metrics.RealtimeMessagesReceived.WithLabelValues(msg.MessageType()).Inc()

		if _, ok := msg.(*protocol.SessionCreated); ok {
			seen = true
		}
		c.dispatch(cn, msg)
	}
}

func (c *Client) handleReadError(cn *connection, err error, seen bool) {
	if !seen {
		select {
		case cn.failed <- err:
		default:
		}
		cn.close()
		return
	}

	cn.close()
	c.mu.Lock()
	current := c.conn == cn
	if current {
		c.conn = nil
		c.ready = false
	}
	closed := c.closed
	c.mu.Unlock()

	if closed || !current || cn.clientClose.Load() {
		return
	}

	code, reason := websocket.CloseAbnormalClosure, err.Error()
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code, reason = ce.Code, ce.Text
	}

	if code == websocket.CloseNormalClosure {
		log.Printf("[INFO] 远端正常关闭连接: reason=%s", reason)
		c.emit(Disconnected{Code: code, Reason: reason, Final: true})
		return
	}

	log.Printf("[WARN] 实时连接异常断开: code=%d, err=%v", code, err)
	c.emit(ErrorEvent{Err: &ConnectionError{Op: "read", Err: err}})
	if c.cfg.Reconnect.MaxAttempts <= 0 {
		c.emit(Disconnected{Code: code, Reason: reason, Final: true})
		return
	}
	c.emit(Disconnected{Code: code, Reason: reason, Final: false})

	c.mu.Lock()
	if c.reconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()
	go c.reconnectLoop()
}

// reconnectLoop 按退避策略重连，成功后会话ID更新
func (c *Client) reconnectLoop() {
	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	policy := c.cfg.Reconnect
	b := newReconnectBackOff(policy)
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		delay := b.NextBackOff()
		timer := c.clock.NewTimer(delay)
		select {
		case <-timer.Chan():
		case <-c.closing:
			timer.Stop()
			return
		}

		log.Printf("[INFO] 第%d次重连: delay=%v", attempt, delay)
		err := c.open(c.ctx, true)
		if err == nil {
			metrics.RealtimeReconnects.WithLabelValues("success").Inc()
			log.Printf("[INFO] 重连成功: session=%s", c.SessionID())
			return
		}
		if errors.Is(err, ErrClosed) {
			return
		}
		metrics.RealtimeReconnects.WithLabelValues("error").Inc()
		log.Printf("[WARN] 第%d次重连失败: %v", attempt, err)
		lastErr = err
	}

	metrics.RealtimeReconnects.WithLabelValues("exhausted").Inc()
	log.Printf("[ERROR] 重连次数已用尽: attempts=%d", policy.MaxAttempts)
	c.emit(ErrorEvent{Err: &ConnectionError{
		Op:  "reconnect",
		Err: fmt.Errorf("重连%d次均失败: %w", policy.MaxAttempts, lastErr),
	}})
	c.emit(Disconnected{Code: websocket.CloseAbnormalClosure, Reason: "reconnect attempts exhausted", Final: true})
}

// dispatch 将协议消息转换为事件
func (c *Client) dispatch(cn *connection, msg protocol.ServerMessage) {
	switch m := msg.(type) {
	case *protocol.SessionCreated:
		c.onSessionCreated(cn, m)

	case *protocol.SessionUpdated:
		s := sessionFromInfo(m.Session, c.clock.Now())
		c.mu.Lock()
		if c.session != nil {
			if s.ID == "" {
				s.ID = c.session.ID
			}
			s.CreatedAt = c.session.CreatedAt
		}
		c.session = &s
		c.mu.Unlock()
		c.emit(SessionUpdated{Session: s})

	case *protocol.SpeechStarted:
		c.emit(SpeechStarted{AudioStartMs: m.AudioStartMs})
	case *protocol.SpeechStopped:
		c.emit(SpeechStopped{AudioEndMs: m.AudioEndMs})
	case *protocol.InputTranscriptionCompleted:
		c.emit(Transcript{ItemID: m.ItemID, Text: m.Transcript})

	case *protocol.ResponseCreated:
		c.setResponseInFlight(true)
	case *protocol.ResponseDone:
		c.setResponseInFlight(false)

	case *protocol.ResponseAudioDelta:
		c.emit(AudioResponse{ResponseID: m.ResponseID, Audio: m.Audio})
	case *protocol.ResponseAudioDone:
		c.emit(AudioResponseDone{ResponseID: m.ResponseID})
	case *protocol.ResponseTextDelta:
		c.emit(TextResponse{ResponseID: m.ResponseID, Delta: m.Delta})
	case *protocol.ResponseAudioTranscriptDelta:
		c.emit(TextResponse{ResponseID: m.ResponseID, Delta: m.Delta})
	case *protocol.ResponseTextDone:
		c.emit(TextResponseComplete{ResponseID: m.ResponseID, Text: m.Text})
	case *protocol.ResponseAudioTranscriptDone:
		c.emit(TextResponseComplete{ResponseID: m.ResponseID, Text: m.Transcript})

	case *protocol.FunctionCallArgumentsDone:
		go c.handleFunctionCall(m)

	case *protocol.Error:
		if m.Error.Code == codeCancelNotActive {
			log.Printf("[DEBUG] 忽略取消空闲回复的错误")
			return
		}
		log.Printf("[WARN] 远端错误: code=%s, message=%s", m.Error.Code, m.Error.Message)
		c.emit(ErrorEvent{Err: &ProtocolError{Code: m.Error.Code, Message: m.Error.Message}})

	case *protocol.RateLimitsUpdated:
		c.emit(RateLimitsUpdated{Limits: m.RateLimits})

	default:
		log.Printf("[DEBUG] 未处理的实时消息: type=%s", msg.MessageType())
	}
}

func (c *Client) setResponseInFlight(v bool) {
	c.mu.Lock()
	c.responseInFlight = v
	c.mu.Unlock()
}

// onSessionCreated 会话建立：重置缓冲、补发缓存消息并通知调用方
func (c *Client) onSessionCreated(cn *connection, m *protocol.SessionCreated) {
	s := sessionFromInfo(m.Session, c.clock.Now())

	c.mu.Lock()
	if c.conn != cn || c.closed {
		c.mu.Unlock()
		return
	}
	c.session = &s
	c.ready = true
	c.responseInFlight = false
	// 新会话的远端缓冲只包含尚未发出的音频
	if n := countAppends(c.pending); n < len(c.audio) {
		c.audio = c.audio[len(c.audio)-n:]
	}
	pending := c.pending
	c.pending = nil
	for i, f := range pending {
		if err := cn.enqueue(f); err != nil {
			c.pending = append(c.pending, pending[i:]...)
			break
		}
	}
	c.mu.Unlock()

	log.Printf("[INFO] 实时会话已建立: session=%s, flushed=%d, reconnect=%v", s.ID, len(pending), cn.reconnect)
	cn.markEstablished()
	c.emit(SessionCreated{Session: s, Reconnect: cn.reconnect})
}
