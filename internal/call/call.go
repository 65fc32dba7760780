// Package call 将对话引擎与实时客户端组合为一通电话
package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"ai_call_agent/internal/dialog"
	"ai_call_agent/internal/models"
	"ai_call_agent/internal/realtime"
	"ai_call_agent/internal/store"
	"ai_call_agent/internal/types"
)

// 通话相关错误
var (
	ErrCallNotFound   = errors.New("通话不存在")
	ErrCallExists     = errors.New("通话已存在")
	ErrCallActive     = errors.New("通话仍在进行中")
	ErrCallEnded      = errors.New("通话已结束")
	ErrNoRealtime     = errors.New("通话未连接实时引擎")
	ErrNoStore        = errors.New("未配置检查点存储")
	ErrInvalidRequest = errors.New("租户ID不能为空")
)

// Checkpointer 通话检查点存储
type Checkpointer interface {
	Save(ctx context.Context, cp *store.Checkpoint) error
	Load(ctx context.Context, tenantID, callID string) (*store.Checkpoint, error)
	Delete(ctx context.Context, tenantID, callID string) error
}

// Call 一通进行中的电话：一个对话引擎加上可选的实时客户端
type Call struct {
	id        string
	tenantID  string
	leadID    string
	industry  string
	startedAt time.Time

	engine *dialog.Engine
	script *models.Script
	rt     *realtime.Client
	store  Checkpointer

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	status   types.CallStatus
	transfer *types.TransferSignal
	closed   bool

	audio     chan []byte
	notices   chan types.MediaMessage
	done      chan struct{}
	closeOnce sync.Once
}

func newCall(info dialog.SessionInfo, engine *dialog.Engine, script *models.Script, st Checkpointer, buffer int) *Call {
	ctx, cancel := context.WithCancel(context.Background())
	return &Call{
		id:        info.CallID,
		tenantID:  info.TenantID,
		leadID:    info.LeadID,
		industry:  info.Industry,
		startedAt: time.Now(),
		engine:    engine,
		script:    script,
		store:     st,
		ctx:       ctx,
		cancel:    cancel,
		status:    types.CallStatusConnecting,
		audio:     make(chan []byte, buffer),
		notices:   make(chan types.MediaMessage, buffer),
		done:      make(chan struct{}),
	}
}

// ID 通话ID
func (c *Call) ID() string { return c.id }

// TenantID 租户ID
func (c *Call) TenantID() string { return c.tenantID }

// Engine 对话引擎
func (c *Call) Engine() *dialog.Engine { return c.engine }

// Audio 待播放给客户的合成音频
func (c *Call) Audio() <-chan []byte { return c.audio }

// Notices 发给电话层的控制消息
func (c *Call) Notices() <-chan types.MediaMessage { return c.notices }

// Done 通话关闭后关闭
func (c *Call) Done() <-chan struct{} { return c.done }

// Status 通话状态
func (c *Call) Status() types.CallStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Transfer 转人工信号，未转接时为 nil
func (c *Call) Transfer() *types.TransferSignal {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transfer == nil {
		return nil
	}
	t := *c.transfer
	return &t
}

// RealtimeSessionID 当前远端会话ID
func (c *Call) RealtimeSessionID() string {
	if c.rt == nil {
		return ""
	}
	return c.rt.SessionID()
}

// Summary 通话概要
func (c *Call) Summary() types.CallSummary {
	return types.CallSummary{
		CallID:            c.id,
		TenantID:          c.tenantID,
		LeadID:            c.leadID,
		Industry:          c.industry,
		Status:            c.Status(),
		State:             string(c.engine.CurrentState()),
		RealtimeSessionID: c.RealtimeSessionID(),
		Turns:             len(c.engine.History()),
		StartedAt:         c.startedAt,
	}
}

// HandleInput 处理一轮客户文本并执行回复、转接或挂断
func (c *Call) HandleInput(ctx context.Context, text string) (*dialog.Response, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrCallEnded
	}

	resp := c.engine.ProcessCustomerInput(ctx, text)
	c.react(resp)
	c.checkpoint(ctx)
	return resp, nil
}

// react 把回复交给远端播报并通知电话层
func (c *Call) react(resp *dialog.Response) {
	c.notify(types.MediaMessage{Event: types.MediaEventResponse, Text: resp.Content})
	if c.rt != nil && resp.Content != "" {
		if err := c.rt.Say(resp.Content); err != nil {
			log.Printf("[WARN] 播报回复失败: call_id=%s, err=%v", c.id, err)
		}
	}

	switch {
	case resp.ShouldTransferToHuman:
		signal := types.TransferSignal{
			CallID:    c.id,
			TenantID:  c.tenantID,
			Reason:    string(resp.TransferReason),
			Summary:   c.handoffSummary(),
			Timestamp: time.Now(),
		}
		c.mu.Lock()
		first := c.transfer == nil
		if first {
			c.transfer = &signal
			c.status = types.CallStatusTransferred
		}
		c.mu.Unlock()
		if first {
			log.Printf("[INFO] 通话转人工: call_id=%s, reason=%s", c.id, signal.Reason)
			c.notify(types.MediaMessage{Event: types.MediaEventTransfer, Reason: signal.Reason, Summary: signal.Summary})
		}
	case resp.NextState == dialog.StateClosing:
		if c.setStatus(types.CallStatusCompleted) {
			c.notify(types.MediaMessage{Event: types.MediaEventHangup, Text: resp.Content})
		}
	}
}

// handoffSummary 给人工坐席的简要说明
func (c *Call) handoffSummary() string {
	var last string
	for _, t := range c.engine.History() {
		if t.Role == dialog.RoleCustomer {
			last = t.Content
		}
	}
	return fmt.Sprintf("qualification %.1f/10, state %s, last customer message: %q",
		c.engine.QualificationScore(), c.engine.CurrentState(), last)
}

// setStatus 更新状态，终止状态不再改变；返回是否发生变化
func (c *Call) setStatus(s types.CallStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == s || c.status.Terminal() {
		return false
	}
	c.status = s
	return true
}

// notify 投递控制消息，电话层来不及读取时丢弃
func (c *Call) notify(msg types.MediaMessage) {
	select {
	case c.notices <- msg:
	default:
		log.Printf("[WARN] 控制消息队列已满，丢弃: call_id=%s, event=%s", c.id, msg.Event)
	}
}

// SendAudio 转发客户音频
func (c *Call) SendAudio(chunk []byte) error {
	if c.rt == nil {
		return ErrNoRealtime
	}
	return c.rt.SendAudio(chunk)
}

// Commit 提交已发送的客户音频
func (c *Call) Commit() error {
	if c.rt == nil {
		return ErrNoRealtime
	}
	return c.rt.CommitAudioBuffer()
}

// Interrupt 客户打断播报
func (c *Call) Interrupt() error {
	if c.rt == nil {
		return ErrNoRealtime
	}
	return c.rt.Interrupt()
}

// attach 连接实时引擎、注册工具并启动事件循环
func (c *Call) attach(ctx context.Context, rt *realtime.Client) error {
	c.rt = rt
	if err := registerTools(c); err != nil {
		return err
	}
	if err := rt.Connect(ctx); err != nil {
		return err
	}
	go c.pump()
	return nil
}

// pump 消费实时事件直到客户端关闭
func (c *Call) pump() {
	for ev := range c.rt.Events() {
		switch ev := ev.(type) {
		case realtime.Transcript:
			log.Printf("[DEBUG] 客户语音转写: call_id=%s, text=%s", c.id, ev.Text)
			if _, err := c.HandleInput(c.ctx, ev.Text); err != nil {
				log.Printf("[WARN] 处理转写失败: call_id=%s, err=%v", c.id, err)
			}
		case realtime.SpeechStarted:
			// 客户开口时的音频已在远端缓冲中，只取消播报
			if err := c.rt.CancelResponse(); err != nil {
				log.Printf("[WARN] 打断播报失败: call_id=%s, err=%v", c.id, err)
			}
			c.notify(types.MediaMessage{Event: types.MediaEventInterrupt})
		case realtime.AudioResponse:
			select {
			case c.audio <- ev.Audio:
			default:
				log.Printf("[WARN] 音频队列已满，丢弃: call_id=%s, bytes=%d", c.id, len(ev.Audio))
			}
		case realtime.TextResponseComplete:
			log.Printf("[DEBUG] 远端播报完成: call_id=%s, text=%s", c.id, ev.Text)
		case realtime.SessionCreated:
			if ev.Reconnect {
				log.Printf("[INFO] 通话已恢复实时会话: call_id=%s, session=%s, turns=%d",
					c.id, ev.Session.ID, len(c.engine.History()))
				c.setStatus(types.CallStatusActive)
				c.checkpoint(c.ctx)
			}
		case realtime.Disconnected:
			if !ev.Final {
				c.setStatus(types.CallStatusRecovering)
				continue
			}
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed && c.setStatus(types.CallStatusError) {
				log.Printf("[ERROR] 实时连接不可恢复: call_id=%s, code=%d, reason=%s", c.id, ev.Code, ev.Reason)
				c.notify(types.MediaMessage{Event: types.MediaEventHangup, Reason: ev.Reason})
			}
		case realtime.ErrorEvent:
			var pe *realtime.ProtocolError
			if errors.As(ev.Err, &pe) {
				log.Printf("[WARN] 远端协议错误: call_id=%s, code=%s", c.id, pe.Code)
				continue
			}
			log.Printf("[WARN] 实时客户端错误: call_id=%s, err=%v", c.id, ev.Err)
		}
	}
}

// checkpoint 保存当前状态，失败只记录日志
func (c *Call) checkpoint(ctx context.Context) {
	if c.store == nil {
		return
	}
	cp := &store.Checkpoint{
		TenantID:          c.tenantID,
		CallID:            c.id,
		Industry:          c.industry,
		RealtimeSessionID: c.RealtimeSessionID(),
		Snapshot:          c.engine.Snapshot(),
	}
	if err := c.store.Save(ctx, cp); err != nil {
		log.Printf("[WARN] 保存检查点失败: call_id=%s, err=%v", c.id, err)
	}
}

// close 结束通话并断开实时连接
func (c *Call) close(status types.CallStatus) {
	c.closeOnce.Do(func() {
		c.setStatus(status)
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		if c.rt != nil {
			c.rt.Disconnect()
		}
		c.cancel()
		close(c.done)
		log.Printf("[INFO] 通话结束: call_id=%s, status=%s", c.id, c.Status())
	})
}

// MarshalJSON 输出通话概要
func (c *Call) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Summary())
}
