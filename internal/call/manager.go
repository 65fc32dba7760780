package call

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"ai_call_agent/internal/dialog"
	"ai_call_agent/internal/metrics"
	"ai_call_agent/internal/models"
	"ai_call_agent/internal/realtime"
	"ai_call_agent/internal/store"
	"ai_call_agent/internal/types"
)

const defaultBuffer = 256

// Config 通话管理参数
type Config struct {
	Realtime       realtime.Config // 每通电话的实时客户端模板
	Dialog         dialog.Config
	EnableRealtime bool // 关闭时只能通过文本接口驱动对话
	Buffer         int  // 音频与控制消息队列长度
}

// StartRequest 发起通话的参数
type StartRequest struct {
	CallID   string `json:"call_id"`
	TenantID string `json:"tenant_id"`
	LeadID   string `json:"lead_id"`
	Industry string `json:"industry"`
}

// Manager 管理本进程内的所有通话，按租户隔离
type Manager struct {
	cfg     Config
	scripts models.ScriptProvider
	store   Checkpointer

	mu    sync.RWMutex
	calls map[string]*Call
}

// NewManager 创建通话管理器，st 为 nil 时不保存检查点
func NewManager(cfg Config, scripts models.ScriptProvider, st Checkpointer) *Manager {
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	return &Manager{
		cfg:     cfg,
		scripts: scripts,
		store:   st,
		calls:   make(map[string]*Call),
	}
}

// Start 创建对话引擎，连接实时引擎并播报开场白
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Call, error) {
	if req.TenantID == "" {
		return nil, ErrInvalidRequest
	}
	if req.CallID == "" {
		req.CallID = uuid.NewString()
	}
	if req.Industry == "" {
		req.Industry = "general"
	}
	if _, err := m.lookup(req.CallID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrCallExists, req.CallID)
	}

	script, err := m.scripts.GetScript(ctx, req.TenantID, req.Industry)
	if err != nil {
		return nil, fmt.Errorf("获取话术失败: %w", err)
	}
	info := dialog.SessionInfo{CallID: req.CallID, LeadID: req.LeadID, TenantID: req.TenantID, Industry: req.Industry}
	engine, err := dialog.NewEngine(info, script, m.cfg.Dialog)
	if err != nil {
		return nil, err
	}

	c := newCall(info, engine, script, m.store, m.cfg.Buffer)
	greeting := engine.StartConversation()
	if err := m.connect(ctx, c); err != nil {
		return nil, err
	}
	c.setStatus(types.CallStatusActive)
	if c.rt != nil && greeting != "" {
		if err := c.rt.Say(greeting); err != nil {
			log.Printf("[WARN] 播报开场白失败: call_id=%s, err=%v", c.id, err)
		}
	}
	c.notify(types.MediaMessage{Event: types.MediaEventResponse, Text: greeting})
	c.checkpoint(ctx)

	if err := m.register(c); err != nil {
		c.close(types.CallStatusError)
		return nil, err
	}
	log.Printf("[INFO] 通话开始: call_id=%s, tenant=%s, industry=%s, script=%s", c.id, c.tenantID, c.industry, script.ID)
	return c, nil
}

// Resume 从检查点恢复通话，历史与评分保持不变，远端会话重新建立
func (m *Manager) Resume(ctx context.Context, tenantID, callID string) (*Call, error) {
	if m.store == nil {
		return nil, ErrNoStore
	}
	if existing, err := m.lookup(callID); err == nil {
		if existing.tenantID != tenantID {
			return nil, ErrCallNotFound
		}
		return nil, fmt.Errorf("%w: %s", ErrCallActive, callID)
	}

	cp, err := m.store.Load(ctx, tenantID, callID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCallNotFound, callID)
		}
		return nil, err
	}
	script, err := m.scripts.GetScript(ctx, cp.TenantID, cp.Industry)
	if err != nil {
		return nil, fmt.Errorf("获取话术失败: %w", err)
	}
	engine, err := dialog.Restore(cp.Snapshot, script, m.cfg.Dialog)
	if err != nil {
		return nil, err
	}

	c := newCall(cp.Snapshot.Info, engine, script, m.store, m.cfg.Buffer)
	if !cp.Snapshot.StartedAt.IsZero() {
		c.startedAt = cp.Snapshot.StartedAt
	}
	if err := m.connect(ctx, c); err != nil {
		return nil, err
	}
	c.setStatus(types.CallStatusActive)
	c.checkpoint(ctx)

	if err := m.register(c); err != nil {
		c.close(types.CallStatusError)
		return nil, err
	}
	log.Printf("[INFO] 通话已恢复: call_id=%s, tenant=%s, state=%s, turns=%d, previous_session=%s",
		c.id, c.tenantID, engine.CurrentState(), len(engine.History()), cp.RealtimeSessionID)
	return c, nil
}

// connect 按配置为通话建立实时连接
func (m *Manager) connect(ctx context.Context, c *Call) error {
	if !m.cfg.EnableRealtime {
		return nil
	}
	cfg := m.cfg.Realtime
	cfg.Instructions = instructions(c.script, cfg.Instructions)
	// 回复内容由对话引擎决定
	cfg.TurnDetection.ManualResponse = true
	if err := c.attach(ctx, realtime.NewClient(cfg)); err != nil {
		c.close(types.CallStatusError)
		return fmt.Errorf("连接实时引擎失败: call_id=%s: %w", c.id, err)
	}
	return nil
}

func (m *Manager) register(c *Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.calls[c.id]; ok {
		return fmt.Errorf("%w: %s", ErrCallExists, c.id)
	}
	m.calls[c.id] = c
	metrics.ActiveCalls.Inc()
	return nil
}

func (m *Manager) lookup(callID string) (*Call, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.calls[callID]
	if !ok {
		return nil, ErrCallNotFound
	}
	return c, nil
}

// Get 查找租户下的通话，其他租户的通话视为不存在
func (m *Manager) Get(tenantID, callID string) (*Call, error) {
	c, err := m.lookup(callID)
	if err != nil || c.tenantID != tenantID {
		return nil, fmt.Errorf("%w: %s", ErrCallNotFound, callID)
	}
	return c, nil
}

// List 租户下的通话概要，按开始时间排序
func (m *Manager) List(tenantID string) []types.CallSummary {
	m.mu.RLock()
	calls := make([]*Call, 0, len(m.calls))
	for _, c := range m.calls {
		if c.tenantID == tenantID {
			calls = append(calls, c)
		}
	}
	m.mu.RUnlock()

	out := make([]types.CallSummary, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// End 挂断通话并删除检查点
func (m *Manager) End(ctx context.Context, tenantID, callID string) error {
	m.mu.Lock()
	c, ok := m.calls[callID]
	if !ok || c.tenantID != tenantID {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrCallNotFound, callID)
	}
	delete(m.calls, callID)
	m.mu.Unlock()
	metrics.ActiveCalls.Dec()

	c.close(types.CallStatusCompleted)
	if m.store != nil {
		if err := m.store.Delete(ctx, tenantID, callID); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Printf("[WARN] 删除检查点失败: call_id=%s, err=%v", callID, err)
		}
	}
	return nil
}

// Shutdown 关闭所有通话，检查点保留以便恢复
func (m *Manager) Shutdown() {
	m.mu.Lock()
	calls := m.calls
	m.calls = make(map[string]*Call)
	m.mu.Unlock()

	for _, c := range calls {
		metrics.ActiveCalls.Dec()
		c.close(types.CallStatusError)
	}
	log.Printf("[INFO] 通话管理器已关闭: calls=%d", len(calls))
}

// instructions 远端会话的系统指令
func instructions(script *models.Script, base string) string {
	var b strings.Builder
	if base != "" {
		b.WriteString(base)
		b.WriteString("\n\n")
	}
	name := script.Name
	if name == "" {
		name = script.Industry
	}
	fmt.Fprintf(&b, "You are the voice of an outbound %s call (%s). ", script.Industry, name)
	b.WriteString("Each reply you speak is provided as a system message; say it exactly as written, warmly and naturally. ")
	b.WriteString("Do not invent prices, promises or appointment times. Use lookup_knowledge when asked a factual question.")
	return b.String()
}
