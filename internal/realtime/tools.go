package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"ai_call_agent/internal/metrics"
	"ai_call_agent/internal/realtime/protocol"
)

// ToolHandler 工具处理函数，返回值会被序列化为JSON回传给远端
type ToolHandler func(ctx context.Context, args json.RawMessage) (any, error)

// PendingFunctionCall 远端发起、尚未完成的工具调用
type PendingFunctionCall struct {
	Name      string
	Arguments json.RawMessage
	CallID    string
	Deadline  time.Time
}

type registeredTool struct {
	def     protocol.ToolDefinition
	handler ToolHandler
}

type toolResult struct {
	value any
	err   error
}

// toolDefinitionsLocked 按名称排序的工具声明，调用方持有 c.mu
func (c *Client) toolDefinitionsLocked() []protocol.ToolDefinition {
	if len(c.tools) == 0 {
		return nil
	}
	defs := make([]protocol.ToolDefinition, 0, len(c.tools))
	for _, t := range c.tools {
		defs = append(defs, t.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// AddTool 注册工具；已连接时立即通过 session.update 声明
func (c *Client) AddTool(name, description string, schema map[string]any, handler ToolHandler) error {
	if name == "" || handler == nil {
		return ErrInvalidTool
	}

	c.mu.Lock()
	if _, ok := c.tools[name]; ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrToolExists, name)
	}
	c.tools[name] = registeredTool{
		def: protocol.ToolDefinition{
			Type:        "function",
			Name:        name,
			Description: description,
			Parameters:  schema,
		},
		handler: handler,
	}
	ready := c.ready
	defs := c.toolDefinitionsLocked()
	c.mu.Unlock()

	log.Printf("[INFO] 注册工具: name=%s", name)
	if !ready {
		return nil
	}
	return c.send(&protocol.SessionUpdate{Session: protocol.SessionConfig{Tools: defs}})
}

// handleFunctionCall 执行工具并回传结果，任何失败都会回传错误内容
func (c *Client) handleFunctionCall(m *protocol.FunctionCallArgumentsDone) {
	call := PendingFunctionCall{
		Name:      m.Name,
		Arguments: json.RawMessage(m.Arguments),
		CallID:    m.CallID,
		Deadline:  c.clock.Now().Add(c.cfg.ToolTimeout),
	}
	if len(call.Arguments) == 0 {
		call.Arguments = json.RawMessage("{}")
	}

	c.mu.Lock()
	t, ok := c.tools[call.Name]
	c.mu.Unlock()

	var output string
	switch {
	case !ok:
		log.Printf("[WARN] 未注册的工具: name=%s, call_id=%s", call.Name, call.CallID)
		metrics.ToolCallsTotal.WithLabelValues(call.Name, "unknown").Inc()
		output = errorOutput(fmt.Sprintf("unknown tool: %s", call.Name))
	case !json.Valid(call.Arguments):
		log.Printf("[WARN] 工具参数不是合法JSON: name=%s, call_id=%s", call.Name, call.CallID)
		metrics.ToolCallsTotal.WithLabelValues(call.Name, "error").Inc()
		output = errorOutput("invalid arguments")
	default:
		output = c.invokeTool(t, call)
	}

	if err := c.send(protocol.NewFunctionCallOutput(call.CallID, output)); err != nil {
		log.Printf("[ERROR] 回传工具结果失败: call_id=%s, err=%v", call.CallID, err)
		return
	}
	if err := c.send(&protocol.ResponseCreate{}); err != nil {
		log.Printf("[ERROR] 请求远端继续回复失败: call_id=%s, err=%v", call.CallID, err)
	}
}

// invokeTool 在独立协程中执行处理函数，超时后不再等待
func (c *Client) invokeTool(t registeredTool, call PendingFunctionCall) string {
	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	resultCh := make(chan toolResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- toolResult{err: fmt.Errorf("tool panic: %v", r)}
			}
		}()
		v, err := t.handler(ctx, call.Arguments)
		resultCh <- toolResult{value: v, err: err}
	}()

	timer := c.clock.NewTimer(c.cfg.ToolTimeout)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		if res.err != nil {
			log.Printf("[WARN] 工具执行失败: name=%s, call_id=%s, err=%v", call.Name, call.CallID, res.err)
			metrics.ToolCallsTotal.WithLabelValues(call.Name, "error").Inc()
			return errorOutput(res.err.Error())
		}
		data, err := json.Marshal(res.value)
		if err != nil {
			metrics.ToolCallsTotal.WithLabelValues(call.Name, "error").Inc()
			return errorOutput(fmt.Sprintf("encode result: %v", err))
		}
		metrics.ToolCallsTotal.WithLabelValues(call.Name, "success").Inc()
		return string(data)
	case <-timer.Chan():
		terr := &ToolTimeoutError{Tool: call.Name, CallID: call.CallID, Timeout: c.cfg.ToolTimeout}
		log.Printf("[WARN] %v", terr)
		metrics.ToolCallsTotal.WithLabelValues(call.Name, "timeout").Inc()
		c.emit(ErrorEvent{Err: terr})
		return errorOutput(terr.Error())
	case <-ctx.Done():
		metrics.ToolCallsTotal.WithLabelValues(call.Name, "error").Inc()
		return errorOutput("client closed")
	}
}

func errorOutput(msg string) string {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return string(data)
}
