package realtime

import (
	"errors"
	"fmt"
	"time"
)

// 实时客户端相关错误
var (
	ErrConnectTimeout = errors.New("等待session.created超时")
	ErrClosed         = errors.New("实时客户端已关闭")
	ErrToolExists     = errors.New("工具已注册")
	ErrInvalidTool    = errors.New("工具定义无效")
	ErrInvalidParams  = errors.New("参数无效")
	ErrQueueFull      = errors.New("待发送队列已满")
)

// ConnectionError 连接阶段的传输失败或超时
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("实时连接错误(%s): %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError 远端消息格式错误或远端报告的协议错误
type ProtocolError struct {
	Code    string
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("协议错误: %v", e.Err)
	}
	return fmt.Sprintf("协议错误[%s]: %s", e.Code, e.Message)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ToolTimeoutError 工具处理函数超过时限
type ToolTimeoutError struct {
	Tool    string
	CallID  string
	Timeout time.Duration
}

func (e *ToolTimeoutError) Error() string {
	return fmt.Sprintf("工具 %s 执行超时(%v), call_id=%s", e.Tool, e.Timeout, e.CallID)
}
