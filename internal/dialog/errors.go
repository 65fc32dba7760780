package dialog

import (
	"errors"
	"fmt"
)

// 对话引擎相关错误
var (
	ErrUnknownState      = errors.New("未知的对话阶段")
	ErrInvalidTransition = errors.New("非法的阶段跳转")
	ErrNoScript          = errors.New("缺少话术脚本")
)

// ReasoningError 推理流水线内部失败，只在引擎内部记录，不会返回给调用方
type ReasoningError struct {
	Stage string
	Err   error
}

func (e *ReasoningError) Error() string {
	return fmt.Sprintf("推理失败(%s): %v", e.Stage, e.Err)
}

func (e *ReasoningError) Unwrap() error { return e.Err }

// ValidationError 输入为空或超长
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("输入校验失败: %s %s", e.Field, e.Reason)
}
