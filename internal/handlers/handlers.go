// Package handlers 提供通话管理和媒体通道的HTTP处理器
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ai_call_agent/internal/call"
	"ai_call_agent/internal/clients/scripts"
	"ai_call_agent/internal/dialog"
)

const serviceName = "ai_call_agent"

// Index 根路由
func Index(c *gin.Context) {
	c.String(http.StatusOK, "AI Call Agent Server Running")
}

// Health 健康检查
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
		"time":    time.Now().Format(time.RFC3339),
	})
}

// errorStatus 业务错误对应的HTTP状态码
func errorStatus(err error) int {
	switch {
	case errors.Is(err, call.ErrCallNotFound), errors.Is(err, scripts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, call.ErrInvalidRequest), errors.Is(err, dialog.ErrUnknownState):
		return http.StatusBadRequest
	case errors.Is(err, call.ErrCallExists), errors.Is(err, call.ErrCallActive),
		errors.Is(err, call.ErrCallEnded), errors.Is(err, call.ErrNoRealtime),
		errors.Is(err, dialog.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, call.ErrNoStore):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// abortWithError 以统一格式返回错误
func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errorStatus(err), gin.H{"error": err.Error()})
}
