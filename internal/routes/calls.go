package routes

import (
	"github.com/gin-gonic/gin"

	"ai_call_agent/internal/handlers"
)

// RegisterCallRoutes 注册通话管理路由
func RegisterCallRoutes(g *gin.RouterGroup, h *handlers.CallHandler) {
	g.POST("", h.Start)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.End)
	g.POST("/:id/input", h.Input)
	g.GET("/:id/metrics", h.Metrics)
	g.PUT("/:id/state", h.SetState)
	g.POST("/:id/resume", h.Resume)
}
