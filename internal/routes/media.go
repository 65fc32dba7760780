package routes

import (
	"github.com/gin-gonic/gin"

	"ai_call_agent/internal/handlers"
)

// RegisterMediaRoutes 注册媒体 WebSocket 路由
func RegisterMediaRoutes(g *gin.RouterGroup, h *handlers.MediaHandler) {
	g.GET("/:id/media", h.HandleWebSocket)
}
