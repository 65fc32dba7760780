// Package routes 注册HTTP路由
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ai_call_agent/internal/call"
	"ai_call_agent/internal/handlers"
	"ai_call_agent/internal/metrics"
	"ai_call_agent/internal/middleware"
)

// Options 路由依赖
type Options struct {
	Manager  *call.Manager
	Media    handlers.MediaConfig
	Registry *prometheus.Registry // 为空时使用独立的注册器
}

// NewEngine 创建带全部中间件和路由的 gin 引擎
func NewEngine(opts Options) *gin.Engine {
	r := gin.New()
	middleware.Setup(r)
	RegisterRoutes(r, opts)
	return r
}

// RegisterRoutes 注册所有路由
func RegisterRoutes(r *gin.Engine, opts Options) {
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	metrics.Register(reg)

	r.GET("/", handlers.Index)
	r.GET("/health", handlers.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	calls := r.Group("/calls", middleware.Tenant())
	RegisterCallRoutes(calls, handlers.NewCallHandler(opts.Manager))
	RegisterMediaRoutes(calls, handlers.NewMediaHandler(opts.Manager, opts.Media))
}
