// Package middleware 提供HTTP中间件
package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ai_call_agent/internal/metrics"
)

const (
	// TenantHeader 租户ID请求头
	TenantHeader = "X-Tenant-ID"
	// tenantQuery WebSocket 握手无法设置请求头时使用的查询参数
	tenantQuery = "tenant_id"
	tenantKey   = "tenant_id"
)

// Logger 日志中间件
func Logger() gin.HandlerFunc {
	return gin.Logger()
}

// Recovery 恢复中间件
func Recovery() gin.HandlerFunc {
	return gin.Recovery()
}

// CORS CORS中间件
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, "+TenantHeader)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Metrics 请求计数中间件，未匹配的路由记为 unmatched
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Tenant 要求请求携带租户ID
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader(TenantHeader)
		if tenantID == "" {
			tenantID = c.Query(tenantQuery)
		}
		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "缺少租户ID"})
			return
		}
		c.Set(tenantKey, tenantID)
		c.Next()
	}
}

// TenantID 读取 Tenant 中间件写入的租户ID
func TenantID(c *gin.Context) string {
	return c.GetString(tenantKey)
}

// Setup 设置中间件
func Setup(r *gin.Engine) {
	r.Use(Logger())
	r.Use(Recovery())
	r.Use(CORS())
	r.Use(Metrics())
}
