package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"ai_call_agent/internal/call"
	"ai_call_agent/internal/dialog"
	"ai_call_agent/internal/middleware"
	"ai_call_agent/internal/types"
)

// CallHandler 通话管理处理器
type CallHandler struct {
	manager *call.Manager
}

// NewCallHandler 创建通话管理处理器
func NewCallHandler(manager *call.Manager) *CallHandler {
	return &CallHandler{manager: manager}
}

type inputRequest struct {
	Text string `json:"text"`
}

type stateRequest struct {
	State string `json:"state" binding:"required"`
}

// callDetail 通话详情
type callDetail struct {
	Call          types.CallSummary           `json:"call"`
	History       []dialog.Turn               `json:"history"`
	Criteria      map[string]dialog.Criterion `json:"criteria"`
	Qualification float64                     `json:"qualification_score"`
	Qualified     bool                        `json:"qualified"`
	Transfer      *types.TransferSignal       `json:"transfer,omitempty"`
}

// Start 发起通话，返回通话概要和开场白
func (h *CallHandler) Start(c *gin.Context) {
	var req call.StartRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	req.TenantID = middleware.TenantID(c)

	cl, err := h.manager.Start(c.Request.Context(), req)
	if err != nil {
		log.Printf("[WARN] 发起通话失败: tenant=%s, err=%v", req.TenantID, err)
		abortWithError(c, err)
		return
	}

	var greeting string
	if history := cl.Engine().History(); len(history) > 0 {
		greeting = history[0].Content
	}
	c.JSON(http.StatusCreated, gin.H{
		"call":     cl.Summary(),
		"greeting": greeting,
	})
}

// List 列出租户下的通话
func (h *CallHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"calls": h.manager.List(middleware.TenantID(c))})
}

// Get 通话详情，包括历史和资质评分
func (h *CallHandler) Get(c *gin.Context) {
	cl, ok := h.lookup(c)
	if !ok {
		return
	}
	engine := cl.Engine()
	c.JSON(http.StatusOK, callDetail{
		Call:          cl.Summary(),
		History:       engine.History(),
		Criteria:      engine.QualificationCriteria(),
		Qualification: engine.QualificationScore(),
		Qualified:     engine.Qualified(),
		Transfer:      cl.Transfer(),
	})
}

// Input 提交一轮客户文本
func (h *CallHandler) Input(c *gin.Context) {
	var req inputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cl, ok := h.lookup(c)
	if !ok {
		return
	}

	resp, err := cl.HandleInput(c.Request.Context(), req.Text)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"response": resp,
		"status":   cl.Status(),
	})
}

// Metrics 通话统计
func (h *CallHandler) Metrics(c *gin.Context) {
	cl, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, cl.Engine().ConversationMetrics())
}

// SetState 人工调整对话阶段
func (h *CallHandler) SetState(c *gin.Context) {
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cl, ok := h.lookup(c)
	if !ok {
		return
	}

	state, err := dialog.ParseState(req.State)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := cl.Engine().SetState(state); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": cl.Engine().CurrentState()})
}

// Resume 从检查点恢复通话
func (h *CallHandler) Resume(c *gin.Context) {
	cl, err := h.manager.Resume(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call": cl.Summary()})
}

// End 挂断通话
func (h *CallHandler) End(c *gin.Context) {
	if err := h.manager.End(c.Request.Context(), middleware.TenantID(c), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CallHandler) lookup(c *gin.Context) (*call.Call, bool) {
	cl, err := h.manager.Get(middleware.TenantID(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	return cl, true
}
