package http

import (
	"errors"

	"QueryLink/internal/modules/assistant/application/dto/request"
	"QueryLink/internal/modules/assistant/application/service"
	"QueryLink/pkg/back"
	"QueryLink/pkg/xerr"
	"QueryLink/pkg/zlog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AssistantHandler 问答助手 HTTP Handler
type AssistantHandler struct {
	svc service.AssistantService
}

// NewAssistantHandler 创建 AssistantHandler
func NewAssistantHandler(svc service.AssistantService) *AssistantHandler {
	return &AssistantHandler{svc: svc}
}

// Query 处理自然语言问答请求
//
// 路由: POST /api/query
// 请求体: QueryRequest
// 响应体: QueryRespond（失败的尝试也是 200，Outcome=failure）
func (h *AssistantHandler) Query(c *gin.Context) {
	var req request.QueryRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error("query bind error", zap.Error(err))
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	data, err := h.svc.Answer(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, xerr.ErrInvalidInput) {
			back.Error(c, xerr.BadRequest, xerr.ErrInvalidInput.Message)
			return
		}
		zlog.Error("query failed", zap.Error(err))
	}
	back.Result(c, data, err)
}

// Tables 列出目标库可见的表
//
// 路由: GET /api/tables
func (h *AssistantHandler) Tables(c *gin.Context) {
	data, err := h.svc.Tables(c.Request.Context())
	if err != nil {
		zlog.Error("tables failed", zap.Error(err))
	}
	back.Result(c, data, err)
}

// Stats 历史问答统计
//
// 路由: GET /api/stats
func (h *AssistantHandler) Stats(c *gin.Context) {
	data, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		zlog.Error("stats failed", zap.Error(err))
	}
	back.Result(c, data, err)
}

// Suggestions 按相似度补全历史问题
//
// 路由: GET /api/suggestions?q=<partial>
func (h *AssistantHandler) Suggestions(c *gin.Context) {
	data, err := h.svc.Suggestions(c.Request.Context(), c.Query("q"))
	if err != nil {
		zlog.Error("suggestions failed", zap.Error(err))
	}
	back.Result(c, data, err)
}

// Healthz 存活探针
//
// 路由: GET /healthz
func (h *AssistantHandler) Healthz(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
