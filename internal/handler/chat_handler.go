// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"time"

	"clinic-agent-go/internal/config"
	"clinic-agent-go/internal/model"
	"clinic-agent-go/internal/service"
	"clinic-agent-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ChatHandler 负责处理调度 Agent 的对话 API 请求。
type ChatHandler struct {
	agentService service.AgentService
}

// NewChatHandler 创建一个新的 ChatHandler 实例。
func NewChatHandler(agentService service.AgentService) *ChatHandler {
	return &ChatHandler{agentService: agentService}
}

// Chat 处理一轮对话请求。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req model.ChatRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Chat: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：message 和 session_id 不能为空",
		})
		return
	}

	response := h.agentService.Chat(c.Request.Context(), req.Message, req.SessionID, req.Model)

	modelUsed := req.Model
	if modelUsed == "" {
		modelUsed = config.Conf.LLM.Model
	}
	c.JSON(http.StatusOK, model.ChatResponseDTO{
		Response:  response,
		SessionID: req.SessionID,
		Timestamp: time.Now(),
		ModelUsed: modelUsed,
	})
}

// ClearSession 清空指定会话的历史与元数据。
func (h *ChatHandler) ClearSession(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if err := h.agentService.ClearSession(c.Request.Context(), sessionID); err != nil {
		log.Error("ClearSession: failed to clear session", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "清空会话失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Session cleared successfully",
	})
}

// SessionInfo 返回指定会话的概要信息。
func (h *ChatHandler) SessionInfo(c *gin.Context) {
	sessionID := c.Param("sessionId")
	info, err := h.agentService.GetSessionInfo(c.Request.Context(), sessionID)
	if err != nil {
		log.Error("SessionInfo: failed to load session info", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "获取会话信息失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    info,
	})
}
