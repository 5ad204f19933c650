package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"clinic-agent-go/internal/config"
	"clinic-agent-go/internal/model"
	"clinic-agent-go/internal/service"
	"clinic-agent-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// FAQHandler 负责处理知识库问答相关的 API 请求。
type FAQHandler struct {
	faqService service.FAQService
}

// NewFAQHandler 创建一个新的 FAQHandler 实例。
func NewFAQHandler(faqService service.FAQService) *FAQHandler {
	return &FAQHandler{faqService: faqService}
}

// Ask 处理一次非流式的 FAQ 问答请求。
func (h *FAQHandler) Ask(c *gin.Context) {
	var req model.FaqRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Ask: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：question 不能为空",
		})
		return
	}

	answer, err := h.faqService.Ask(c.Request.Context(), req.Question, req.SessionID, req.Model)
	if err != nil {
		log.Error("Ask: FAQ answering failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "问答失败，请稍后重试",
		})
		return
	}

	modelUsed := req.Model
	if modelUsed == "" {
		modelUsed = config.Conf.LLM.Model
	}
	c.JSON(http.StatusOK, model.FaqResponseDTO{
		Answer:      answer.Answer,
		Sources:     answer.Sources,
		Confidence:  answer.Confidence,
		ContextUsed: answer.ContextUsed,
		ModelUsed:   modelUsed,
	})
}

// streamQuery 是 WebSocket 消息的载荷，也接受裸文本问题。
type streamQuery struct {
	Question string `json:"question"`
	Model    string `json:"model"`
}

// Stream 处理一个传入的 WebSocket 连接，对每条问题流式推送回答。
func (h *FAQHandler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("FAQ WebSocket 连接已建立: %s", c.ClientIP())

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var query streamQuery
		if err := json.Unmarshal(message, &query); err != nil || query.Question == "" {
			// 非 JSON 消息按裸文本问题处理
			query = streamQuery{Question: string(message)}
		}

		if err := h.faqService.StreamAnswer(c.Request.Context(), query.Question, query.Model, conn); err != nil {
			log.Error("Stream: FAQ streaming failed", err)
			sendStreamError(conn)
		}
	}
}

func sendStreamError(conn *websocket.Conn) {
	payload := map[string]interface{}{
		"type":      "error",
		"message":   "问答失败，请稍后重试",
		"timestamp": time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(payload)
	_ = conn.WriteMessage(websocket.TextMessage, b)
}
