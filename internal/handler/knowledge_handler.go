package handler

import (
	"net/http"

	"clinic-agent-go/internal/service"
	"clinic-agent-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// KnowledgeHandler 负责知识索引的运维操作。
type KnowledgeHandler struct {
	knowledgeService service.KnowledgeService
}

// NewKnowledgeHandler 创建一个新的 KnowledgeHandler 实例。
func NewKnowledgeHandler(knowledgeService service.KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{knowledgeService: knowledgeService}
}

// Reset 删除并重建知识索引，然后从知识源重新导入。
func (h *KnowledgeHandler) Reset(c *gin.Context) {
	if err := h.knowledgeService.Reset(c.Request.Context()); err != nil {
		log.Error("Reset: knowledge index reset failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "知识索引重置失败",
		})
		return
	}

	count, err := h.knowledgeService.Count(c.Request.Context())
	if err != nil {
		count = 0
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "知识索引已重置",
		"data":    gin.H{"document_count": count},
	})
}
