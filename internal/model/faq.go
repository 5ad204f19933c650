// Package model 定义了与存储结构对应的 Go 结构体。
package model

// FaqMetadata 是单条 FAQ 的原始问答元数据，随向量一起写入索引后不再变更。
type FaqMetadata struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category"`
}

// FaqDocument 代表存储在 Elasticsearch 中的 FAQ 文档结构。
type FaqDocument struct {
	FaqID        string    `json:"faq_id"`
	Content      string    `json:"content"`
	Question     string    `json:"question"`
	Answer       string    `json:"answer"`
	Category     string    `json:"category"`
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version"`
}

// RetrievalResult 是一次相似度检索命中的结果。
// Distance 为余弦距离（越小越相似，范围 [0,2]），Similarity = 1 - Distance，
// 由 RAG 过滤阶段填充。
type RetrievalResult struct {
	ID         string      `json:"id"`
	Document   string      `json:"document"`
	Metadata   FaqMetadata `json:"metadata"`
	Distance   float64     `json:"distance"`
	Similarity float64     `json:"similarity"`
}

// FaqAnswer 是 RAG 问答的聚合结果。
// Confidence 仅来自检索相似度的均值（上限 1.0），与生成服务无关。
type FaqAnswer struct {
	Answer      string   `json:"answer"`
	Sources     []string `json:"sources"`
	Confidence  float64  `json:"confidence"`
	ContextUsed bool     `json:"context_used"`
}

// FaqRequestDTO 定义了 FAQ 直连接口的请求体。
type FaqRequestDTO struct {
	Question  string `json:"question" binding:"required"`
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
}

// FaqResponseDTO 定义了 FAQ 直连接口的响应体。
type FaqResponseDTO struct {
	Answer      string   `json:"answer"`
	Sources     []string `json:"sources"`
	Confidence  float64  `json:"confidence"`
	ContextUsed bool     `json:"context_used"`
	ModelUsed   string   `json:"model_used"`
}
