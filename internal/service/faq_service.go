// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"clinic-agent-go/internal/config"
	"clinic-agent-go/internal/model"
	"clinic-agent-go/internal/repository"
	"clinic-agent-go/pkg/llm"
	"clinic-agent-go/pkg/log"

	"github.com/gorilla/websocket"
)

// FAQ 生成参数：低温度与 token 上限偏向简洁、贴合检索上下文的回答。
const (
	faqTemperature    = 0.3
	faqMaxTokens      = 500
	faqHistoryWindow  = 10
	defaultRetrieveK  = 3
	defaultMinSimilar = 0.3
)

// FAQService 定义了检索增强问答的操作接口。
type FAQService interface {
	// RetrieveContext 检索并过滤知识库上下文，返回通过阈值的结果与格式化的上下文文本。
	// 无结果通过阈值时上下文为占位文案，从不返回空字符串。
	RetrieveContext(ctx context.Context, query string, k int, minSimilarity float64) ([]model.RetrievalResult, string, error)
	// GenerateAnswer 基于上下文生成回答；生成失败返回固定的道歉文案而不是错误。
	GenerateAnswer(ctx context.Context, question, contextText, sessionID, modelName string) string
	// Ask 执行完整的检索-生成流程并给出置信度。
	Ask(ctx context.Context, question, sessionID, modelName string) (*model.FaqAnswer, error)
	// StreamAnswer 以 WebSocket 流式推送回答分块。
	StreamAnswer(ctx context.Context, question, modelName string, conn *websocket.Conn) error
}

type faqService struct {
	knowledgeService KnowledgeService
	llmClient        llm.Client
	sessionRepo      repository.SessionRepository
	knowledgeCfg     config.KnowledgeConfig
}

// NewFAQService 创建一个新的 FAQService 实例。
func NewFAQService(knowledgeService KnowledgeService, llmClient llm.Client, sessionRepo repository.SessionRepository, knowledgeCfg config.KnowledgeConfig) FAQService {
	return &faqService{
		knowledgeService: knowledgeService,
		llmClient:        llmClient,
		sessionRepo:      sessionRepo,
		knowledgeCfg:     knowledgeCfg,
	}
}

// RetrieveContext 检索知识库并按相似度阈值过滤。
func (s *faqService) RetrieveContext(ctx context.Context, query string, k int, minSimilarity float64) ([]model.RetrievalResult, string, error) {
	results, err := s.knowledgeService.Query(ctx, query, k)
	if err != nil {
		return nil, "", fmt.Errorf("failed to retrieve context: %w", err)
	}

	// 余弦距离转相似度后按阈值过滤
	filtered := make([]model.RetrievalResult, 0, len(results))
	for _, result := range results {
		similarity := 1 - result.Distance
		if similarity >= minSimilarity {
			result.Similarity = similarity
			filtered = append(filtered, result)
		}
	}

	if len(filtered) == 0 {
		return []model.RetrievalResult{}, noContextPlaceholder, nil
	}

	contextParts := make([]string, 0, len(filtered))
	for i, result := range filtered {
		contextParts = append(contextParts, fmt.Sprintf(
			"[Source %d]\nQ: %s\nA: %s\n",
			i+1, result.Metadata.Question, result.Metadata.Answer,
		))
	}
	return filtered, strings.Join(contextParts, "\n"), nil
}

// GenerateAnswer 组装会话消息并调用 LLM 生成回答。
// sessionID 非空时，历史中记录的是原始问题而非拼接了上下文的完整提示。
func (s *faqService) GenerateAnswer(ctx context.Context, question, contextText, sessionID, modelName string) string {
	messages := s.composeMessages(ctx, question, contextText, sessionID)

	gen := s.buildGenerationParams()
	result, err := s.llmClient.ChatCompletion(ctx, llm.CompletionRequest{
		Model:    modelName,
		Messages: messages,
		Gen:      gen,
	})
	if err != nil {
		log.Errorf("[FAQService] 生成回答失败: %v", err)
		return answerErrorFallback
	}
	answer := result.Content

	if sessionID != "" {
		if err := s.saveHistory(ctx, sessionID, question, answer); err != nil {
			// 只记录错误：回答已经生成，历史保存失败不应影响本轮结果
			log.Errorf("[FAQService] 保存 FAQ 会话历史失败: %v", err)
		}
	}
	return answer
}

// Ask 执行完整的 FAQ 问答流程。
// 置信度只来自通过阈值过滤的检索相似度均值，与生成服务无关。
func (s *faqService) Ask(ctx context.Context, question, sessionID, modelName string) (*model.FaqAnswer, error) {
	k := s.knowledgeCfg.RetrieveK
	if k <= 0 {
		k = defaultRetrieveK
	}
	minSimilarity := s.knowledgeCfg.MinSimilarity
	if minSimilarity <= 0 {
		minSimilarity = defaultMinSimilar
	}

	results, contextText, err := s.RetrieveContext(ctx, question, k, minSimilarity)
	if err != nil {
		return nil, err
	}

	answer := s.GenerateAnswer(ctx, question, contextText, sessionID, modelName)

	confidence := 0.0
	if len(results) > 0 {
		sum := 0.0
		for _, r := range results {
			sum += r.Similarity
		}
		confidence = sum / float64(len(results))
		if confidence > 1.0 {
			confidence = 1.0
		}
	}

	sources := make([]string, 0, len(results))
	for _, r := range results {
		sources = append(sources, r.Metadata.Question)
	}

	return &model.FaqAnswer{
		Answer:      answer,
		Sources:     sources,
		Confidence:  confidence,
		ContextUsed: len(results) > 0,
	}, nil
}

// StreamAnswer 检索上下文后以流式方式推送回答，分块包装为 {"chunk":"..."} JSON。
func (s *faqService) StreamAnswer(ctx context.Context, question, modelName string, conn *websocket.Conn) error {
	_, contextText, err := s.RetrieveContext(ctx, question, defaultRetrieveK, defaultMinSimilar)
	if err != nil {
		return err
	}

	messages := s.composeMessages(ctx, question, contextText, "")
	gen := s.buildGenerationParams()

	interceptor := &wsChunkWriter{conn: conn}
	if err := s.llmClient.StreamChatMessages(ctx, modelName, messages, gen, interceptor); err != nil {
		return err
	}

	sendCompletion(conn)
	return nil
}

// composeMessages 组装 system 指令、FAQ 通道历史与携带上下文的用户消息。
func (s *faqService) composeMessages(ctx context.Context, question, contextText, sessionID string) []llm.Message {
	var messages []llm.Message
	if sessionID != "" {
		history, err := s.sessionRepo.GetHistory(ctx, sessionID, repository.ChannelFAQ)
		if err != nil {
			log.Errorf("[FAQService] 加载 FAQ 会话历史失败: %v", err)
			history = []model.ChatMessage{}
		}
		for _, m := range history {
			messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
		}
	}
	if len(messages) == 0 {
		messages = append(messages, llm.Message{Role: "system", Content: faqSystemPrompt})
	}

	userMessage := fmt.Sprintf(
		"Context from clinic knowledge base:\n%s\n\nQuestion: %s\n\nPlease provide a helpful answer based on the context above.",
		contextText, question,
	)
	messages = append(messages, llm.Message{Role: "user", Content: userMessage})
	return messages
}

// saveHistory 把本轮问答追加进 FAQ 通道，窗口为 system 加最近 10 条。
func (s *faqService) saveHistory(ctx context.Context, sessionID, question, answer string) error {
	history, err := s.sessionRepo.GetHistory(ctx, sessionID, repository.ChannelFAQ)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		history = append(history, model.ChatMessage{
			Role:      "system",
			Content:   faqSystemPrompt,
			Timestamp: time.Now(),
		})
	}
	history = append(history,
		model.ChatMessage{Role: "user", Content: question, Timestamp: time.Now()},
		model.ChatMessage{Role: "assistant", Content: answer, Timestamp: time.Now()},
	)
	return s.sessionRepo.UpdateHistory(ctx, sessionID, repository.ChannelFAQ, history, faqHistoryWindow)
}

func (s *faqService) buildGenerationParams() *llm.GenerationParams {
	temperature := faqTemperature
	maxTokens := faqMaxTokens
	return &llm.GenerationParams{Temperature: &temperature, MaxTokens: &maxTokens}
}

// wsChunkWriter 是对 websocket.Conn 的封装，将原始分块包装成 {"chunk":"..."}。
type wsChunkWriter struct {
	conn *websocket.Conn
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsChunkWriter) WriteMessage(messageType int, data []byte) error {
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(ws *websocket.Conn) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	}
	b, _ := json.Marshal(notif)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}
