package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"clinic-agent-go/internal/config"
	"clinic-agent-go/internal/model"
	"clinic-agent-go/internal/repository"
	"clinic-agent-go/internal/tool"
	"clinic-agent-go/pkg/llm"
	"clinic-agent-go/pkg/log"
)

const (
	agentTemperature   = 0.7
	agentMaxTokens     = 1000
	agentHistoryWindow = 20

	defaultMaxToolCalls      = 5
	defaultFAQConfidenceGate = 0.5
)

// AgentService 定义了调度 Agent 的对话操作接口。
type AgentService interface {
	// Chat 处理一条用户消息并返回回复。任何内部错误都折叠为
	// 面向用户的道歉文案，接口本身不返回错误。
	Chat(ctx context.Context, message, sessionID, modelName string) string
	ClearSession(ctx context.Context, sessionID string) error
	GetSessionInfo(ctx context.Context, sessionID string) (*model.SessionInfo, error)
}

type agentService struct {
	faqService  FAQService
	llmClient   llm.Client
	sessionRepo repository.SessionRepository
	classifier  IntentClassifier
	tools       []tool.Tool
	agentCfg    config.AgentConfig

	// sessionLocks 对同一会话的消息做串行化，避免历史交叉写入。
	sessionLocks sync.Map
}

// NewAgentService 创建调度 Agent 服务。
func NewAgentService(
	faqService FAQService,
	llmClient llm.Client,
	sessionRepo repository.SessionRepository,
	classifier IntentClassifier,
	tools []tool.Tool,
	agentCfg config.AgentConfig,
) AgentService {
	return &agentService{
		faqService:  faqService,
		llmClient:   llmClient,
		sessionRepo: sessionRepo,
		classifier:  classifier,
		tools:       tools,
		agentCfg:    agentCfg,
	}
}

// Chat 先尝试 FAQ 直答，未命中时走带工具的 LLM 对话流程。
func (s *agentService) Chat(ctx context.Context, message, sessionID, modelName string) string {
	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	// FAQ 直答：疑问句且不含预约意图时先查知识库，
	// 置信度过线则跳过工具流程直接返回。
	if s.classifier.Classify(message) == IntentFAQ {
		if answer, ok := s.tryFAQ(ctx, message, modelName); ok {
			if err := s.appendExchange(ctx, sessionID, message, answer); err != nil {
				log.Errorf("[AgentService] 保存 FAQ 直答历史失败: %v", err)
			}
			return answer
		}
	}

	datedMessage := fmt.Sprintf(
		"[Today's date: %s]\n\nUser message: %s",
		time.Now().Format("2006-01-02"), message,
	)

	history, err := s.agentHistory(ctx, sessionID)
	if err != nil {
		return apology(err)
	}
	history = append(history, model.ChatMessage{
		Role:      "user",
		Content:   datedMessage,
		Timestamp: time.Now(),
	})

	gen := s.buildGenerationParams()
	result, err := s.llmClient.ChatCompletion(ctx, llm.CompletionRequest{
		Model:      modelName,
		Messages:   toLLMMessages(history),
		Tools:      s.toolSchemas(),
		ToolChoice: "auto",
		Gen:        gen,
	})
	if err != nil {
		log.Errorf("[AgentService] 首轮对话失败: %v", err)
		return apology(err)
	}

	finalResponse := result.Content
	if len(result.ToolCalls) > 0 {
		history = s.appendToolRound(ctx, history, result.ToolCalls)
		second, err := s.llmClient.ChatCompletion(ctx, llm.CompletionRequest{
			Model:    modelName,
			Messages: toLLMMessages(history),
			Gen:      gen,
		})
		if err != nil {
			log.Errorf("[AgentService] 工具结果汇总失败: %v", err)
			return apology(err)
		}
		finalResponse = second.Content
	}

	history = append(history, model.ChatMessage{
		Role:      "assistant",
		Content:   finalResponse,
		Timestamp: time.Now(),
	})
	if err := s.sessionRepo.UpdateHistory(ctx, sessionID, repository.ChannelAgent, history, agentHistoryWindow); err != nil {
		log.Errorf("[AgentService] 保存会话历史失败: %v", err)
	}
	if err := s.sessionRepo.SetSessionValue(ctx, sessionID, "last_model", modelName); err != nil {
		log.Errorf("[AgentService] 记录会话元数据失败: %v", err)
	}
	return finalResponse
}

// ClearSession 清空会话的全部历史与元数据。
func (s *agentService) ClearSession(ctx context.Context, sessionID string) error {
	return s.sessionRepo.ClearSession(ctx, sessionID)
}

// GetSessionInfo 返回会话概要，消息数不含 system 消息。
func (s *agentService) GetSessionInfo(ctx context.Context, sessionID string) (*model.SessionInfo, error) {
	history, err := s.sessionRepo.GetHistory(ctx, sessionID, repository.ChannelAgent)
	if err != nil {
		return nil, fmt.Errorf("failed to load session history: %w", err)
	}
	data, err := s.sessionRepo.GetSessionData(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session data: %w", err)
	}

	count := len(history) - 1
	if count < 0 {
		count = 0
	}
	return &model.SessionInfo{
		SessionID:    sessionID,
		MessageCount: count,
		SessionData:  data,
	}, nil
}

// tryFAQ 走知识库问答，置信度过线时返回答案。
func (s *agentService) tryFAQ(ctx context.Context, message, modelName string) (string, bool) {
	answer, err := s.faqService.Ask(ctx, message, "", modelName)
	if err != nil {
		log.Errorf("[AgentService] FAQ 直答失败: %v", err)
		return "", false
	}
	gate := s.agentCfg.FAQConfidenceGate
	if gate <= 0 {
		gate = defaultFAQConfidenceGate
	}
	if answer.Confidence > gate {
		return answer.Answer, true
	}
	return "", false
}

// appendToolRound 把助手的工具调用与各工具的执行结果追加进历史。
// 超出调用上限的项不执行，回填结构化错误。
func (s *agentService) appendToolRound(ctx context.Context, history []model.ChatMessage, toolCalls []llm.ToolCall) []model.ChatMessage {
	records := make([]model.ToolCallRecord, 0, len(toolCalls))
	for _, tc := range toolCalls {
		records = append(records, model.ToolCallRecord{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	history = append(history, model.ChatMessage{
		Role:      "assistant",
		Content:   "",
		ToolCalls: records,
		Timestamp: time.Now(),
	})

	maxCalls := s.agentCfg.MaxToolCalls
	if maxCalls <= 0 {
		maxCalls = defaultMaxToolCalls
	}

	for i, tc := range toolCalls {
		var result map[string]interface{}
		if i >= maxCalls {
			result = map[string]interface{}{"error": "tool call limit exceeded"}
		} else {
			result = s.executeTool(ctx, tc.Function.Name, tc.Function.Arguments)
		}

		content, err := json.Marshal(result)
		if err != nil {
			content = []byte(`{"error": "failed to encode tool result"}`)
		}
		history = append(history, model.ChatMessage{
			Role:       "tool",
			Content:    string(content),
			ToolCallID: tc.ID,
			Name:       tc.Function.Name,
			Timestamp:  time.Now(),
		})
	}
	return history
}

func (s *agentService) executeTool(ctx context.Context, name, arguments string) map[string]interface{} {
	for _, t := range s.tools {
		if t.Name() == name {
			log.Infof("[AgentService] 执行工具: %s", name)
			return t.Execute(ctx, arguments)
		}
	}
	return map[string]interface{}{"error": fmt.Sprintf("Unknown tool: %s", name)}
}

// agentHistory 加载 Agent 通道历史，空会话时注入 system 指令。
func (s *agentService) agentHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	history, err := s.sessionRepo.GetHistory(ctx, sessionID, repository.ChannelAgent)
	if err != nil {
		return nil, fmt.Errorf("failed to load session history: %w", err)
	}
	if len(history) == 0 {
		history = append(history, model.ChatMessage{
			Role:      "system",
			Content:   agentSystemPrompt,
			Timestamp: time.Now(),
		})
	}
	return history, nil
}

// appendExchange 把一问一答追加进 Agent 通道历史。
func (s *agentService) appendExchange(ctx context.Context, sessionID, userMessage, assistantMessage string) error {
	history, err := s.agentHistory(ctx, sessionID)
	if err != nil {
		return err
	}
	history = append(history,
		model.ChatMessage{Role: "user", Content: userMessage, Timestamp: time.Now()},
		model.ChatMessage{Role: "assistant", Content: assistantMessage, Timestamp: time.Now()},
	)
	return s.sessionRepo.UpdateHistory(ctx, sessionID, repository.ChannelAgent, history, agentHistoryWindow)
}

func (s *agentService) lockFor(sessionID string) *sync.Mutex {
	mu, _ := s.sessionLocks.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *agentService) toolSchemas() []llm.Tool {
	schemas := make([]llm.Tool, 0, len(s.tools))
	for _, t := range s.tools {
		schemas = append(schemas, t.Description())
	}
	return schemas
}

func (s *agentService) buildGenerationParams() *llm.GenerationParams {
	temperature := agentTemperature
	maxTokens := agentMaxTokens
	return &llm.GenerationParams{Temperature: &temperature, MaxTokens: &maxTokens}
}

func toLLMMessages(history []model.ChatMessage) []llm.Message {
	messages := make([]llm.Message, 0, len(history))
	for _, m := range history {
		msg := llm.Message{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, record := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID:   record.ID,
				Type: "function",
				Function: llm.ToolCallFunction{
					Name:      record.Name,
					Arguments: record.Arguments,
				},
			})
		}
		messages = append(messages, msg)
	}
	return messages
}

func apology(err error) string {
	return fmt.Sprintf("I apologize, but I encountered an error: %v", err)
}
