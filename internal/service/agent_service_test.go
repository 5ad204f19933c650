package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"clinic-agent-go/internal/config"
	"clinic-agent-go/internal/model"
	"clinic-agent-go/internal/tool"
	"clinic-agent-go/pkg/llm"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFAQ 返回预置答案的 FAQService。
type fakeFAQ struct {
	answer *model.FaqAnswer
	err    error
	asked  []string
}

func (f *fakeFAQ) RetrieveContext(ctx context.Context, query string, k int, minSimilarity float64) ([]model.RetrievalResult, string, error) {
	return nil, noContextPlaceholder, nil
}

func (f *fakeFAQ) GenerateAnswer(ctx context.Context, question, contextText, sessionID, modelName string) string {
	return ""
}

func (f *fakeFAQ) Ask(ctx context.Context, question, sessionID, modelName string) (*model.FaqAnswer, error) {
	f.asked = append(f.asked, question)
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

func (f *fakeFAQ) StreamAnswer(ctx context.Context, question, modelName string, conn *websocket.Conn) error {
	return nil
}

// fakeTool 记录调用参数并返回预置结果。
type fakeTool struct {
	name   string
	args   []string
	result map[string]interface{}
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Description() llm.Tool {
	return llm.Tool{Type: "function", Function: llm.ToolFunction{Name: f.name}}
}

func (f *fakeTool) Execute(ctx context.Context, arguments string) map[string]interface{} {
	f.args = append(f.args, arguments)
	return f.result
}

func toolCall(id, name, arguments string) llm.ToolCall {
	return llm.ToolCall{
		ID:   id,
		Type: "function",
		Function: llm.ToolCallFunction{
			Name:      name,
			Arguments: arguments,
		},
	}
}

func newTestAgent(faq FAQService, llmClient llm.Client, sessions *fakeSessionRepo, tools []tool.Tool, cfg config.AgentConfig) AgentService {
	return NewAgentService(faq, llmClient, sessions, NewKeywordClassifier(), tools, cfg)
}

func TestChatFAQGate(t *testing.T) {
	ctx := context.Background()

	t.Run("confident faq answer short-circuits tools", func(t *testing.T) {
		faq := &fakeFAQ{answer: &model.FaqAnswer{Answer: "We open at nine.", Confidence: 0.9}}
		llmClient := &fakeLLM{}
		sessions := newFakeSessionRepo()
		agent := newTestAgent(faq, llmClient, sessions, nil, config.AgentConfig{})

		response := agent.Chat(ctx, "What are the opening hours", "sess-1", "")

		assert.Equal(t, "We open at nine.", response)
		assert.Empty(t, llmClient.requests)

		history, _ := sessions.GetHistory(ctx, "sess-1", "agent")
		require.Len(t, history, 3)
		assert.Equal(t, "What are the opening hours", history[1].Content)
		assert.Equal(t, "We open at nine.", history[2].Content)
	})

	t.Run("low confidence falls through to tool loop", func(t *testing.T) {
		faq := &fakeFAQ{answer: &model.FaqAnswer{Answer: "unsure", Confidence: 0.2}}
		llmClient := &fakeLLM{results: []*llm.CompletionResult{{Content: "tool loop answer"}}}
		agent := newTestAgent(faq, llmClient, newFakeSessionRepo(), nil, config.AgentConfig{})

		response := agent.Chat(ctx, "What are the opening hours", "sess-1", "")

		assert.Equal(t, "tool loop answer", response)
		assert.Len(t, llmClient.requests, 1)
	})

	t.Run("booking message skips faq entirely", func(t *testing.T) {
		faq := &fakeFAQ{answer: &model.FaqAnswer{Answer: "irrelevant", Confidence: 0.99}}
		llmClient := &fakeLLM{results: []*llm.CompletionResult{{Content: "let me check"}}}
		agent := newTestAgent(faq, llmClient, newFakeSessionRepo(), nil, config.AgentConfig{})

		agent.Chat(ctx, "book an appointment please", "sess-1", "")
		assert.Empty(t, faq.asked)
	})
}

func TestChatToolLoop(t *testing.T) {
	ctx := context.Background()

	t.Run("executes tool and feeds result back", func(t *testing.T) {
		availability := &fakeTool{name: "check_availability", result: map[string]interface{}{"slots": []string{"10:00"}}}
		llmClient := &fakeLLM{results: []*llm.CompletionResult{
			{ToolCalls: []llm.ToolCall{toolCall("call-1", "check_availability", `{"date":"2030-01-08"}`)}},
			{Content: "Dr. Smith has 10:00 free."},
		}}
		sessions := newFakeSessionRepo()
		agent := newTestAgent(&fakeFAQ{}, llmClient, sessions, []tool.Tool{availability}, config.AgentConfig{})

		response := agent.Chat(ctx, "book me an appointment", "sess-1", "")

		assert.Equal(t, "Dr. Smith has 10:00 free.", response)
		require.Len(t, availability.args, 1)
		assert.Equal(t, `{"date":"2030-01-08"}`, availability.args[0])

		// 首轮带工具，第二轮不带
		require.Len(t, llmClient.requests, 2)
		assert.NotEmpty(t, llmClient.requests[0].Tools)
		assert.Equal(t, "auto", llmClient.requests[0].ToolChoice)
		assert.Empty(t, llmClient.requests[1].Tools)

		// 第二轮请求包含工具结果消息
		second := llmClient.requests[1].Messages
		toolMsg := second[len(second)-1]
		assert.Equal(t, "tool", toolMsg.Role)
		assert.Equal(t, "call-1", toolMsg.ToolCallID)
		assert.Contains(t, toolMsg.Content, "10:00")
	})

	t.Run("unknown tool returns structured error payload", func(t *testing.T) {
		llmClient := &fakeLLM{results: []*llm.CompletionResult{
			{ToolCalls: []llm.ToolCall{toolCall("call-1", "get_weather", `{}`)}},
			{Content: "done"},
		}}
		agent := newTestAgent(&fakeFAQ{}, llmClient, newFakeSessionRepo(), nil, config.AgentConfig{})

		agent.Chat(ctx, "book something", "sess-1", "")

		second := llmClient.requests[1].Messages
		toolMsg := second[len(second)-1]

		var payload map[string]string
		require.NoError(t, json.Unmarshal([]byte(toolMsg.Content), &payload))
		assert.Equal(t, "Unknown tool: get_weather", payload["error"])
	})

	t.Run("tool calls beyond the cap are not executed", func(t *testing.T) {
		booking := &fakeTool{name: "book_appointment", result: map[string]interface{}{"success": true}}
		llmClient := &fakeLLM{results: []*llm.CompletionResult{
			{ToolCalls: []llm.ToolCall{
				toolCall("call-1", "book_appointment", `{"n":1}`),
				toolCall("call-2", "book_appointment", `{"n":2}`),
			}},
			{Content: "done"},
		}}
		agent := newTestAgent(&fakeFAQ{}, llmClient, newFakeSessionRepo(), []tool.Tool{booking}, config.AgentConfig{MaxToolCalls: 1})

		agent.Chat(ctx, "book twice", "sess-1", "")

		assert.Len(t, booking.args, 1)

		second := llmClient.requests[1].Messages
		overflowMsg := second[len(second)-1]
		assert.Contains(t, overflowMsg.Content, "tool call limit exceeded")
	})

	t.Run("user message carries dated prefix", func(t *testing.T) {
		llmClient := &fakeLLM{results: []*llm.CompletionResult{{Content: "ok"}}}
		agent := newTestAgent(&fakeFAQ{}, llmClient, newFakeSessionRepo(), nil, config.AgentConfig{})

		agent.Chat(ctx, "book me in", "sess-1", "")

		messages := llmClient.requests[0].Messages
		userMsg := messages[len(messages)-1]
		today := time.Now().Format("2006-01-02")
		assert.True(t, strings.HasPrefix(userMsg.Content, "[Today's date: "+today+"]"))
		assert.Contains(t, userMsg.Content, "User message: book me in")
	})

	t.Run("llm failure returns apology", func(t *testing.T) {
		llmClient := &fakeLLM{err: errors.New("rate limited")}
		agent := newTestAgent(&fakeFAQ{}, llmClient, newFakeSessionRepo(), nil, config.AgentConfig{})

		response := agent.Chat(ctx, "book me in", "sess-1", "")
		assert.True(t, strings.HasPrefix(response, "I apologize, but I encountered an error:"))
		assert.Contains(t, response, "rate limited")
	})
}

func TestChatHistoryWindow(t *testing.T) {
	ctx := context.Background()

	llmClient := &fakeLLM{results: []*llm.CompletionResult{{Content: "reply"}}}
	sessions := newFakeSessionRepo()
	agent := newTestAgent(&fakeFAQ{}, llmClient, sessions, nil, config.AgentConfig{})

	// 预填满窗口的历史
	seeded := []model.ChatMessage{{Role: "system", Content: agentSystemPrompt}}
	for i := 0; i < 20; i++ {
		seeded = append(seeded, model.ChatMessage{Role: "user", Content: "old"})
	}
	require.NoError(t, sessions.UpdateHistory(ctx, "sess-1", "agent", seeded, 0))

	agent.Chat(ctx, "book me in", "sess-1", "")

	history, err := sessions.GetHistory(ctx, "sess-1", "agent")
	require.NoError(t, err)
	assert.Len(t, history, 21)
	assert.Equal(t, "system", history[0].Role)
	assert.Equal(t, "reply", history[len(history)-1].Content)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()

	llmClient := &fakeLLM{results: []*llm.CompletionResult{{Content: "reply"}}}
	sessions := newFakeSessionRepo()
	agent := newTestAgent(&fakeFAQ{}, llmClient, sessions, nil, config.AgentConfig{})

	agent.Chat(ctx, "book me in", "sess-1", "test-model")

	info, err := agent.GetSessionInfo(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", info.SessionID)
	assert.Equal(t, 2, info.MessageCount) // system 消息不计数
	assert.Equal(t, "test-model", info.SessionData["last_model"])

	require.NoError(t, agent.ClearSession(ctx, "sess-1"))

	info, err = agent.GetSessionInfo(ctx, "sess-1")
	require.NoError(t, err)
	assert.Zero(t, info.MessageCount)
	assert.Empty(t, info.SessionData)
}
