package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"clinic-agent-go/internal/config"
	"clinic-agent-go/internal/model"
	"clinic-agent-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKnowledge 返回预置检索结果的 KnowledgeService。
type fakeKnowledge struct {
	results []model.RetrievalResult
	err     error
}

func (f *fakeKnowledge) AddDocuments(ctx context.Context, documents []string, metadatas []model.FaqMetadata, ids []string) error {
	return nil
}

func (f *fakeKnowledge) Query(ctx context.Context, text string, k int) ([]model.RetrievalResult, error) {
	return f.results, f.err
}

func (f *fakeKnowledge) Count(ctx context.Context) (int, error) {
	return len(f.results), nil
}

func (f *fakeKnowledge) InitializeFromSource(ctx context.Context) error {
	return nil
}

func (f *fakeKnowledge) Reset(ctx context.Context) error {
	return nil
}

// fakeLLM 记录请求并返回预置结果的 llm.Client。
type fakeLLM struct {
	results  []*llm.CompletionResult
	err      error
	requests []llm.CompletionRequest
}

func (f *fakeLLM) ChatCompletion(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	idx := len(f.requests) - 1
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	return f.results[idx], nil
}

func (f *fakeLLM) StreamChatMessages(ctx context.Context, model string, messages []llm.Message, gen *llm.GenerationParams, writer llm.MessageWriter) error {
	return f.err
}

// fakeSessionRepo 是内存版 SessionRepository，裁剪语义与真实实现一致。
type fakeSessionRepo struct {
	histories map[string][]model.ChatMessage
	data      map[string]map[string]string
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{
		histories: make(map[string][]model.ChatMessage),
		data:      make(map[string]map[string]string),
	}
}

func sessionChannelKey(sessionID, channel string) string {
	return sessionID + "|" + channel
}

func (r *fakeSessionRepo) GetHistory(ctx context.Context, sessionID, channel string) ([]model.ChatMessage, error) {
	history := r.histories[sessionChannelKey(sessionID, channel)]
	out := make([]model.ChatMessage, len(history))
	copy(out, history)
	return out, nil
}

func (r *fakeSessionRepo) UpdateHistory(ctx context.Context, sessionID, channel string, messages []model.ChatMessage, window int) error {
	if window > 0 && len(messages) > window+1 {
		trimmed := make([]model.ChatMessage, 0, window+1)
		trimmed = append(trimmed, messages[0])
		trimmed = append(trimmed, messages[len(messages)-window:]...)
		messages = trimmed
	}
	r.histories[sessionChannelKey(sessionID, channel)] = messages
	return nil
}

func (r *fakeSessionRepo) GetSessionData(ctx context.Context, sessionID string) (map[string]string, error) {
	data, ok := r.data[sessionID]
	if !ok {
		return map[string]string{}, nil
	}
	return data, nil
}

func (r *fakeSessionRepo) SetSessionValue(ctx context.Context, sessionID, field, value string) error {
	if _, ok := r.data[sessionID]; !ok {
		r.data[sessionID] = map[string]string{}
	}
	r.data[sessionID][field] = value
	return nil
}

func (r *fakeSessionRepo) ClearSession(ctx context.Context, sessionID string) error {
	delete(r.histories, sessionChannelKey(sessionID, "agent"))
	delete(r.histories, sessionChannelKey(sessionID, "faq"))
	delete(r.data, sessionID)
	return nil
}

func retrievalResult(question, answer string, distance float64) model.RetrievalResult {
	return model.RetrievalResult{
		ID:       question,
		Document: fmt.Sprintf("Question: %s\nAnswer: %s", question, answer),
		Metadata: model.FaqMetadata{Question: question, Answer: answer, Category: "general"},
		Distance: distance,
	}
}

func newTestFAQService(knowledge KnowledgeService, llmClient llm.Client, sessions *fakeSessionRepo) FAQService {
	return NewFAQService(knowledge, llmClient, sessions, config.KnowledgeConfig{
		RetrieveK:     3,
		MinSimilarity: 0.3,
	})
}

func TestRetrieveContext(t *testing.T) {
	ctx := context.Background()

	t.Run("filters results below similarity threshold", func(t *testing.T) {
		knowledge := &fakeKnowledge{results: []model.RetrievalResult{
			retrievalResult("Q1", "A1", 0.2), // similarity 0.8
			retrievalResult("Q2", "A2", 0.9), // similarity 0.1
		}}
		svc := newTestFAQService(knowledge, &fakeLLM{}, newFakeSessionRepo())

		results, contextText, err := svc.RetrieveContext(ctx, "question", 3, 0.3)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "Q1", results[0].Metadata.Question)
		assert.InDelta(t, 0.8, results[0].Similarity, 1e-9)
		assert.Contains(t, contextText, "[Source 1]")
		assert.NotContains(t, contextText, "Q2")
	})

	t.Run("placeholder when nothing passes the threshold", func(t *testing.T) {
		knowledge := &fakeKnowledge{results: []model.RetrievalResult{
			retrievalResult("Q1", "A1", 1.8),
		}}
		svc := newTestFAQService(knowledge, &fakeLLM{}, newFakeSessionRepo())

		results, contextText, err := svc.RetrieveContext(ctx, "question", 3, 0.3)
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.Equal(t, noContextPlaceholder, contextText)
	})

	t.Run("numbers sources in retrieval order", func(t *testing.T) {
		knowledge := &fakeKnowledge{results: []model.RetrievalResult{
			retrievalResult("Q1", "A1", 0.1),
			retrievalResult("Q2", "A2", 0.2),
		}}
		svc := newTestFAQService(knowledge, &fakeLLM{}, newFakeSessionRepo())

		_, contextText, err := svc.RetrieveContext(ctx, "question", 3, 0.3)
		require.NoError(t, err)
		assert.Less(t, strings.Index(contextText, "[Source 1]"), strings.Index(contextText, "[Source 2]"))
		assert.Contains(t, contextText, "Q: Q2")
		assert.Contains(t, contextText, "A: A2")
	})

	t.Run("propagates retrieval errors", func(t *testing.T) {
		knowledge := &fakeKnowledge{err: errors.New("index offline")}
		svc := newTestFAQService(knowledge, &fakeLLM{}, newFakeSessionRepo())

		_, _, err := svc.RetrieveContext(ctx, "question", 3, 0.3)
		assert.Error(t, err)
	})
}

func TestAsk(t *testing.T) {
	ctx := context.Background()

	t.Run("confidence is mean of filtered similarities", func(t *testing.T) {
		knowledge := &fakeKnowledge{results: []model.RetrievalResult{
			retrievalResult("Q1", "A1", 0.2), // 0.8
			retrievalResult("Q2", "A2", 0.4), // 0.6
		}}
		llmClient := &fakeLLM{results: []*llm.CompletionResult{{Content: "generated answer"}}}
		svc := newTestFAQService(knowledge, llmClient, newFakeSessionRepo())

		answer, err := svc.Ask(ctx, "What are the hours?", "", "")
		require.NoError(t, err)

		assert.Equal(t, "generated answer", answer.Answer)
		assert.InDelta(t, 0.7, answer.Confidence, 1e-9)
		assert.True(t, answer.ContextUsed)
		assert.Equal(t, []string{"Q1", "Q2"}, answer.Sources)
	})

	t.Run("zero confidence without passing context", func(t *testing.T) {
		knowledge := &fakeKnowledge{results: []model.RetrievalResult{
			retrievalResult("Q1", "A1", 1.9),
		}}
		llmClient := &fakeLLM{results: []*llm.CompletionResult{{Content: "best effort answer"}}}
		svc := newTestFAQService(knowledge, llmClient, newFakeSessionRepo())

		answer, err := svc.Ask(ctx, "Anything?", "", "")
		require.NoError(t, err)

		assert.Zero(t, answer.Confidence)
		assert.False(t, answer.ContextUsed)
		assert.Empty(t, answer.Sources)

		// 占位上下文仍然进入提示词
		require.NotEmpty(t, llmClient.requests)
		userMessage := llmClient.requests[0].Messages[len(llmClient.requests[0].Messages)-1]
		assert.Contains(t, userMessage.Content, noContextPlaceholder)
	})

	t.Run("llm failure yields apology fallback", func(t *testing.T) {
		knowledge := &fakeKnowledge{results: []model.RetrievalResult{
			retrievalResult("Q1", "A1", 0.2),
		}}
		llmClient := &fakeLLM{err: errors.New("upstream down")}
		svc := newTestFAQService(knowledge, llmClient, newFakeSessionRepo())

		answer, err := svc.Ask(ctx, "What are the hours?", "", "")
		require.NoError(t, err)
		assert.Equal(t, answerErrorFallback, answer.Answer)
		// 检索置信度不受生成失败影响
		assert.InDelta(t, 0.8, answer.Confidence, 1e-9)
	})

	t.Run("session history records bare question", func(t *testing.T) {
		knowledge := &fakeKnowledge{results: []model.RetrievalResult{
			retrievalResult("Q1", "A1", 0.2),
		}}
		llmClient := &fakeLLM{results: []*llm.CompletionResult{{Content: "the answer"}}}
		sessions := newFakeSessionRepo()
		svc := newTestFAQService(knowledge, llmClient, sessions)

		_, err := svc.Ask(ctx, "What are the hours?", "sess-1", "")
		require.NoError(t, err)

		history, err := sessions.GetHistory(ctx, "sess-1", "faq")
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, "system", history[0].Role)
		assert.Equal(t, "What are the hours?", history[1].Content)
		assert.Equal(t, "the answer", history[2].Content)

		// 发给 LLM 的用户消息携带上下文，与历史中的裸问题不同
		userMessage := llmClient.requests[0].Messages[len(llmClient.requests[0].Messages)-1]
		assert.Contains(t, userMessage.Content, "Context from clinic knowledge base:")
	})

	t.Run("generation parameters favor grounded answers", func(t *testing.T) {
		knowledge := &fakeKnowledge{results: nil}
		llmClient := &fakeLLM{results: []*llm.CompletionResult{{Content: "ok"}}}
		svc := newTestFAQService(knowledge, llmClient, newFakeSessionRepo())

		_, err := svc.Ask(ctx, "Question?", "", "")
		require.NoError(t, err)

		gen := llmClient.requests[0].Gen
		require.NotNil(t, gen)
		require.NotNil(t, gen.Temperature)
		require.NotNil(t, gen.MaxTokens)
		assert.InDelta(t, 0.3, *gen.Temperature, 1e-9)
		assert.Equal(t, 500, *gen.MaxTokens)
	})
}
