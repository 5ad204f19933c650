// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clinic-agent-go/internal/config"

	"github.com/gorilla/websocket"
)

// MessageWriter defines an interface for writing WebSocket messages.
// This allows both a standard websocket.Conn and our interceptor to be used.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Message 表示一条角色消息。
// 工具调用相关字段仅在 tool-calling 回路中使用。
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall 是 LLM 返回的一次结构化工具调用请求。
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction 携带被调函数名与 JSON 编码的参数字符串。
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool 是提供给 LLM 的工具描述（JSON Schema 形式）。
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction 描述一个可调用函数的名称、用途与参数 schema。
type ToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// CompletionRequest 是一次非流式聊天补全请求。
// Model 为空时使用配置中的默认模型；Tools 为空时不携带工具。
type CompletionRequest struct {
	Model      string
	Messages   []Message
	Tools      []Tool
	ToolChoice string
	Gen        *GenerationParams
}

// CompletionResult 是一次聊天补全的结果：纯文本或一组工具调用请求。
type CompletionResult struct {
	Content   string
	ToolCalls []ToolCall
}

// Client defines the interface for an LLM client.
type Client interface {
	// ChatCompletion 发起一次非流式补全，支持工具调用。
	ChatCompletion(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
	// StreamChatMessages 以 role-based 消息与可选生成参数调用聊天接口，并将流式分块写入 writer。
	StreamChatMessages(ctx context.Context, model string, messages []Message, gen *GenerationParams, writer MessageWriter) error
}

type openAICompatibleClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new LLM client based on the provider in the config.
// API key 缺失属于配置错误，在构造期直接失败，不进入请求处理。
func NewClient(cfg config.LLMConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key not configured")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}, nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Tools       []Tool    `json:"tools,omitempty"`
	ToolChoice  string    `json:"tool_choice,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string     `json:"content"`
			ToolCalls []ToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// ChatCompletion 调用聊天补全 API 并返回文本或工具调用请求。
func (c *openAICompatibleClient) ChatCompletion(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	reqBody := chatRequest{
		Model:      model,
		Messages:   req.Messages,
		Stream:     false,
		Tools:      req.Tools,
		ToolChoice: req.ToolChoice,
	}
	if req.Gen != nil {
		reqBody.Temperature = req.Gen.Temperature
		reqBody.TopP = req.Gen.TopP
		reqBody.MaxTokens = req.Gen.MaxTokens
	}

	respBody, err := c.post(ctx, reqBody)
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	var chatResp chatResponse
	if err := json.NewDecoder(respBody).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, errors.New("chat api returned no choices")
	}

	choice := chatResp.Choices[0].Message
	return &CompletionResult{
		Content:   choice.Content,
		ToolCalls: choice.ToolCalls,
	}, nil
}

// StreamChatMessages 以流式方式调用聊天接口，将分块内容写入 writer。
func (c *openAICompatibleClient) StreamChatMessages(ctx context.Context, model string, messages []Message, gen *GenerationParams, writer MessageWriter) error {
	if model == "" {
		model = c.cfg.Model
	}
	reqBody := chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	}
	if gen != nil {
		reqBody.Temperature = gen.Temperature
		reqBody.TopP = gen.TopP
		reqBody.MaxTokens = gen.MaxTokens
	}

	respBody, err := c.post(ctx, reqBody)
	if err != nil {
		return err
	}
	defer respBody.Close()

	reader := bufio.NewReader(respBody)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read from stream: %w", err)
		}

		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimPrefix(line, "data: ")
			if strings.TrimSpace(data) == "[DONE]" {
				break
			}

			var chunk chatStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}

			if len(chunk.Choices) > 0 {
				content := chunk.Choices[0].Delta.Content
				if content == "" {
					continue
				}
				if err := writer.WriteMessage(websocket.TextMessage, []byte(content)); err != nil {
					return fmt.Errorf("failed to write message to websocket: %w", err)
				}
			}
		}
	}
	return nil
}

// post 发送聊天请求并返回成功响应的 body，调用方负责关闭。
func (c *openAICompatibleClient) post(ctx context.Context, reqBody chatRequest) (io.ReadCloser, error) {
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if reqBody.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat api: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}
	return resp.Body, nil
}
