// Package model 包含了应用的数据模型定义。
package model

import "time"

// ToolCallRecord 记录一次 LLM 发起的工具调用请求。
// Arguments 为 JSON 编码的参数字符串，保持 LLM 返回的原始形式。
type ToolCallRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatMessage 代表存储在 Redis 会话通道中的单条对话消息。
// Role 为 "system"、"user"、"assistant" 或 "tool"。
type ChatMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []ToolCallRecord `json:"toolCalls,omitempty"`
	ToolCallID string           `json:"toolCallId,omitempty"`
	Name       string           `json:"name,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// SessionInfo 是会话查询接口返回的会话概要。
// MessageCount 不含 system 消息；未知会话返回 0 而不是错误。
type SessionInfo struct {
	SessionID    string            `json:"session_id"`
	MessageCount int               `json:"message_count"`
	SessionData  map[string]string `json:"session_data"`
}

// ChatRequestDTO 定义了聊天接口的请求体。
type ChatRequestDTO struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"session_id" binding:"required"`
	Model     string `json:"model"`
}

// ChatResponseDTO 定义了聊天接口的响应体。
type ChatResponseDTO struct {
	Response  string    `json:"response"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	ModelUsed string    `json:"model_used"`
}
