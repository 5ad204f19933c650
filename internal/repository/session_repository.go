// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"clinic-agent-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// 会话通道名。Agent 主对话与 FAQ 检索对话共用一个会话 id，
// 但各自维护独立的滚动窗口，避免 FAQ 的 grounding 上下文被预约闲聊稀释。
const (
	ChannelAgent = "agent"
	ChannelFAQ   = "faq"
)

// 会话键的保留时长，兼作会话过期策略。
const sessionTTL = 7 * 24 * time.Hour

// SessionRepository 定义了会话历史与会话数据的操作接口。
// 同一会话 id 下的所有通道与附加数据由它统一管理，是会话状态的单一来源。
type SessionRepository interface {
	GetHistory(ctx context.Context, sessionID, channel string) ([]model.ChatMessage, error)
	// UpdateHistory 覆盖写入通道历史，超过 window 条时保留首条（system）加最近 window 条。
	UpdateHistory(ctx context.Context, sessionID, channel string, messages []model.ChatMessage, window int) error
	GetSessionData(ctx context.Context, sessionID string) (map[string]string, error)
	SetSessionValue(ctx context.Context, sessionID, field, value string) error
	// ClearSession 删除会话的全部通道与附加数据，对不存在的会话静默成功。
	ClearSession(ctx context.Context, sessionID string) error
}

type redisSessionRepository struct {
	redisClient *redis.Client
}

// NewSessionRepository 创建一个新的 SessionRepository 实例。
func NewSessionRepository(redisClient *redis.Client) SessionRepository {
	return &redisSessionRepository{redisClient: redisClient}
}

func historyKey(sessionID, channel string) string {
	return fmt.Sprintf("session:%s:history:%s", sessionID, channel)
}

func dataKey(sessionID string) string {
	return fmt.Sprintf("session:%s:data", sessionID)
}

// GetHistory 从 Redis 获取指定通道的对话历史记录。
func (r *redisSessionRepository) GetHistory(ctx context.Context, sessionID, channel string) ([]model.ChatMessage, error) {
	jsonData, err := r.redisClient.Get(ctx, historyKey(sessionID, channel)).Result()
	if err == redis.Nil {
		return []model.ChatMessage{}, nil // No history yet
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session history: %w", err)
	}
	var messages []model.ChatMessage
	err = json.Unmarshal([]byte(jsonData), &messages)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal session history: %w", err)
	}
	return messages, nil
}

// trimHistory 实现滑动窗口：超过 window 条时保留首条（system）加最近 window 条。
func trimHistory(messages []model.ChatMessage, window int) []model.ChatMessage {
	if window <= 0 || len(messages) <= window+1 {
		return messages
	}
	trimmed := make([]model.ChatMessage, 0, window+1)
	trimmed = append(trimmed, messages[0])
	trimmed = append(trimmed, messages[len(messages)-window:]...)
	return trimmed
}

// UpdateHistory 在 Redis 中更新指定通道的对话历史记录。
func (r *redisSessionRepository) UpdateHistory(ctx context.Context, sessionID, channel string, messages []model.ChatMessage, window int) error {
	messages = trimHistory(messages, window)
	jsonData, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal session history: %w", err)
	}
	err = r.redisClient.Set(ctx, historyKey(sessionID, channel), jsonData, sessionTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set session history: %w", err)
	}
	return nil
}

// GetSessionData 读取会话的附加键值数据，不存在时返回空映射。
func (r *redisSessionRepository) GetSessionData(ctx context.Context, sessionID string) (map[string]string, error) {
	data, err := r.redisClient.HGetAll(ctx, dataKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session data: %w", err)
	}
	if data == nil {
		data = map[string]string{}
	}
	return data, nil
}

// SetSessionValue 写入一个会话附加字段。
func (r *redisSessionRepository) SetSessionValue(ctx context.Context, sessionID, field, value string) error {
	key := dataKey(sessionID)
	if err := r.redisClient.HSet(ctx, key, field, value).Err(); err != nil {
		return fmt.Errorf("failed to set session data: %w", err)
	}
	return r.redisClient.Expire(ctx, key, sessionTTL).Err()
}

// ClearSession 删除会话的所有历史通道与附加数据。
func (r *redisSessionRepository) ClearSession(ctx context.Context, sessionID string) error {
	keys := []string{
		historyKey(sessionID, ChannelAgent),
		historyKey(sessionID, ChannelFAQ),
		dataKey(sessionID),
	}
	if err := r.redisClient.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
