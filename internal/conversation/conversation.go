package conversation

import (
	"context"
	"time"
)

// 会话消息的角色，与模型消息保持一致。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 是持久化的单条会话消息。助手消息会记录产生它的智能体。
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	AgentID   string    `json:"agent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository 按 (user, session) 维度读写会话历史。
type Repository interface {
	// Append 追加若干条消息，保持调用方给定的顺序。
	Append(ctx context.Context, userID, sessionID string, messages ...Message) error
	// History 返回最近的 limit 条消息，最新的在末尾。limit <= 0 表示不限。
	History(ctx context.Context, userID, sessionID string, limit int) ([]Message, error)
	// Clear 删除指定会话的全部历史。
	Clear(ctx context.Context, userID, sessionID string) error
}
