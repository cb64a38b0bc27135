package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	errs "OpenAgent-Hub/internal/errors"
)

// MemoryRepository 在内存中保存会话历史，主要用于开发和测试环境。
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[sessionKey][]Message
}

type sessionKey struct {
	userID    string
	sessionID string
}

// NewMemoryRepository 创建内存会话仓库。
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[sessionKey][]Message),
	}
}

// Append 追加消息。
func (r *MemoryRepository) Append(_ context.Context, userID, sessionID string, messages ...Message) error {
	key, err := makeKey(userID, sessionID)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range messages {
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		r.sessions[key] = append(r.sessions[key], msg)
	}
	return nil
}

// History 返回最近 limit 条消息的副本。
func (r *MemoryRepository) History(_ context.Context, userID, sessionID string, limit int) ([]Message, error) {
	key, err := makeKey(userID, sessionID)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.sessions[key]
	if limit > 0 && len(stored) > limit {
		stored = stored[len(stored)-limit:]
	}
	history := make([]Message, len(stored))
	copy(history, stored)
	return history, nil
}

// Clear 删除会话历史。
func (r *MemoryRepository) Clear(_ context.Context, userID, sessionID string) error {
	key, err := makeKey(userID, sessionID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, key)
	return nil
}

func makeKey(userID, sessionID string) (sessionKey, error) {
	userID = strings.TrimSpace(userID)
	sessionID = strings.TrimSpace(sessionID)
	if userID == "" || sessionID == "" {
		return sessionKey{}, errs.New(errs.CodeInvalidArgument, "user_id 与 session_id 不能为空")
	}
	return sessionKey{userID: userID, sessionID: sessionID}, nil
}

var _ Repository = (*MemoryRepository)(nil)
