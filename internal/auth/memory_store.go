package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore 提供内存态的用户目录, 适合单机部署与测试场景。
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]*User
	byID   map[int64]*Subject
	nextID int64
}

var _ Store = (*MemoryStore)(nil)
var _ SeedWriter = (*MemoryStore)(nil)

// NewMemoryStore 构造空的内存用户目录。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[string]*User),
		byID:   make(map[int64]*Subject),
		nextID: 1,
	}
}

// ApplySeed 幂等写入初始账户, 重复的用户名会被更新而非报错。
func (m *MemoryStore) ApplySeed(_ context.Context, seed Seed) error {
	username := strings.ToLower(strings.TrimSpace(seed.Username))
	if username == "" {
		return fmt.Errorf("seed username is required")
	}
	hash, err := HashPassword(seed.Password)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[username]
	if !ok {
		user = &User{ID: m.nextID, Username: username}
		m.nextID++
		m.users[username] = user
	}
	user.PasswordHash = hash
	user.Disabled = seed.Disabled

	subject := &Subject{
		ID:          user.ID,
		Username:    username,
		Roles:       dedupeStrings(seed.Roles),
		Permissions: dedupeStrings(seed.Permissions),
		Disabled:    seed.Disabled,
	}
	subject.normalise()
	m.byID[user.ID] = subject
	return nil
}

// FindUserByUsername 按用户名查询账户。
func (m *MemoryStore) FindUserByUsername(_ context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	clone := *user
	return &clone, nil
}

// LoadSubject 按用户 ID 加载授权信息。
func (m *MemoryStore) LoadSubject(_ context.Context, userID int64) (*Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subject, ok := m.byID[userID]
	if !ok {
		return nil, ErrInvalidToken
	}
	return subject.Clone(), nil
}

// HashPassword 生成加盐 SHA-256 口令摘要, 格式为 "salt:digest"。
func HashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	digest := sha256.Sum256(append(salt, []byte(password)...))
	return base64.RawStdEncoding.EncodeToString(salt) + ":" +
		base64.RawStdEncoding.EncodeToString(digest[:]), nil
}

func verifyPassword(hash, password string) bool {
	parts := strings.SplitN(hash, ":", 2)
	if len(parts) != 2 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	digest := sha256.Sum256(append(salt, []byte(password)...))
	return subtle.ConstantTimeCompare(digest[:], want) == 1
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		normalised := strings.ToLower(strings.TrimSpace(value))
		if normalised == "" {
			continue
		}
		if _, ok := seen[normalised]; ok {
			continue
		}
		seen[normalised] = struct{}{}
		out = append(out, normalised)
	}
	sort.Strings(out)
	return out
}
