package agent

import (
	"fmt"
	"strings"
	"sync"

	errs "OpenAgent-Hub/internal/errors"
)

// Registry 维护所有已注册的智能体，按注册顺序保留展示次序。
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
	order  []string
}

// NewRegistry 创建空的智能体注册表。
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]Agent),
	}
}

// Register 注册一个智能体，ID 冲突时返回错误。
func (r *Registry) Register(a Agent) error {
	if a == nil {
		return errs.New(errs.CodeInvalidArgument, "不能注册空的智能体")
	}
	id := strings.TrimSpace(a.Describe().ID)
	if id == "" {
		return errs.New(errs.CodeInvalidArgument, "智能体 ID 不能为空")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[id]; exists {
		return errs.New(errs.CodeConflict, fmt.Sprintf("智能体 %s 已注册", id),
			errs.WithMetadata("agent_id", id))
	}
	r.agents[id] = a
	r.order = append(r.order, id)
	return nil
}

// Get 按 ID 查找智能体。
func (r *Registry) Get(id string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[strings.TrimSpace(id)]
	if !ok {
		return nil, errs.New(errs.CodeAgentNotFound, fmt.Sprintf("智能体 %s 不存在", id),
			errs.WithMetadata("agent_id", id))
	}
	return a, nil
}

// List 按注册顺序返回所有智能体的描述。
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		descriptors = append(descriptors, r.agents[id].Describe())
	}
	return descriptors
}

// Len 返回已注册的智能体数量。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
