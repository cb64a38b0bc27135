package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Provider 定义路由提示检索的通用接口。
type Provider interface {
	Query(query string) []Hint
}

// Hint 描述一段可以注入分类提示词的路由线索。
type Hint struct {
	AgentID  string   `json:"agent_id"`
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
	Topics   []string `json:"topics"`
}

// StaticProvider 通过加载 JSON 文件提供静态的路由提示,
// 运行期还可以通过 Append 追加条目。
type StaticProvider struct {
	mu         sync.RWMutex
	items      []Hint
	maxResults int
}

// NewStaticProvider 创建静态提示库实例。
func NewStaticProvider(items []Hint, maxResults int) *StaticProvider {
	if maxResults <= 0 {
		maxResults = 3
	}
	return &StaticProvider{
		items:      items,
		maxResults: maxResults,
	}
}

// LoadStaticProvider 从 JSON 文件加载提示条目。
func LoadStaticProvider(path string, maxResults int) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("提示库文件路径不能为空")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析提示库路径失败: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取提示库文件失败: %w", err)
	}
	defer file.Close()

	var entries []Hint
	if err := json.NewDecoder(file).Decode(&entries); err != nil {
		return nil, fmt.Errorf("解析提示库文件失败: %w", err)
	}

	return NewStaticProvider(entries, maxResults), nil
}

// Query 根据用户输入做关键词匹配，返回命中的提示。
func (p *StaticProvider) Query(query string) []Hint {
	if p == nil {
		return nil
	}

	query = strings.ToLower(strings.TrimSpace(query))

	p.mu.RLock()
	defer p.mu.RUnlock()

	results := make([]Hint, 0, p.maxResults)
	for _, item := range p.items {
		if matches(item, query) {
			results = append(results, item)
			if len(results) >= p.maxResults {
				break
			}
		}
	}
	return results
}

// Append 在运行期追加一条路由提示。agent_id 为空的条目会被忽略。
func (p *StaticProvider) Append(hint Hint) {
	if p == nil || strings.TrimSpace(hint.AgentID) == "" {
		return
	}
	p.mu.Lock()
	p.items = append(p.items, hint)
	p.mu.Unlock()
}

func matches(hint Hint, query string) bool {
	if len(hint.Keywords) == 0 && len(hint.Topics) == 0 {
		return false
	}
	for _, keyword := range hint.Keywords {
		normalized := strings.ToLower(strings.TrimSpace(keyword))
		if normalized == "" {
			continue
		}
		if strings.Contains(query, normalized) {
			return true
		}
	}
	for _, topic := range hint.Topics {
		normalized := strings.ToLower(strings.TrimSpace(topic))
		if normalized == "" {
			continue
		}
		if strings.Contains(query, normalized) {
			return true
		}
	}
	return false
}

// Ensure StaticProvider 实现 Provider 接口。
var _ Provider = (*StaticProvider)(nil)
