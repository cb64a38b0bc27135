package agent

import (
	"context"

	"OpenAgent-Hub/internal/llm"
)

// Descriptor 描述一个可被路由的智能体。Description 会出现在
// 分类器的提示词里，质量直接影响路由准确率。
type Descriptor struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// Request 表示一次交给智能体处理的用户输入。
type Request struct {
	UserID    string
	SessionID string
	Input     string
	// History 是本会话中较早的消息，最新的在末尾。
	History  []llm.Message
	Metadata map[string]string
}

// Reply 是智能体的响应内容与用量信息。
type Reply struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Agent 定义智能体的统一接口。实现必须支持并发调用。
type Agent interface {
	Describe() Descriptor
	Respond(ctx context.Context, req Request) (*Reply, error)
}
