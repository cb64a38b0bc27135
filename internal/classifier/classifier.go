package classifier

import (
	"context"

	"OpenAgent-Hub/internal/llm"
)

// Classification 是一次意图识别的结果。
type Classification struct {
	// AgentID 是被选中的智能体标识。
	AgentID string `json:"agent_id"`
	// AgentName 是对应的展示名称。
	AgentName string `json:"agent_name"`
	// Confidence 为模型给出的置信度，范围 [0, 1]。
	Confidence float64 `json:"confidence"`
	// Reasoning 记录模型的选择理由，用于审计与调试。
	Reasoning string `json:"reasoning,omitempty"`
}

// Classifier 根据用户输入与会话历史选出最合适的智能体。
type Classifier interface {
	Classify(ctx context.Context, input string, history []llm.Message) (*Classification, error)
}
