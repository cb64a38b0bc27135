package llm

import "context"

// Role 枚举了会话消息的角色。
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message 表示一轮会话中的单条消息。
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall 描述模型要求调用的结构化函数及其参数。
type ToolCall struct {
	Function FunctionCall `json:"function"`
}

// FunctionCall 是工具调用的具体内容，参数已经解析为键值对。
type FunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Tool 向模型声明一个可调用的函数。
type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Function 描述函数的名称、用途以及 JSON Schema 形式的参数定义。
type Function struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Options 汇总了对推理过程的控制参数。零值表示使用服务端默认值。
type Options struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	NumCtx      int     `json:"num_ctx,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// ChatRequest 描述一次对话补全请求。
type ChatRequest struct {
	// Model 为空时使用客户端的默认模型。
	Model    string
	Messages []Message
	Tools    []Tool
	Options  Options
}

// ChatResponse 是模型返回的统一结构。
type ChatResponse struct {
	Message          Message
	Model            string
	Done             bool
	PromptTokens     int
	CompletionTokens int
}

// Client 定义了调用对话模型的统一接口。实现必须支持并发调用。
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// HealthChecker 由支持探活的客户端实现，用于启动检查与健康端点。
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewSelectTool 构造一个 type 为 function 的工具声明。
func NewSelectTool(name, description string, parameters map[string]any) Tool {
	return Tool{
		Type: "function",
		Function: Function{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}
