package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"OpenAgent-Hub/internal/agent"
	errs "OpenAgent-Hub/internal/errors"
	"OpenAgent-Hub/internal/knowledge"
	"OpenAgent-Hub/internal/llm"
)

// selectToolName 是分类器强制模型调用的函数名。
const selectToolName = "select_agent"

const systemPromptTemplate = `You are a request router for a team of specialized agents.
Given the user's request and the conversation so far, choose the single most
suitable agent from the roster below. You MUST respond by calling the
%s function. Never answer the user directly.

Roster:
%s%s`

// LLMClassifier 通过一次强制的工具调用让模型完成意图识别。
type LLMClassifier struct {
	client    llm.Client
	registry  *agent.Registry
	knowledge knowledge.Provider
	options   llm.Options
}

// Config 汇总构建 LLMClassifier 需要的依赖。
type Config struct {
	Client   llm.Client
	Registry *agent.Registry
	// Knowledge 可选，命中的提示会追加到路由提示词中。
	Knowledge knowledge.Provider
	Options   llm.Options
}

// NewLLMClassifier 创建基于对话模型的分类器。
func NewLLMClassifier(cfg Config) (*LLMClassifier, error) {
	if cfg.Client == nil {
		return nil, errs.New(errs.CodeInvalidArgument, "分类器缺少模型客户端")
	}
	if cfg.Registry == nil || cfg.Registry.Len() == 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "分类器需要至少一个已注册的智能体")
	}
	return &LLMClassifier{
		client:    cfg.Client,
		registry:  cfg.Registry,
		knowledge: cfg.Knowledge,
		options:   cfg.Options,
	}, nil
}

// Classify 发起一次非流式补全并解析 select_agent 的参数。
func (c *LLMClassifier) Classify(ctx context.Context, input string, history []llm.Message) (*Classification, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, errs.New(errs.CodeInvalidArgument, "用户输入不能为空")
	}

	descriptors := c.registry.List()

	resp, err := c.client.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: c.buildSystemPrompt(descriptors, input)},
			{Role: llm.RoleUser, Content: buildUserPrompt(input, history)},
		},
		Tools:   []llm.Tool{c.buildSelectTool(descriptors)},
		Options: c.options,
	})
	if err != nil {
		return nil, errs.Wrap(errs.CodeProviderFailure, err, "分类请求失败",
			errs.WithRetryable(true))
	}

	arguments, err := extractArguments(resp.Message)
	if err != nil {
		return nil, err
	}

	return c.buildClassification(arguments)
}

func (c *LLMClassifier) buildSystemPrompt(descriptors []agent.Descriptor, input string) string {
	var roster strings.Builder
	for _, d := range descriptors {
		fmt.Fprintf(&roster, "- %s (%s): %s\n", d.ID, d.Name, d.Description)
	}

	hints := ""
	if c.knowledge != nil {
		if matched := c.knowledge.Query(input); len(matched) > 0 {
			var sb strings.Builder
			sb.WriteString("\nRouting hints:\n")
			for _, hint := range matched {
				fmt.Fprintf(&sb, "- %s: %s\n", hint.AgentID, hint.Summary)
			}
			hints = sb.String()
		}
	}

	return fmt.Sprintf(systemPromptTemplate, selectToolName, roster.String(), hints)
}

// buildUserPrompt 将历史消息渲染成一段文字记录，帮助模型处理
// 诸如"继续刚才的问题"这类依赖上下文的输入。
func buildUserPrompt(input string, history []llm.Message) string {
	if len(history) == 0 {
		return input
	}

	var sb strings.Builder
	sb.WriteString("Conversation so far:\n")
	for _, msg := range history {
		fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
	}
	sb.WriteString("\nCurrent request: ")
	sb.WriteString(input)
	return sb.String()
}

func (c *LLMClassifier) buildSelectTool(descriptors []agent.Descriptor) llm.Tool {
	ids := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		ids = append(ids, d.ID)
	}

	return llm.NewSelectTool(selectToolName,
		"Select the agent best suited to handle the user's request.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"agent_id": map[string]any{
					"type":        "string",
					"description": "ID of the selected agent.",
					"enum":        ids,
				},
				"confidence": map[string]any{
					"type":        "number",
					"description": "Confidence in the selection, between 0 and 1.",
				},
				"reasoning": map[string]any{
					"type":        "string",
					"description": "Short explanation of the choice.",
				},
			},
			"required": []string{"agent_id", "confidence"},
		})
}

// extractArguments 优先读取工具调用参数；部分模型会忽略工具而把
// JSON 写进正文，这种情况也尝试解析一次。
func extractArguments(message llm.Message) (map[string]any, error) {
	for _, call := range message.ToolCalls {
		if call.Function.Name == selectToolName && call.Function.Arguments != nil {
			return call.Function.Arguments, nil
		}
	}

	content := strings.TrimSpace(message.Content)
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			var parsed map[string]any
			if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err == nil {
				if _, ok := parsed["agent_id"]; ok {
					return parsed, nil
				}
			}
		}
	}

	return nil, errs.New(errs.CodeClassifierFailure, "模型没有返回 select_agent 调用",
		errs.WithMetadata("content", truncate(content, 200)),
		errs.WithRetryable(true))
}

func (c *LLMClassifier) buildClassification(arguments map[string]any) (*Classification, error) {
	agentID, _ := arguments["agent_id"].(string)
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, errs.New(errs.CodeClassifierFailure, "select_agent 缺少 agent_id")
	}

	// 模型偶尔会给出枚举之外的 agent_id。这里原样返回,
	// 未注册时兜底还是报错由编排层决定。
	agentName := ""
	if selected, err := c.registry.Get(agentID); err == nil {
		agentName = selected.Describe().Name
	}

	confidence := 0.0
	switch v := arguments["confidence"].(type) {
	case float64:
		confidence = v
	case string:
		fmt.Sscanf(v, "%f", &confidence)
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	reasoning, _ := arguments["reasoning"].(string)

	return &Classification{
		AgentID:    agentID,
		AgentName:  agentName,
		Confidence: confidence,
		Reasoning:  strings.TrimSpace(reasoning),
	}, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

var _ Classifier = (*LLMClassifier)(nil)
