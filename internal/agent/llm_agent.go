package agent

import (
	"context"
	"fmt"
	"strings"

	errs "OpenAgent-Hub/internal/errors"
	"OpenAgent-Hub/internal/llm"
)

const defaultMaxHistory = 10

// LLMAgent 通过对话模型回答用户。系统提示词定义了它的人设与边界。
type LLMAgent struct {
	descriptor   Descriptor
	client       llm.Client
	systemPrompt string
	model        string
	options      llm.Options
	maxHistory   int
}

// LLMAgentConfig 汇总构建 LLMAgent 需要的参数。
type LLMAgentConfig struct {
	Descriptor   Descriptor
	Client       llm.Client
	SystemPrompt string
	// Model 为空时使用客户端的默认模型。
	Model      string
	Options    llm.Options
	MaxHistory int
}

// NewLLMAgent 创建基于对话模型的智能体。
func NewLLMAgent(cfg LLMAgentConfig) (*LLMAgent, error) {
	if strings.TrimSpace(cfg.Descriptor.ID) == "" {
		return nil, errs.New(errs.CodeInvalidArgument, "智能体 ID 不能为空")
	}
	if cfg.Client == nil {
		return nil, errs.New(errs.CodeInvalidArgument, "智能体缺少模型客户端")
	}

	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}

	systemPrompt := strings.TrimSpace(cfg.SystemPrompt)
	if systemPrompt == "" {
		systemPrompt = fmt.Sprintf("You are %s. %s Answer the user directly and concisely.",
			cfg.Descriptor.Name, cfg.Descriptor.Description)
	}

	return &LLMAgent{
		descriptor:   cfg.Descriptor,
		client:       cfg.Client,
		systemPrompt: systemPrompt,
		model:        strings.TrimSpace(cfg.Model),
		options:      cfg.Options,
		maxHistory:   maxHistory,
	}, nil
}

// Describe 返回智能体的描述信息。
func (a *LLMAgent) Describe() Descriptor {
	return a.descriptor
}

// Respond 将历史消息与当前输入拼接为一次对话补全。
func (a *LLMAgent) Respond(ctx context.Context, req Request) (*Reply, error) {
	input := strings.TrimSpace(req.Input)
	if input == "" {
		return nil, errs.New(errs.CodeInvalidArgument, "用户输入不能为空")
	}

	messages := make([]llm.Message, 0, len(req.History)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: a.systemPrompt})
	messages = append(messages, trimHistory(req.History, a.maxHistory)...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: input})

	resp, err := a.client.Chat(ctx, llm.ChatRequest{
		Model:    a.model,
		Messages: messages,
		Options:  a.options,
	})
	if err != nil {
		return nil, errs.Wrap(errs.CodeProviderFailure, err,
			fmt.Sprintf("智能体 %s 调用模型失败", a.descriptor.ID),
			errs.WithMetadata("agent_id", a.descriptor.ID),
			errs.WithRetryable(true))
	}

	content := strings.TrimSpace(resp.Message.Content)
	if content == "" {
		return nil, errs.New(errs.CodeProviderFailure, "模型返回了空响应",
			errs.WithMetadata("agent_id", a.descriptor.ID),
			errs.WithRetryable(true))
	}

	return &Reply{
		Content:          content,
		Model:            resp.Model,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
	}, nil
}

// trimHistory 只保留最近的若干条消息，避免提示词超出上下文窗口。
func trimHistory(history []llm.Message, limit int) []llm.Message {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}

var _ Agent = (*LLMAgent)(nil)
