package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"OpenAgent-Hub/internal/llm"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "gpt-4o-mini"
	defaultTimeout   = 60 * time.Second
)

// Config 描述了调用 OpenAI 兼容 Chat Completions 接口所需的信息。
// BaseURL 可以指向任何兼容端点，例如自建网关。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Options llm.Options
	Timeout time.Duration
}

// Client 通过 HTTP 调用 OpenAI 兼容的大模型服务。
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	options    llm.Options
	httpClient *http.Client
}

// NewClient 根据配置创建客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		options: cfg.Options,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Chat 调用 /chat/completions 完成一次非流式对话补全。
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("对话消息不能为空")
	}

	payload, err := c.buildPayload(req)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构建请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求模型服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("模型服务返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Role      string `json:"role"`
				Content   string `json:"content"`
				ToolCalls []struct {
					Function struct {
						Name string `json:"name"`
						// OpenAI 协议里参数是 JSON 字符串，需要二次解析。
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, errors.New("响应中没有有效的 choices")
	}

	choice := decoded.Choices[0]
	message := llm.Message{
		Role:    choice.Message.Role,
		Content: choice.Message.Content,
	}
	if message.Role == "" {
		message.Role = llm.RoleAssistant
	}
	for _, call := range choice.Message.ToolCalls {
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			continue
		}
		arguments := map[string]any{}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &arguments); err != nil {
				return nil, fmt.Errorf("解析工具调用参数失败: %w", err)
			}
		}
		message.ToolCalls = append(message.ToolCalls, llm.ToolCall{
			Function: llm.FunctionCall{Name: name, Arguments: arguments},
		})
	}

	return &llm.ChatResponse{
		Message:          message,
		Model:            decoded.Model,
		Done:             true,
		PromptTokens:     decoded.Usage.PromptTokens,
		CompletionTokens: decoded.Usage.CompletionTokens,
	}, nil
}

func (c *Client) buildPayload(req llm.ChatRequest) ([]byte, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}

	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	messages := make([]message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, message{Role: msg.Role, Content: msg.Content})
	}

	body := map[string]any{
		"model":    model,
		"messages": messages,
	}
	if len(req.Tools) > 0 {
		body["tools"] = req.Tools
	}

	merged := c.options
	if req.Options.Temperature != 0 {
		merged.Temperature = req.Options.Temperature
	}
	if req.Options.TopP != 0 {
		merged.TopP = req.Options.TopP
	}
	if req.Options.MaxTokens != 0 {
		merged.MaxTokens = req.Options.MaxTokens
	}
	if merged.Temperature != 0 {
		body["temperature"] = merged.Temperature
	}
	if merged.TopP != 0 {
		body["top_p"] = merged.TopP
	}
	if merged.MaxTokens != 0 {
		body["max_tokens"] = merged.MaxTokens
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}
	return encoded, nil
}

var _ llm.Client = (*Client)(nil)
