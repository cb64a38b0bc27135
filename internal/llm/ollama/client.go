package ollama

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
	defaultHost      = "http://127.0.0.1:11434"
	defaultModelName = "llama3.1"
	defaultTimeout   = 120 * time.Second
)

// Config 描述了访问本地 Ollama 服务所需的信息：
// 服务地址、模型标识以及推理参数。
type Config struct {
	Host    string
	Model   string
	Options llm.Options
	Timeout time.Duration
}

// Client 通过 HTTP 调用本地部署的 Ollama 服务。
type Client struct {
	host       string
	model      string
	options    llm.Options
	httpClient *http.Client
}

// NewClient 根据配置创建 Ollama 客户端。
func NewClient(cfg Config) (*Client, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = defaultHost
	}
	host = strings.TrimRight(host, "/")
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		return nil, fmt.Errorf("Ollama host 必须是 http(s) 地址: %s", host)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		host:    host,
		model:   model,
		options: cfg.Options,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Ollama /api/chat 的请求与响应结构。工具调用的参数在该协议里
// 直接以 JSON 对象出现，无需二次解析。
type chatPayload struct {
	Model    string         `json:"model"`
	Messages []wireMessage  `json:"messages"`
	Tools    []llm.Tool     `json:"tools,omitempty"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type wireMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type chatResult struct {
	Model           string      `json:"model"`
	Message         wireMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
	Error           string      `json:"error"`
}

// Chat 调用 /api/chat 完成一次非流式对话补全。
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("对话消息不能为空")
	}

	payload, err := c.buildPayload(req)
	if err != nil {
		return nil, err
	}

	endpoint := c.host + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构建 Ollama 请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求 Ollama 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("Ollama 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded chatResult
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析 Ollama 响应失败: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("Ollama 推理失败: %s", decoded.Error)
	}

	message := llm.Message{
		Role:    decoded.Message.Role,
		Content: decoded.Message.Content,
	}
	if message.Role == "" {
		message.Role = llm.RoleAssistant
	}
	for _, call := range decoded.Message.ToolCalls {
		if strings.TrimSpace(call.Function.Name) == "" {
			continue
		}
		message.ToolCalls = append(message.ToolCalls, llm.ToolCall{
			Function: llm.FunctionCall{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		})
	}

	return &llm.ChatResponse{
		Message:          message,
		Model:            decoded.Model,
		Done:             decoded.Done,
		PromptTokens:     decoded.PromptEvalCount,
		CompletionTokens: decoded.EvalCount,
	}, nil
}

// HealthCheck 通过 /api/tags 探测服务是否就绪。
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("构建探活请求失败: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Ollama 服务不可达: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Ollama 探活返回状态 %d", resp.StatusCode)
	}
	return nil
}

// Model 返回客户端的默认模型标识。
func (c *Client) Model() string {
	return c.model
}

func (c *Client) buildPayload(req llm.ChatRequest) ([]byte, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}

	messages := make([]wireMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, wireMessage{Role: msg.Role, Content: msg.Content})
	}

	body := chatPayload{
		Model:    model,
		Messages: messages,
		Tools:    req.Tools,
		Stream:   false,
		Options:  mergeOptions(c.options, req.Options),
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化 Ollama 请求失败: %w", err)
	}
	return encoded, nil
}

// mergeOptions 将客户端默认参数与单次请求的覆盖值合并为
// Ollama 的 options 对象。
func mergeOptions(base, override llm.Options) map[string]any {
	merged := base
	if override.Temperature != 0 {
		merged.Temperature = override.Temperature
	}
	if override.TopP != 0 {
		merged.TopP = override.TopP
	}
	if override.NumCtx != 0 {
		merged.NumCtx = override.NumCtx
	}
	if override.MaxTokens != 0 {
		merged.MaxTokens = override.MaxTokens
	}

	options := make(map[string]any)
	if merged.Temperature != 0 {
		options["temperature"] = merged.Temperature
	}
	if merged.TopP != 0 {
		options["top_p"] = merged.TopP
	}
	if merged.NumCtx != 0 {
		options["num_ctx"] = merged.NumCtx
	}
	if merged.MaxTokens != 0 {
		options["num_predict"] = merged.MaxTokens
	}
	if len(options) == 0 {
		return nil
	}
	return options
}

var (
	_ llm.Client        = (*Client)(nil)
	_ llm.HealthChecker = (*Client)(nil)
)
