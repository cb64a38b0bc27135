package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	errs "OpenAgent-Hub/internal/errors"
	"OpenAgent-Hub/internal/llm"
)

type stubClient struct {
	lastRequest llm.ChatRequest
	response    *llm.ChatResponse
	err         error
}

func (s *stubClient) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	s.lastRequest = req
	if s.err != nil {
		return nil, s.err
	}
	return s.response, nil
}

func TestLLMAgentRespond(t *testing.T) {
	client := &stubClient{
		response: &llm.ChatResponse{
			Message:          llm.Message{Role: llm.RoleAssistant, Content: "你好，我可以帮你排查。"},
			Model:            "llama3.1",
			PromptTokens:     42,
			CompletionTokens: 12,
		},
	}

	a, err := NewLLMAgent(LLMAgentConfig{
		Descriptor:   Descriptor{ID: "tech", Name: "Tech Support", Description: "排查技术故障"},
		Client:       client,
		SystemPrompt: "You are a support engineer.",
	})
	if err != nil {
		t.Fatalf("NewLLMAgent 返回错误: %v", err)
	}

	reply, err := a.Respond(context.Background(), Request{
		UserID:    "u-1",
		SessionID: "s-1",
		Input:     "service keeps crashing",
		History: []llm.Message{
			{Role: llm.RoleUser, Content: "hi"},
			{Role: llm.RoleAssistant, Content: "hello"},
		},
	})
	if err != nil {
		t.Fatalf("Respond 返回错误: %v", err)
	}
	if reply.Content == "" {
		t.Fatal("期望得到非空回复")
	}
	if reply.PromptTokens != 42 {
		t.Fatalf("期望透传 token 用量, 实际 %d", reply.PromptTokens)
	}

	messages := client.lastRequest.Messages
	if len(messages) != 4 {
		t.Fatalf("期望 4 条消息(system+2 history+user), 实际 %d", len(messages))
	}
	if messages[0].Role != llm.RoleSystem {
		t.Fatalf("第一条消息应为 system, 实际 %s", messages[0].Role)
	}
	if messages[len(messages)-1].Content != "service keeps crashing" {
		t.Fatal("最后一条消息应为当前输入")
	}
}

func TestLLMAgentRespondTrimsHistory(t *testing.T) {
	client := &stubClient{
		response: &llm.ChatResponse{Message: llm.Message{Content: "ok"}},
	}
	a, err := NewLLMAgent(LLMAgentConfig{
		Descriptor: Descriptor{ID: "tech", Name: "Tech"},
		Client:     client,
		MaxHistory: 2,
	})
	if err != nil {
		t.Fatalf("NewLLMAgent 返回错误: %v", err)
	}

	history := []llm.Message{
		{Role: llm.RoleUser, Content: "one"},
		{Role: llm.RoleAssistant, Content: "two"},
		{Role: llm.RoleUser, Content: "three"},
	}
	if _, err := a.Respond(context.Background(), Request{Input: "four", History: history}); err != nil {
		t.Fatalf("Respond 返回错误: %v", err)
	}

	// system + 2 history + user
	if got := len(client.lastRequest.Messages); got != 4 {
		t.Fatalf("期望裁剪到 4 条消息, 实际 %d", got)
	}
	if client.lastRequest.Messages[1].Content != "two" {
		t.Fatalf("期望保留最近的历史, 实际 %s", client.lastRequest.Messages[1].Content)
	}
}

func TestLLMAgentRespondProviderFailure(t *testing.T) {
	a, err := NewLLMAgent(LLMAgentConfig{
		Descriptor: Descriptor{ID: "tech", Name: "Tech"},
		Client:     &stubClient{err: errors.New("connection refused")},
	})
	if err != nil {
		t.Fatalf("NewLLMAgent 返回错误: %v", err)
	}

	_, err = a.Respond(context.Background(), Request{Input: "hello"})
	if errs.CodeOf(err) != errs.CodeProviderFailure {
		t.Fatalf("期望 PROVIDER_FAILURE, 实际 %v", err)
	}
	if !errs.RetryableError(err) {
		t.Fatal("模型调用失败应可重试")
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	client := &stubClient{response: &llm.ChatResponse{Message: llm.Message{Content: "ok"}}}

	for _, id := range []string{"billing", "tech"} {
		a, err := NewLLMAgent(LLMAgentConfig{
			Descriptor: Descriptor{ID: id, Name: id},
			Client:     client,
		})
		if err != nil {
			t.Fatalf("NewLLMAgent 返回错误: %v", err)
		}
		if err := registry.Register(a); err != nil {
			t.Fatalf("Register 返回错误: %v", err)
		}
	}

	if _, err := registry.Get("billing"); err != nil {
		t.Fatalf("Get 返回错误: %v", err)
	}
	if _, err := registry.Get("missing"); errs.CodeOf(err) != errs.CodeAgentNotFound {
		t.Fatalf("期望 AGENT_NOT_FOUND, 实际 %v", err)
	}

	list := registry.List()
	if len(list) != 2 || list[0].ID != "billing" || list[1].ID != "tech" {
		t.Fatalf("期望按注册顺序列出, 实际 %v", list)
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	registry := NewRegistry()
	client := &stubClient{}
	a, _ := NewLLMAgent(LLMAgentConfig{Descriptor: Descriptor{ID: "tech", Name: "Tech"}, Client: client})

	if err := registry.Register(a); err != nil {
		t.Fatalf("首次注册应成功: %v", err)
	}
	if err := registry.Register(a); errs.CodeOf(err) != errs.CodeConflict {
		t.Fatalf("重复注册应报 CONFLICT, 实际 %v", err)
	}
}

type stubResolver struct {
	client llm.Client
}

func (s *stubResolver) Client(name string) (llm.Client, bool) {
	if name == "ollama" {
		return s.client, true
	}
	return nil, false
}

func (s *stubResolver) DefaultClient() (llm.Client, error) {
	return s.client, nil
}

func TestBuildRegistryFromManifest(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "agents.yaml")
	content := `agents:
  - id: billing
    name: Billing Agent
    description: Handles invoices and refunds.
    system_prompt: You resolve billing questions.
  - id: tech
    name: Tech Support
    description: Diagnoses technical issues.
    provider: ollama
    model: qwen2.5
    max_history: 6
`
	if err := os.WriteFile(manifestPath, []byte(content), 0o644); err != nil {
		t.Fatalf("写入清单失败: %v", err)
	}

	manifest, err := LoadManifest(manifestPath)
	if err != nil {
		t.Fatalf("LoadManifest 返回错误: %v", err)
	}
	if len(manifest.Agents) != 2 {
		t.Fatalf("期望 2 个智能体, 实际 %d", len(manifest.Agents))
	}

	registry, err := BuildRegistry(manifest, &stubResolver{client: &stubClient{}})
	if err != nil {
		t.Fatalf("BuildRegistry 返回错误: %v", err)
	}
	if registry.Len() != 2 {
		t.Fatalf("期望注册 2 个智能体, 实际 %d", registry.Len())
	}
}

func TestBuildRegistryUnknownProvider(t *testing.T) {
	manifest := &Manifest{Agents: []ManifestEntry{
		{ID: "tech", Name: "Tech", Provider: "missing"},
	}}
	if _, err := BuildRegistry(manifest, &stubResolver{client: &stubClient{}}); err == nil {
		t.Fatal("未注册的 provider 应当报错")
	}
}
