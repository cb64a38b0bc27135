package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"OpenAgent-Hub/internal/llm"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{Host: "localhost:11434"}); err == nil {
		t.Fatalf("expected error for host without scheme")
	}

	client, err := NewClient(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Model() != defaultModelName {
		t.Fatalf("unexpected default model: %s", client.Model())
	}
}

func TestChatParsesToolCalls(t *testing.T) {
	var captured map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "llama3.1",
			"message": map[string]any{
				"role":    "assistant",
				"content": "",
				"tool_calls": []map[string]any{
					{
						"function": map[string]any{
							"name": "select_agent",
							"arguments": map[string]any{
								"agent_id":   "billing",
								"confidence": 0.92,
							},
						},
					},
				},
			},
			"done":              true,
			"prompt_eval_count": 48,
			"eval_count":        21,
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		Host:  srv.URL,
		Model: "llama3.1",
		Options: llm.Options{
			Temperature: 0.1,
			NumCtx:      2048,
		},
		Timeout: time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := client.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "route the request"},
			{Role: llm.RoleUser, Content: "我的发票金额不对"},
		},
		Tools: []llm.Tool{llm.NewSelectTool("select_agent", "pick an agent", nil)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("expected one tool call, got %d", len(resp.Message.ToolCalls))
	}
	call := resp.Message.ToolCalls[0]
	if call.Function.Name != "select_agent" {
		t.Fatalf("unexpected tool name: %s", call.Function.Name)
	}
	if call.Function.Arguments["agent_id"] != "billing" {
		t.Fatalf("unexpected arguments: %+v", call.Function.Arguments)
	}
	if resp.PromptTokens != 48 || resp.CompletionTokens != 21 {
		t.Fatalf("unexpected token counts: %+v", resp)
	}

	if captured["stream"] != false {
		t.Fatalf("expected stream to be disabled, got %v", captured["stream"])
	}
	options, ok := captured["options"].(map[string]any)
	if !ok {
		t.Fatalf("options missing in payload: %+v", captured)
	}
	if options["temperature"] != 0.1 {
		t.Fatalf("temperature not forwarded: %v", options["temperature"])
	}
	if options["num_ctx"] != float64(2048) {
		t.Fatalf("num_ctx not forwarded: %v", options["num_ctx"])
	}
}

func TestChatServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := NewClient(Config{Host: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := client.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	}); err == nil {
		t.Fatalf("expected error when server answers with 404")
	}
}

func TestChatInlineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "out of memory"})
	}))
	defer srv.Close()

	client, err := NewClient(Config{Host: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := client.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	}); err == nil {
		t.Fatalf("expected error when response carries an error field")
	}
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"models": []any{}})
	}))
	defer srv.Close()

	client, err := NewClient(Config{Host: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected health check error: %v", err)
	}
}
