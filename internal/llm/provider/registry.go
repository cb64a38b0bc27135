package provider

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"OpenAgent-Hub/internal/config"
	"OpenAgent-Hub/internal/llm"
	"OpenAgent-Hub/internal/llm/ollama"
	"OpenAgent-Hub/internal/llm/openai"
)

// Registry manages a set of model clients keyed by provider name.
type Registry struct {
	defaultName string
	clients     map[string]llm.Client
}

// NewRegistry instantiates concrete clients from the configured providers.
// Only providers with enough configuration to build a client are registered;
// the default must resolve to one of them.
func NewRegistry(cfg config.LLMConfig) (*Registry, error) {
	clients := make(map[string]llm.Client)

	if strings.TrimSpace(cfg.Ollama.Host) != "" || strings.TrimSpace(cfg.Ollama.Model) != "" ||
		strings.EqualFold(cfg.Provider, "ollama") {
		client, err := ollama.NewClient(ollama.Config{
			Host:  cfg.Ollama.Host,
			Model: cfg.Ollama.Model,
			Options: llm.Options{
				Temperature: cfg.Ollama.Temperature,
				TopP:        cfg.Ollama.TopP,
				NumCtx:      cfg.Ollama.NumCtx,
			},
			Timeout: cfg.Ollama.Timeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("初始化 ollama 客户端失败: %w", err)
		}
		clients["ollama"] = client
	}

	apiKey := strings.TrimSpace(cfg.OpenAI.APIKey)
	if apiKey == "" && cfg.OpenAI.APIKeyEnv != "" {
		apiKey = strings.TrimSpace(os.Getenv(cfg.OpenAI.APIKeyEnv))
	}
	if apiKey != "" {
		client, err := openai.NewClient(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
			Options: llm.Options{Temperature: cfg.OpenAI.Temperature},
			Timeout: cfg.OpenAI.Timeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("初始化 openai 客户端失败: %w", err)
		}
		clients["openai"] = client
	} else if strings.EqualFold(cfg.Provider, "openai") {
		return nil, errors.New("openai provider 需要配置 api_key 或 api_key_env")
	}

	if len(clients) == 0 {
		return nil, errors.New("未配置任何可用的模型客户端")
	}

	defaultName := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if defaultName == "" {
		names := make([]string, 0, len(clients))
		for name := range clients {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultName = names[0]
	}
	if _, ok := clients[defaultName]; !ok {
		return nil, fmt.Errorf("默认 provider %s 未在配置中找到", defaultName)
	}

	return &Registry{defaultName: defaultName, clients: clients}, nil
}

// DefaultClient returns the client configured as the default provider.
func (r *Registry) DefaultClient() (llm.Client, error) {
	if r == nil {
		return nil, errors.New("未初始化的模型客户端注册表")
	}
	client, ok := r.clients[r.defaultName]
	if !ok {
		return nil, fmt.Errorf("默认 provider %s 未在注册表中", r.defaultName)
	}
	return client, nil
}

// Client returns the model client identified by name.
func (r *Registry) Client(name string) (llm.Client, bool) {
	if r == nil {
		return nil, false
	}
	client, ok := r.clients[strings.ToLower(strings.TrimSpace(name))]
	return client, ok
}

// Providers returns the list of registered provider names.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
