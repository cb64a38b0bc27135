package agent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	errs "OpenAgent-Hub/internal/errors"
	"OpenAgent-Hub/internal/llm"
)

// Manifest 是 YAML 清单文件的根结构。
type Manifest struct {
	Agents []ManifestEntry `yaml:"agents"`
}

// ManifestEntry 描述清单中的单个智能体。
type ManifestEntry struct {
	ID           string  `yaml:"id"`
	Name         string  `yaml:"name"`
	Description  string  `yaml:"description"`
	SystemPrompt string  `yaml:"system_prompt"`
	Provider     string  `yaml:"provider"`
	Model        string  `yaml:"model"`
	Temperature  float64 `yaml:"temperature"`
	TopP         float64 `yaml:"top_p"`
	MaxHistory   int     `yaml:"max_history"`
}

// ClientResolver 按名称解析模型客户端，provider 注册表实现了它。
type ClientResolver interface {
	Client(name string) (llm.Client, bool)
	DefaultClient() (llm.Client, error)
}

// LoadManifest 解析 YAML 清单文件。
func LoadManifest(path string) (*Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInitializationFailure, err, "读取智能体清单失败",
			errs.WithMetadata("path", path))
	}

	var manifest Manifest
	if err := yaml.Unmarshal(content, &manifest); err != nil {
		return nil, errs.Wrap(errs.CodeInitializationFailure, err, "解析智能体清单失败",
			errs.WithMetadata("path", path))
	}
	if len(manifest.Agents) == 0 {
		return nil, errs.New(errs.CodeInitializationFailure, "智能体清单为空",
			errs.WithMetadata("path", path))
	}
	return &manifest, nil
}

// BuildRegistry 按清单构建注册表，逐项解析模型客户端。
func BuildRegistry(manifest *Manifest, resolver ClientResolver) (*Registry, error) {
	if manifest == nil {
		return nil, errs.New(errs.CodeInvalidArgument, "智能体清单不能为空")
	}
	if resolver == nil {
		return nil, errs.New(errs.CodeInvalidArgument, "缺少模型客户端解析器")
	}

	registry := NewRegistry()
	for _, entry := range manifest.Agents {
		client, err := resolveClient(resolver, entry.Provider)
		if err != nil {
			return nil, errs.Wrap(errs.CodeInitializationFailure, err,
				fmt.Sprintf("智能体 %s 的 provider 无法解析", entry.ID),
				errs.WithMetadata("agent_id", entry.ID),
				errs.WithMetadata("provider", entry.Provider))
		}

		a, err := NewLLMAgent(LLMAgentConfig{
			Descriptor: Descriptor{
				ID:          entry.ID,
				Name:        entry.Name,
				Description: entry.Description,
			},
			Client:       client,
			SystemPrompt: entry.SystemPrompt,
			Model:        entry.Model,
			Options: llm.Options{
				Temperature: entry.Temperature,
				TopP:        entry.TopP,
			},
			MaxHistory: entry.MaxHistory,
		})
		if err != nil {
			return nil, err
		}
		if err := registry.Register(a); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func resolveClient(resolver ClientResolver, name string) (llm.Client, error) {
	if name == "" {
		return resolver.DefaultClient()
	}
	client, ok := resolver.Client(name)
	if !ok {
		return nil, fmt.Errorf("provider %s 未注册", name)
	}
	return client, nil
}
