package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config 描述了 AgentHub 在启动阶段需要加载的核心配置。
type Config struct {
	Server     ServerConfig     `json:"server"`
	Storage    StorageConfig    `json:"storage"`
	TaskQueue  TaskQueueConfig  `json:"task_queue"`
	LLM        LLMConfig        `json:"llm"`
	Classifier ClassifierConfig `json:"classifier"`
	Agents     AgentsConfig     `json:"agents"`
	Knowledge  KnowledgeConfig  `json:"knowledge"`
	Auth       AuthConfig       `json:"auth"`
	Plugins    PluginsConfig    `json:"plugins"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Runtime    RuntimeConfig    `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// StorageConfig 统一描述各个持久化后端的连接信息。
type StorageConfig struct {
	TaskStore         StoreConfig `json:"task_store"`
	ConversationStore StoreConfig `json:"conversation_store"`
}

// StoreConfig 描述单个存储后端，memory 与 mysql 两种驱动可选。
type StoreConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	Retries                int    `json:"retries"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
}

// TaskQueueConfig 描述异步路由任务使用的消息队列。
type TaskQueueConfig struct {
	Driver   string         `json:"driver"`
	Worker   int            `json:"worker"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列的连接参数。
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// LLMConfig 用于配置对话模型的调用方式。
type LLMConfig struct {
	// Provider 指定默认的模型客户端，可选 ollama 或 openai。
	Provider string       `json:"provider"`
	Ollama   OllamaConfig `json:"ollama"`
	OpenAI   OpenAIConfig `json:"openai"`
}

// OllamaConfig 描述本地 Ollama 服务的地址、模型与推理参数。
type OllamaConfig struct {
	Host           string  `json:"host"`
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	TopP           float64 `json:"top_p"`
	NumCtx         int     `json:"num_ctx"`
	TimeoutSeconds int     `json:"timeout_seconds"`
}

// Timeout 返回推理超时时间。
func (c OllamaConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// OpenAIConfig 描述 OpenAI 兼容端点的访问方式。
type OpenAIConfig struct {
	APIKey         string  `json:"api_key"`
	APIKeyEnv      string  `json:"api_key_env"`
	BaseURL        string  `json:"base_url"`
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	TimeoutSeconds int     `json:"timeout_seconds"`
}

// Timeout 返回推理超时时间。
func (c OpenAIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ClassifierConfig 控制分类器的行为。
type ClassifierConfig struct {
	// Provider 为空时复用 LLM.Provider 指定的客户端。
	Provider            string  `json:"provider"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	DefaultAgent        string  `json:"default_agent"`
	MemoryDepth         int     `json:"memory_depth"`
	TimeoutSeconds      int     `json:"timeout_seconds"`
}

// Timeout 返回单次分类的超时时间。
func (c ClassifierConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AgentsConfig 指定智能体清单文件的位置。
type AgentsConfig struct {
	Manifest string `json:"manifest"`
}

// KnowledgeConfig 指定路由提示库的来源。
type KnowledgeConfig struct {
	Source     string `json:"source"`
	MaxResults int    `json:"max_results"`
}

// AuthConfig 控制 API 鉴权。
type AuthConfig struct {
	Mode  string       `json:"mode"`
	JWT   JWTConfig    `json:"jwt"`
	Seeds []SeedConfig `json:"seeds"`
}

// JWTConfig 描述签发访问令牌所需的密钥与有效期。
type JWTConfig struct {
	Secret     string `json:"secret"`
	Issuer     string `json:"issuer"`
	Audience   string `json:"audience"`
	AccessTTL  int    `json:"access_ttl_seconds"`
	RefreshTTL int    `json:"refresh_ttl_seconds"`
}

// SeedConfig 描述启动时写入用户存储的初始账号。
type SeedConfig struct {
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// PluginsConfig 指定插件管理器的配置文件, 为空时不加载插件。
type PluginsConfig struct {
	Manifest string `json:"manifest"`
}

// LoggingConfig 控制结构化日志输出。
type LoggingConfig struct {
	Level       string         `json:"level"`
	Format      string         `json:"format"`
	OutputPaths []string       `json:"output_paths"`
	Audit       AuditLogConfig `json:"audit"`
}

// AuditLogConfig 控制审计日志的落盘与轮转。
type AuditLogConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// MetricsConfig 控制独立的指标服务。
type MetricsConfig struct {
	Address string `json:"address"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.TaskStore.Driver == "" {
		c.Storage.TaskStore.Driver = "memory"
	}
	if c.Storage.TaskStore.Retries <= 0 {
		c.Storage.TaskStore.Retries = 3
	}
	if c.Storage.ConversationStore.Driver == "" {
		c.Storage.ConversationStore.Driver = "memory"
	}

	if c.TaskQueue.Driver == "" {
		c.TaskQueue.Driver = "memory"
	}
	if c.TaskQueue.Worker <= 0 {
		c.TaskQueue.Worker = 4
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "ollama"
	}

	if c.Classifier.ConfidenceThreshold <= 0 {
		c.Classifier.ConfidenceThreshold = 0.4
	}
	if c.Classifier.MemoryDepth <= 0 {
		c.Classifier.MemoryDepth = 5
	}

	if c.Agents.Manifest == "" {
		c.Agents.Manifest = filepath.Join(baseDir, "agents.yaml")
	} else if !filepath.IsAbs(c.Agents.Manifest) {
		c.Agents.Manifest = filepath.Join(baseDir, c.Agents.Manifest)
	}

	if c.Knowledge.Source != "" && !filepath.IsAbs(c.Knowledge.Source) {
		c.Knowledge.Source = filepath.Join(baseDir, c.Knowledge.Source)
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = "disabled"
	}

	if c.Plugins.Manifest != "" && !filepath.IsAbs(c.Plugins.Manifest) {
		c.Plugins.Manifest = filepath.Join(baseDir, c.Plugins.Manifest)
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}
