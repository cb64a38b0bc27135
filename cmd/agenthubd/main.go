package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"OpenAgent-Hub/internal/agent"
	"OpenAgent-Hub/internal/api"
	"OpenAgent-Hub/internal/auth"
	"OpenAgent-Hub/internal/classifier"
	"OpenAgent-Hub/internal/config"
	"OpenAgent-Hub/internal/conversation"
	"OpenAgent-Hub/internal/knowledge"
	"OpenAgent-Hub/internal/llm"
	"OpenAgent-Hub/internal/llm/provider"
	"OpenAgent-Hub/internal/observability/alerting"
	"OpenAgent-Hub/internal/observability/metrics"
	"OpenAgent-Hub/internal/orchestrator"
	"OpenAgent-Hub/internal/task"
	"OpenAgent-Hub/pkg/logger"
	"OpenAgent-Hub/pkg/plugin"
)

// main 是 AgentHub 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("agenthubd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("AGENTHUB_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "agenthub.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Runtime.DataDir != "" {
		if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
			return err
		}
	}

	// 初始化模型客户端注册表。
	providers, err := provider.NewRegistry(cfg.LLM)
	if err != nil {
		return err
	}

	// 加载智能体清单并构建注册表。
	manifest, err := agent.LoadManifest(cfg.Agents.Manifest)
	if err != nil {
		return err
	}
	registry, err := agent.BuildRegistry(manifest, providers)
	if err != nil {
		return err
	}
	logger.L().Info("智能体注册完成", "count", registry.Len())

	// 路由提示库是可选的。
	var knowledgeProvider knowledge.Provider
	if cfg.Knowledge.Source != "" {
		static, err := knowledge.LoadStaticProvider(cfg.Knowledge.Source, cfg.Knowledge.MaxResults)
		if err != nil {
			return err
		}
		knowledgeProvider = static
	}

	if cfg.Plugins.Manifest != "" {
		plugins, err := startPlugins(ctx, cfg.Plugins.Manifest, registry, knowledgeProvider)
		if err != nil {
			return err
		}
		defer func() {
			if err := plugins.StopAll(context.Background()); err != nil {
				logger.L().Warn("停止插件失败", "error", err)
			}
		}()
	}

	classifierClient, err := resolveClassifierClient(providers, cfg)
	if err != nil {
		return err
	}
	cls, err := classifier.NewLLMClassifier(classifier.Config{
		Client:    classifierClient,
		Registry:  registry,
		Knowledge: knowledgeProvider,
	})
	if err != nil {
		return err
	}

	conversations, err := createConversationRepository(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closer, ok := conversations.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}()

	router, err := orchestrator.NewService(cls, registry, conversations,
		orchestrator.WithConfidenceThreshold(cfg.Classifier.ConfidenceThreshold),
		orchestrator.WithDefaultAgent(cfg.Classifier.DefaultAgent),
		orchestrator.WithMemoryDepth(cfg.Classifier.MemoryDepth),
		orchestrator.WithClassifyTimeout(cfg.Classifier.Timeout()),
	)
	if err != nil {
		return err
	}

	taskStore, err := createTaskStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = taskStore.Close()
	}()

	taskQueue, err := createTaskQueue(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := taskQueue.Close(); err != nil {
			logger.L().Warn("关闭任务队列失败", "error", err)
		}
	}()

	taskService := task.NewService(taskStore, taskQueue, cfg.Storage.TaskStore.Retries)

	processorOpts := []task.ProcessorOption{
		task.WithWorkerCount(cfg.TaskQueue.Worker),
		task.WithProcessorLogger(logger.Named("processor")),
		task.WithAlertDispatcher(alerting.NewFanout()),
	}
	if cfg.Classifier.DefaultAgent != "" {
		if fallback, err := registry.Get(cfg.Classifier.DefaultAgent); err == nil {
			processorOpts = append(processorOpts, task.WithRecoveryHandler(&task.DefaultAgentRecovery{
				AgentID:   fallback.Describe().ID,
				AgentName: fallback.Describe().Name,
				Reply:     "当前无法完成智能路由, 已转交默认坐席处理。",
			}))
		}
	}
	processor := task.NewProcessor(router, taskStore, taskQueue, taskQueue, processorOpts...)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()
	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("任务处理器异常退出", "error", err)
		}
	}()

	if cfg.Metrics.Address != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Metrics.Address); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务异常退出", "error", err)
			}
		}()
	}

	authService, err := createAuthService(ctx, cfg)
	if err != nil {
		return err
	}

	server := api.NewServer(cfg.Server.Address, router,
		api.WithTaskService(taskService),
		api.WithAuth(authService),
		api.WithHealthCheckers(collectHealthCheckers(providers)),
	)
	return server.Start(ctx)
}

// resolveClassifierClient 选择分类器使用的模型客户端,
// 未显式指定 provider 时复用默认客户端。
func resolveClassifierClient(providers *provider.Registry, cfg *config.Config) (llm.Client, error) {
	name := strings.TrimSpace(cfg.Classifier.Provider)
	if name == "" {
		return providers.DefaultClient()
	}
	client, ok := providers.Client(name)
	if !ok {
		return nil, fmt.Errorf("分类器指定的 provider 未配置: %s", name)
	}
	return client, nil
}

func createConversationRepository(cfg *config.Config) (conversation.Repository, error) {
	switch cfg.Storage.ConversationStore.Driver {
	case "", "memory":
		return conversation.NewMemoryRepository(), nil
	case "mysql":
		return conversation.NewMySQLRepository(cfg.Storage.ConversationStore.DSN)
	default:
		return nil, fmt.Errorf("未知的会话存储驱动: %s", cfg.Storage.ConversationStore.Driver)
	}
}

func createTaskStore(cfg *config.Config) (task.Store, error) {
	store := cfg.Storage.TaskStore
	switch store.Driver {
	case "", "memory":
		return task.NewMemoryStore(), nil
	case "mysql":
		return task.NewMySQLStore(task.MySQLStoreConfig{
			DSN:             store.DSN,
			MaxOpenConns:    store.MaxOpenConns,
			MaxIdleConns:    store.MaxIdleConns,
			ConnMaxLifetime: time.Duration(store.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(store.ConnMaxIdleTimeSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("未知的任务存储驱动: %s", store.Driver)
	}
}

func createTaskQueue(cfg *config.Config) (task.Queue, error) {
	switch cfg.TaskQueue.Driver {
	case "", "memory":
		return task.NewMemoryQueue(1024), nil
	case "redis":
		return task.NewRedisQueue(task.RedisQueueConfig{
			Address:   cfg.TaskQueue.Redis.Address,
			Password:  cfg.TaskQueue.Redis.Password,
			DB:        cfg.TaskQueue.Redis.DB,
			Queue:     cfg.TaskQueue.Redis.Queue,
			BlockWait: time.Duration(cfg.TaskQueue.Redis.BlockWait) * time.Second,
		})
	case "rabbitmq":
		return task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:        cfg.TaskQueue.RabbitMQ.URL,
			Queue:      cfg.TaskQueue.RabbitMQ.Queue,
			Prefetch:   cfg.TaskQueue.RabbitMQ.Prefetch,
			Durable:    cfg.TaskQueue.RabbitMQ.Durable,
			AutoDelete: cfg.TaskQueue.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.TaskQueue.Driver)
	}
}

func createAuthService(ctx context.Context, cfg *config.Config) (*auth.Service, error) {
	seeds := make([]auth.Seed, 0, len(cfg.Auth.Seeds))
	for _, seed := range cfg.Auth.Seeds {
		seeds = append(seeds, auth.Seed{
			Username:    seed.Username,
			Password:    seed.Password,
			Roles:       seed.Roles,
			Permissions: seed.Permissions,
		})
	}

	var audience []string
	for _, value := range strings.Split(cfg.Auth.JWT.Audience, ",") {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			audience = append(audience, trimmed)
		}
	}

	var store auth.Store
	if cfg.Auth.Mode == string(auth.ModeJWT) {
		store = auth.NewMemoryStore()
	}
	return auth.NewService(ctx, auth.Config{
		Mode: auth.Mode(cfg.Auth.Mode),
		JWT: auth.JWTOptions{
			Secret:     cfg.Auth.JWT.Secret,
			Issuer:     cfg.Auth.JWT.Issuer,
			Audience:   audience,
			AccessTTL:  int64(cfg.Auth.JWT.AccessTTL),
			RefreshTTL: int64(cfg.Auth.JWT.RefreshTTL),
		},
		Seeds: seeds,
	}, store)
}

// pluginAgent 将插件注册的应答函数适配为 agent.Agent。
type pluginAgent struct {
	descriptor agent.Descriptor
	respond    func(string) (string, bool)
}

func (a *pluginAgent) Describe() agent.Descriptor { return a.descriptor }

func (a *pluginAgent) Respond(_ context.Context, req agent.Request) (*agent.Reply, error) {
	reply, ok := a.respond(req.Input)
	if !ok {
		return nil, fmt.Errorf("插件智能体 %s 无法处理该请求", a.descriptor.ID)
	}
	return &agent.Reply{Content: reply}, nil
}

// startPlugins 加载插件清单并把注册回调暴露给插件。
func startPlugins(ctx context.Context, manifest string, registry *agent.Registry, hints knowledge.Provider) (*plugin.Manager, error) {
	pluginCfg, err := plugin.LoadManagerConfig(manifest)
	if err != nil {
		return nil, err
	}

	opts := []plugin.Option{
		plugin.WithResource("hub:register_agent", func(id, name string, respond func(string) (string, bool)) error {
			return registry.Register(&pluginAgent{
				descriptor: agent.Descriptor{ID: id, Name: name, Description: "plugin agent"},
				respond:    respond,
			})
		}),
	}
	if static, ok := hints.(*knowledge.StaticProvider); ok {
		opts = append(opts, plugin.WithResource("hub:routing_hints", func(agentID, summary string, keywords []string) error {
			static.Append(knowledge.Hint{AgentID: agentID, Summary: summary, Keywords: keywords})
			return nil
		}))
	}

	manager, err := plugin.NewManager(pluginCfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := manager.StartAll(ctx); err != nil {
		return nil, err
	}
	logger.L().Info("插件已启动", "count", len(manager.Infos("")))
	return manager, nil
}

func collectHealthCheckers(providers *provider.Registry) map[string]llm.HealthChecker {
	checkers := make(map[string]llm.HealthChecker)
	for _, name := range providers.Providers() {
		client, ok := providers.Client(name)
		if !ok {
			continue
		}
		if checker, ok := client.(llm.HealthChecker); ok {
			checkers[name] = checker
		}
	}
	return checkers
}
