package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"OpenAgent-Hub/internal/agent"
	"OpenAgent-Hub/internal/classifier"
	"OpenAgent-Hub/internal/conversation"
	errs "OpenAgent-Hub/internal/errors"
	"OpenAgent-Hub/internal/llm"
	"OpenAgent-Hub/pkg/logger"
)

// RouteRequest 是一次路由调用的输入。
type RouteRequest struct {
	RequestID string            `json:"request_id,omitempty"`
	UserID    string            `json:"user_id"`
	SessionID string            `json:"session_id"`
	Input     string            `json:"input"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// RouteResult 汇总分类与应答的全部产出。
type RouteResult struct {
	RequestID        string   `json:"request_id,omitempty"`
	AgentID          string   `json:"agent_id"`
	AgentName        string   `json:"agent_name"`
	Confidence       float64  `json:"confidence"`
	Reasoning        string   `json:"reasoning,omitempty"`
	Reply            string   `json:"reply"`
	Model            string   `json:"model,omitempty"`
	Fallback         bool     `json:"fallback"`
	Observations     []string `json:"observations,omitempty"`
	PromptTokens     int      `json:"prompt_tokens,omitempty"`
	CompletionTokens int      `json:"completion_tokens,omitempty"`
	ElapsedMS        int64    `json:"elapsed_ms"`
}

// Service 将分类、分发与会话持久化编排为一次完整的路由流程。
type Service struct {
	classifier      classifier.Classifier
	registry        *agent.Registry
	conversations   conversation.Repository
	threshold       float64
	defaultAgent    string
	memoryDepth     int
	classifyTimeout time.Duration
	log             *slog.Logger
}

// Option 用于调整 Service 的行为。
type Option func(*Service)

// WithConfidenceThreshold 设置触发兜底路由的置信度下限。
func WithConfidenceThreshold(threshold float64) Option {
	return func(s *Service) {
		if threshold > 0 {
			s.threshold = threshold
		}
	}
}

// WithDefaultAgent 指定低置信度时兜底的智能体。
func WithDefaultAgent(agentID string) Option {
	return func(s *Service) {
		s.defaultAgent = strings.TrimSpace(agentID)
	}
}

// WithMemoryDepth 控制注入分类与应答的历史消息条数。
func WithMemoryDepth(depth int) Option {
	return func(s *Service) {
		if depth > 0 {
			s.memoryDepth = depth
		}
	}
}

// WithClassifyTimeout 限制单次分类的耗时。
func WithClassifyTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.classifyTimeout = timeout
		}
	}
}

// NewService 创建路由编排服务。
func NewService(cls classifier.Classifier, registry *agent.Registry, repo conversation.Repository, opts ...Option) (*Service, error) {
	if cls == nil {
		return nil, errs.New(errs.CodeInvalidArgument, "编排服务缺少分类器")
	}
	if registry == nil || registry.Len() == 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "编排服务需要至少一个智能体")
	}
	if repo == nil {
		return nil, errs.New(errs.CodeInvalidArgument, "编排服务缺少会话仓库")
	}

	s := &Service{
		classifier:    cls,
		registry:      registry,
		conversations: repo,
		threshold:     0.4,
		memoryDepth:   5,
		log:           logger.Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Execute 完成一次路由：读历史、分类、分发、落盘。
func (s *Service) Execute(ctx context.Context, req RouteRequest) (*RouteResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	started := time.Now()
	observations := make([]string, 0, 4)

	history, err := s.conversations.History(ctx, req.UserID, req.SessionID, s.memoryDepth)
	if err != nil {
		return nil, errs.Wrap(errs.CodeStorageFailure, err, "读取会话历史失败")
	}
	transcript := toLLMMessages(history)

	result, err := s.classify(ctx, req.Input, transcript)
	if err != nil {
		return nil, err
	}
	observations = append(observations,
		fmt.Sprintf("classifier selected %s with confidence %.2f", result.AgentID, result.Confidence))

	fallback := false
	if result.Confidence < s.threshold && s.defaultAgent != "" && result.AgentID != s.defaultAgent {
		if fallbackAgent, getErr := s.registry.Get(s.defaultAgent); getErr == nil {
			observations = append(observations,
				fmt.Sprintf("confidence %.2f below threshold %.2f, falling back to %s",
					result.Confidence, s.threshold, s.defaultAgent))
			result = &classifier.Classification{
				AgentID:    s.defaultAgent,
				AgentName:  fallbackAgent.Describe().Name,
				Confidence: result.Confidence,
				Reasoning:  result.Reasoning,
			}
			fallback = true
		}
	}

	selected, err := s.registry.Get(result.AgentID)
	if err != nil {
		// 模型给出了注册表之外的 agent_id: 有兜底智能体就转交,
		// 否则视为分类失败。
		fallbackAgent, fbErr := s.resolveDefaultAgent(result.AgentID)
		if fbErr != nil {
			return nil, errs.New(errs.CodeClassifierFailure,
				fmt.Sprintf("模型选择了未注册的智能体 %s", result.AgentID),
				errs.WithMetadata("agent_id", result.AgentID))
		}
		observations = append(observations,
			fmt.Sprintf("classifier selected unknown agent %s, falling back to %s",
				result.AgentID, s.defaultAgent))
		result = &classifier.Classification{
			AgentID:    s.defaultAgent,
			AgentName:  fallbackAgent.Describe().Name,
			Confidence: result.Confidence,
			Reasoning:  result.Reasoning,
		}
		fallback = true
		selected = fallbackAgent
	}

	reply, err := selected.Respond(ctx, agent.Request{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Input:     req.Input,
		History:   transcript,
		Metadata:  req.Metadata,
	})
	if err != nil {
		return nil, errs.Wrap(errs.CodeDispatchFailure, err,
			fmt.Sprintf("智能体 %s 处理请求失败", result.AgentID),
			errs.WithMetadata("agent_id", result.AgentID))
	}

	now := time.Now()
	if err := s.conversations.Append(ctx, req.UserID, req.SessionID,
		conversation.Message{Role: conversation.RoleUser, Content: req.Input, CreatedAt: started},
		conversation.Message{Role: conversation.RoleAssistant, Content: reply.Content, AgentID: result.AgentID, CreatedAt: now},
	); err != nil {
		// 应答已经产生，历史写入失败只记录不回滚。
		s.log.Warn("持久化会话历史失败",
			slog.String("user_id", req.UserID),
			slog.String("session_id", req.SessionID),
			slog.Any("error", err))
		observations = append(observations, "failed to persist conversation turn")
	}

	elapsed := time.Since(started)
	s.log.Info("路由完成",
		slog.String("request_id", req.RequestID),
		slog.String("agent_id", result.AgentID),
		slog.Float64("confidence", result.Confidence),
		slog.Bool("fallback", fallback),
		slog.Duration("elapsed", elapsed))

	return &RouteResult{
		RequestID:        req.RequestID,
		AgentID:          result.AgentID,
		AgentName:        result.AgentName,
		Confidence:       result.Confidence,
		Reasoning:        result.Reasoning,
		Reply:            reply.Content,
		Model:            reply.Model,
		Fallback:         fallback,
		Observations:     observations,
		PromptTokens:     reply.PromptTokens,
		CompletionTokens: reply.CompletionTokens,
		ElapsedMS:        elapsed.Milliseconds(),
	}, nil
}

// ListHistory 返回指定会话最近的消息。
func (s *Service) ListHistory(ctx context.Context, userID, sessionID string, limit int) ([]conversation.Message, error) {
	if limit <= 0 {
		limit = s.memoryDepth
	}
	return s.conversations.History(ctx, userID, sessionID, limit)
}

// Agents 返回当前可路由的智能体列表。
func (s *Service) Agents() []agent.Descriptor {
	return s.registry.List()
}

// resolveDefaultAgent 返回兜底智能体。未配置兜底、或当前选择本身
// 就是兜底智能体时返回错误。
func (s *Service) resolveDefaultAgent(current string) (agent.Agent, error) {
	if s.defaultAgent == "" || current == s.defaultAgent {
		return nil, errs.New(errs.CodeAgentNotFound, "没有可用的兜底智能体")
	}
	return s.registry.Get(s.defaultAgent)
}

func (s *Service) classify(ctx context.Context, input string, history []llm.Message) (*classifier.Classification, error) {
	if s.classifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.classifyTimeout)
		defer cancel()
	}

	result, err := s.classifier.Classify(ctx, input, history)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errs.Wrap(errs.CodeTimeout, err, "分类超时",
				errs.WithRetryable(true))
		}
		return nil, err
	}
	return result, nil
}

func validateRequest(req RouteRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return errs.New(errs.CodeInvalidArgument, "user_id 不能为空")
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return errs.New(errs.CodeInvalidArgument, "session_id 不能为空")
	}
	if strings.TrimSpace(req.Input) == "" {
		return errs.New(errs.CodeInvalidArgument, "input 不能为空")
	}
	return nil
}

func toLLMMessages(history []conversation.Message) []llm.Message {
	if len(history) == 0 {
		return nil
	}
	messages := make([]llm.Message, 0, len(history))
	for _, msg := range history {
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	return messages
}
