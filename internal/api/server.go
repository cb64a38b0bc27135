package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"OpenAgent-Hub/internal/agent"
	"OpenAgent-Hub/internal/auth"
	"OpenAgent-Hub/internal/conversation"
	xerrors "OpenAgent-Hub/internal/errors"
	"OpenAgent-Hub/internal/llm"
	"OpenAgent-Hub/internal/observability/metrics"
	"OpenAgent-Hub/internal/orchestrator"
	"OpenAgent-Hub/internal/task"
	"OpenAgent-Hub/pkg/logger"
)

// Router 抽象同步路由执行能力, 由 orchestrator.Service 实现。
type Router interface {
	Execute(ctx context.Context, req orchestrator.RouteRequest) (*orchestrator.RouteResult, error)
	ListHistory(ctx context.Context, userID, sessionID string, limit int) ([]conversation.Message, error)
	Agents() []agent.Descriptor
}

// TaskService 抽象异步任务提交与查询能力, 由 task.Service 实现。
type TaskService interface {
	Submit(ctx context.Context, req task.SubmitRequest) (*task.Task, error)
	Get(ctx context.Context, id string) (*task.Task, error)
	List(ctx context.Context, opts ...task.ListOption) ([]*task.Task, error)
	Stats(ctx context.Context, opts ...task.ListOption) (task.TaskStats, error)
}

// Server 暴露路由中枢的 REST 接口。
type Server struct {
	addr   string
	router Router
	tasks  TaskService
	auth   *auth.Service
	health map[string]llm.HealthChecker
}

// Option 配置 Server 的可选能力。
type Option func(*Server)

// WithAuth 启用令牌签发与请求鉴权。
func WithAuth(service *auth.Service) Option {
	return func(s *Server) { s.auth = service }
}

// WithTaskService 启用异步任务接口。
func WithTaskService(tasks TaskService) Option {
	return func(s *Server) { s.tasks = tasks }
}

// WithHealthCheckers 注册按提供方命名的探活器, 供 /healthz 聚合。
func WithHealthCheckers(checkers map[string]llm.HealthChecker) Option {
	return func(s *Server) { s.health = checkers }
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, router Router, opts ...Option) *Server {
	s := &Server{addr: addr, router: router}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler 构造带鉴权与指标采集的根处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.instrument("healthz", s.handleHealthz))
	mux.HandleFunc("/api/v1/auth/token", s.instrument("auth_token", s.handleToken))
	mux.HandleFunc("/api/v1/route", s.instrument("route", s.handleRoute))
	mux.HandleFunc("/api/v1/agents", s.instrument("agents", s.handleAgents))
	mux.HandleFunc("/api/v1/conversations", s.instrument("conversations", s.handleConversations))
	mux.HandleFunc("/api/v1/tasks", s.instrument("tasks", s.handleTasks))
	mux.HandleFunc("/api/v1/tasks/stats", s.instrument("task_stats", s.handleTaskStats))
	mux.HandleFunc("/api/v1/tasks/", s.instrument("task_get", s.handleTaskByID))

	var handler http.Handler = mux
	if s.auth.Enabled() {
		handler = auth.Middleware(s.auth, auth.MiddlewareConfig{
			RequiredPermissions: map[string][]string{
				"POST /api/v1/route": {"route:execute"},
				"POST /api/v1/tasks": {"tasks:write"},
				"GET /api/v1/tasks":  {"tasks:read"},
			},
			AuditEvent: "API 访问",
		})(handler)
	}
	return handler
}

// Start 启动 HTTP 服务, 直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.L().Info("API 服务已启动", "addr", s.addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "INVALID_ARGUMENT", "仅支持 POST")
		return
	}
	if !s.auth.Enabled() {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "认证未启用")
		return
	}

	var req auth.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "请求体解析失败")
		return
	}

	pair, err := s.auth.Authenticate(r.Context(), req)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrUnsupportedGrant) {
			status = http.StatusBadRequest
		}
		writeError(w, status, "UNAUTHORIZED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// handleRoute 同步执行一次路由: 分类、派发并返回智能体回复。
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "INVALID_ARGUMENT", "仅支持 POST")
		return
	}

	var req orchestrator.RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "请求体解析失败")
		return
	}

	result, err := s.router.Execute(r.Context(), req)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	metrics.ObserveRoute(result.AgentID, result.Confidence, result.Fallback)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "INVALID_ARGUMENT", "仅支持 GET")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": s.router.Agents()})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "INVALID_ARGUMENT", "仅支持 GET")
		return
	}
	query := r.URL.Query()
	userID := query.Get("user_id")
	sessionID := query.Get("session_id")
	if userID == "" || sessionID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "user_id 与 session_id 必填")
		return
	}
	limit := parseIntParam(query.Get("limit"), 0)

	messages, err := s.router.ListHistory(r.Context(), userID, sessionID, limit)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, "QUEUE_FAILURE", "任务服务未启用")
		return
	}
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitTask(w, r)
	case http.MethodGet:
		s.handleListTasks(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "INVALID_ARGUMENT", "仅支持 GET/POST")
	}
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req task.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "请求体解析失败")
		return
	}

	created, err := s.tasks.Submit(r.Context(), req)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	opts := listOptionsFromQuery(r)
	results, err := s.tasks.List(r.Context(), opts...)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": results})
}

func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, "QUEUE_FAILURE", "任务服务未启用")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "INVALID_ARGUMENT", "仅支持 GET")
		return
	}

	stats, err := s.tasks.Stats(r.Context(), listOptionsFromQuery(r)...)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, "QUEUE_FAILURE", "任务服务未启用")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "INVALID_ARGUMENT", "仅支持 GET")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/tasks/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "任务不存在")
		return
	}

	found, err := s.tasks.Get(r.Context(), id)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// handleHealthz 聚合各 LLM 提供方的探活结果。
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.health))
	healthy := true
	for name, checker := range s.health {
		if err := checker.HealthCheck(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	state := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "providers": checks})
}

// instrument 包装处理函数, 记录请求计数与耗时。
func (s *Server) instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func listOptionsFromQuery(r *http.Request) []task.ListOption {
	query := r.URL.Query()
	opts := make([]task.ListOption, 0, 4)
	if raw := query.Get("limit"); raw != "" {
		opts = append(opts, task.WithLimit(parseIntParam(raw, 20)))
	}
	if raw := query.Get("offset"); raw != "" {
		opts = append(opts, task.WithOffset(parseIntParam(raw, 0)))
	}
	if raw := query.Get("status"); raw != "" {
		statuses := make([]task.Status, 0, 2)
		for _, value := range strings.Split(raw, ",") {
			statuses = append(statuses, task.Status(strings.TrimSpace(value)))
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if userID := query.Get("user_id"); userID != "" {
		opts = append(opts, task.WithUser(userID))
	}
	if sessionID := query.Get("session_id"); sessionID != "" {
		opts = append(opts, task.WithSession(sessionID))
	}
	if agentID := query.Get("agent_id"); agentID != "" {
		opts = append(opts, task.WithAgent(agentID))
	}
	return opts
}

func parseIntParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

// writeCodedError 将统一错误码映射为 HTTP 状态。
func writeCodedError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	writeError(w, statusForCode(code, err), string(code), err.Error())
}

func statusForCode(code xerrors.Code, err error) int {
	switch code {
	case xerrors.CodeInvalidArgument, task.CodeTaskValidation:
		return http.StatusBadRequest
	case xerrors.CodeNotFound, xerrors.CodeAgentNotFound, task.CodeTaskNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict, task.CodeTaskConflict:
		return http.StatusConflict
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case xerrors.CodeProviderFailure, xerrors.CodeClassifierFailure:
		return http.StatusBadGateway
	}
	switch {
	case errors.Is(err, task.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, task.ErrTaskConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeError(w, http.StatusServiceUnavailable, "UNKNOWN", "服务已关闭")
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
