package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"OpenAgent-Hub/internal/agent"
	"OpenAgent-Hub/internal/conversation"
	xerrors "OpenAgent-Hub/internal/errors"
	"OpenAgent-Hub/internal/orchestrator"
	"OpenAgent-Hub/internal/task"
)

type stubRouter struct {
	result *orchestrator.RouteResult
	err    error
	agents []agent.Descriptor
	turns  []conversation.Message
}

func (s *stubRouter) Execute(_ context.Context, req orchestrator.RouteRequest) (*orchestrator.RouteResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	result := *s.result
	result.RequestID = req.RequestID
	return &result, nil
}

func (s *stubRouter) ListHistory(context.Context, string, string, int) ([]conversation.Message, error) {
	return s.turns, nil
}

func (s *stubRouter) Agents() []agent.Descriptor { return s.agents }

func newRouteServer(router Router, opts ...Option) *Server {
	return NewServer(":0", router, opts...)
}

func TestHandleRouteSuccess(t *testing.T) {
	router := &stubRouter{result: &orchestrator.RouteResult{
		AgentID:    "billing",
		AgentName:  "Billing",
		Confidence: 0.93,
		Reply:      "done",
	}}
	server := newRouteServer(router)

	body := `{"request_id":"req-1","user_id":"u1","session_id":"s1","input":"invoice question"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/route", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d body %s", rec.Code, rec.Body.String())
	}
	var got orchestrator.RouteResult
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.RequestID != "req-1" || got.AgentID != "billing" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestHandleRouteErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid argument", xerrors.New(xerrors.CodeInvalidArgument, "bad"), http.StatusBadRequest},
		{"agent missing", xerrors.New(xerrors.CodeAgentNotFound, "none"), http.StatusNotFound},
		{"classifier", xerrors.New(xerrors.CodeClassifierFailure, "no tool call"), http.StatusBadGateway},
		{"timeout", xerrors.New(xerrors.CodeTimeout, "slow"), http.StatusGatewayTimeout},
		{"unknown", context.Canceled, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := newRouteServer(&stubRouter{err: tc.err})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/route", strings.NewReader(`{"user_id":"u","session_id":"s","input":"x"}`))
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("got %d want %d body %s", rec.Code, tc.status, rec.Body.String())
			}
		})
	}
}

func TestHandleAgents(t *testing.T) {
	server := newRouteServer(&stubRouter{agents: []agent.Descriptor{
		{ID: "billing", Name: "Billing", Description: "invoices"},
		{ID: "tech", Name: "Tech", Description: "troubleshooting"},
	}})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var got struct {
		Agents []agent.Descriptor `json:"agents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got.Agents) != 2 || got.Agents[0].ID != "billing" {
		t.Fatalf("unexpected agents: %+v", got.Agents)
	}
}

func TestTaskEndpoints(t *testing.T) {
	store := task.NewMemoryStore()
	queue := task.NewMemoryQueue(4)
	svc := task.NewService(store, queue, 3)
	server := newRouteServer(&stubRouter{}, WithTaskService(svc))
	handler := server.Handler()

	body := `{"user_id":"u1","session_id":"s1","input":"route me"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(body)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status: got %d body %s", rec.Code, rec.Body.String())
	}
	var created task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.ID == "" || created.Status != task.StatusPending {
		t.Fatalf("unexpected created task: %+v", created)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+created.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tasks/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing task, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tasks?user_id=u1&status=pending", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status: %d", rec.Code)
	}
	var listed struct {
		Tasks []*task.Task `json:"tasks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(listed.Tasks))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tasks/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status: %d", rec.Code)
	}
	var stats task.TaskStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 1 || stats.Pending != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSubmitTaskValidation(t *testing.T) {
	svc := task.NewService(task.NewMemoryStore(), task.NewMemoryQueue(1), 3)
	server := newRouteServer(&stubRouter{}, WithTaskService(svc))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(`{"user_id":"","session_id":"s","input":"x"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleConversations(t *testing.T) {
	server := newRouteServer(&stubRouter{turns: []conversation.Message{
		{Role: conversation.RoleUser, Content: "hi"},
		{Role: conversation.RoleAssistant, Content: "hello", AgentID: "general"},
	}})
	handler := server.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations?user_id=u1&session_id=s1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var got struct {
		Messages []conversation.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got.Messages) != 2 || got.Messages[1].AgentID != "general" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations?user_id=u1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without session_id, got %d", rec.Code)
	}
}

func TestHealthzWithoutCheckers(t *testing.T) {
	server := newRouteServer(&stubRouter{})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}
