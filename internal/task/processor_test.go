package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	xerrors "OpenAgent-Hub/internal/errors"
	"OpenAgent-Hub/internal/orchestrator"
)

type stubExecutor struct {
	calls  atomic.Int32
	result *orchestrator.RouteResult
	err    error
}

func (s *stubExecutor) Execute(_ context.Context, _ orchestrator.RouteRequest) (*orchestrator.RouteResult, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func waitForStatus(t *testing.T, store Store, id string, want Status) *Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := store.Get(context.Background(), id)
		if err == nil && task.Status == want {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("任务 %s 未在期限内达到状态 %s", id, want)
	return nil
}

func TestProcessorExecutesTask(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	executor := &stubExecutor{result: &orchestrator.RouteResult{
		AgentID:    "billing",
		AgentName:  "Billing Agent",
		Confidence: 0.88,
		Reply:      "refund processed",
	}}

	processor := NewProcessor(executor, store, queue, queue, WithWorkerCount(2))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = processor.Start(ctx) }()

	service := NewService(store, queue, 3)
	task, err := service.Submit(ctx, SubmitRequest{UserID: "u-1", SessionID: "s-1", Input: "refund please"})
	if err != nil {
		t.Fatalf("Submit 返回错误: %v", err)
	}

	done := waitForStatus(t, store, task.ID, StatusSucceeded)
	if done.Result == nil || done.Result.AgentID != "billing" {
		t.Fatalf("结果未写入: %+v", done.Result)
	}
	if done.Result.Confidence != 0.88 {
		t.Fatalf("置信度未透传: %v", done.Result.Confidence)
	}
}

func TestProcessorRetriesRetryableFailure(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	executor := &stubExecutor{err: xerrors.New(xerrors.CodeProviderFailure, "model unavailable",
		xerrors.WithRetryable(true))}

	processor := NewProcessor(executor, store, queue, queue, WithWorkerCount(1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = processor.Start(ctx) }()

	service := NewService(store, queue, 2)
	task, err := service.Submit(ctx, SubmitRequest{UserID: "u-1", SessionID: "s-1", Input: "hello"})
	if err != nil {
		t.Fatalf("Submit 返回错误: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if executor.calls.Load() >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if executor.calls.Load() < 2 {
		t.Fatalf("可重试失败应至少执行 2 次, 实际 %d", executor.calls.Load())
	}

	failed := waitForStatus(t, store, task.ID, StatusFailed)
	if failed.ErrorCode != string(xerrors.CodeProviderFailure) {
		t.Fatalf("错误码未记录: %s", failed.ErrorCode)
	}
}

func TestProcessorDegradesWithRecovery(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	executor := &stubExecutor{err: xerrors.New(xerrors.CodeClassifierFailure, "no tool call",
		xerrors.WithRetryable(false))}
	recovery := &DefaultAgentRecovery{
		AgentID:   "general",
		AgentName: "General Agent",
		Reply:     "Sorry, please rephrase your request.",
	}

	processor := NewProcessor(executor, store, queue, queue,
		WithWorkerCount(1), WithRecoveryHandler(recovery))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = processor.Start(ctx) }()

	service := NewService(store, queue, 3)
	task, err := service.Submit(ctx, SubmitRequest{UserID: "u-1", SessionID: "s-1", Input: "???"})
	if err != nil {
		t.Fatalf("Submit 返回错误: %v", err)
	}

	done := waitForStatus(t, store, task.ID, StatusSucceeded)
	if done.Result == nil || done.Result.AgentID != "general" {
		t.Fatalf("降级结果不正确: %+v", done.Result)
	}
	if done.Result.Observations == "" {
		t.Fatal("降级结果应记录原因")
	}
}
