package conversation

import (
	"context"
	"testing"

	errs "OpenAgent-Hub/internal/errors"
)

func TestMemoryRepositoryAppendAndHistory(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	err := repo.Append(ctx, "u-1", "s-1",
		Message{Role: RoleUser, Content: "hello"},
		Message{Role: RoleAssistant, Content: "hi there", AgentID: "general"},
	)
	if err != nil {
		t.Fatalf("Append 返回错误: %v", err)
	}

	history, err := repo.History(ctx, "u-1", "s-1", 0)
	if err != nil {
		t.Fatalf("History 返回错误: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("期望 2 条历史, 实际 %d", len(history))
	}
	if history[0].Role != RoleUser || history[1].AgentID != "general" {
		t.Fatalf("历史顺序或内容不正确: %+v", history)
	}
	if history[0].CreatedAt.IsZero() {
		t.Fatal("Append 应补齐时间戳")
	}
}

func TestMemoryRepositoryHistoryLimit(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	for _, content := range []string{"one", "two", "three"} {
		if err := repo.Append(ctx, "u-1", "s-1", Message{Role: RoleUser, Content: content}); err != nil {
			t.Fatalf("Append 返回错误: %v", err)
		}
	}

	history, err := repo.History(ctx, "u-1", "s-1", 2)
	if err != nil {
		t.Fatalf("History 返回错误: %v", err)
	}
	if len(history) != 2 || history[0].Content != "two" {
		t.Fatalf("期望返回最近 2 条, 实际 %+v", history)
	}
}

func TestMemoryRepositorySessionIsolation(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_ = repo.Append(ctx, "u-1", "s-1", Message{Role: RoleUser, Content: "a"})
	_ = repo.Append(ctx, "u-1", "s-2", Message{Role: RoleUser, Content: "b"})
	_ = repo.Append(ctx, "u-2", "s-1", Message{Role: RoleUser, Content: "c"})

	history, err := repo.History(ctx, "u-1", "s-2", 0)
	if err != nil {
		t.Fatalf("History 返回错误: %v", err)
	}
	if len(history) != 1 || history[0].Content != "b" {
		t.Fatalf("会话之间应互相隔离, 实际 %+v", history)
	}
}

func TestMemoryRepositoryClear(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_ = repo.Append(ctx, "u-1", "s-1", Message{Role: RoleUser, Content: "a"})
	if err := repo.Clear(ctx, "u-1", "s-1"); err != nil {
		t.Fatalf("Clear 返回错误: %v", err)
	}
	history, _ := repo.History(ctx, "u-1", "s-1", 0)
	if len(history) != 0 {
		t.Fatalf("清理后应无历史, 实际 %d", len(history))
	}
}

func TestMemoryRepositoryValidatesKey(t *testing.T) {
	repo := NewMemoryRepository()
	err := repo.Append(context.Background(), "", "s-1", Message{Role: RoleUser, Content: "a"})
	if errs.CodeOf(err) != errs.CodeInvalidArgument {
		t.Fatalf("空 user_id 应报 INVALID_ARGUMENT, 实际 %v", err)
	}
}
