package task

import "context"

// RecoveryHandler 定义了在任务执行失败时的补偿策略。
type RecoveryHandler interface {
	// Recover 尝试根据失败原因进行补偿或降级。
	// 返回的 ExecutionResult 将作为降级结果写入任务；若返回 nil 则继续按照失败流程处理。
	Recover(ctx context.Context, task *Task, cause error) (*ExecutionResult, error)
}

// DefaultAgentRecovery 在路由失败时把请求降级为一段固定的回复，
// 保证终端用户不会收到空响应。
type DefaultAgentRecovery struct {
	AgentID   string
	AgentName string
	Reply     string
}

// Recover 实现 RecoveryHandler。
func (r *DefaultAgentRecovery) Recover(_ context.Context, _ *Task, cause error) (*ExecutionResult, error) {
	if r == nil || r.Reply == "" {
		return nil, nil
	}
	return &ExecutionResult{
		AgentID:      r.AgentID,
		AgentName:    r.AgentName,
		Reply:        r.Reply,
		Observations: "degraded: " + cause.Error(),
	}, nil
}
