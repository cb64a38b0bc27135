package task

import (
	"context"
)

// Handler 消费一条排队的路由任务。参数是任务 ID 而非任务本身,
// 任务内容始终以 Store 中的最新状态为准。
type Handler func(ctx context.Context, taskID string) error

// Producer 向队列投递待路由的任务 ID。
type Producer interface {
	Publish(ctx context.Context, taskID string) error
	Close() error
}

// Consumer 从队列取出任务 ID 并交给 Handler 处理。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 是生产与消费端合一的队列实现, memory/redis/rabbitmq 驱动都满足它。
type Queue interface {
	Producer
	Consumer
}
