package task

import (
	"context"
	"errors"
	"sync"
)

// MemoryQueue 是基于 channel 的进程内队列, 供单机部署与测试使用。
// 进程退出即丢失未消费的任务 ID, 但任务本身仍在 Store 中,
// 重启后可以重新投递。
type MemoryQueue struct {
	ch        chan string
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryQueue 创建容量为 size 的内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{
		ch:   make(chan string, size),
		done: make(chan struct{}),
	}
}

// Publish 将任务 ID 入队, 队列满时阻塞直到 ctx 取消。
func (q *MemoryQueue) Publish(ctx context.Context, taskID string) error {
	select {
	case <-q.done:
		return errors.New("内存队列已关闭")
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return errors.New("内存队列已关闭")
	case q.ch <- taskID:
		return nil
	}
}

// Consume 启动 workerCount 个消费协程, 阻塞直到 ctx 取消。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			q.work(ctx, handler)
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (q *MemoryQueue) work(ctx context.Context, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			return
		case taskID := <-q.ch:
			// 失败重试由处理器按 Store 中的尝试次数决定。
			_ = handler(ctx, taskID)
		}
	}
}

// Close 关闭队列, 多次调用是安全的。只关闭 done 信号而不关闭
// 数据 channel, 避免并发 Publish 向已关闭的 channel 发送。
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() {
		close(q.done)
	})
	return nil
}
