package task

import (
	"context"
	"errors"
	"sync"
)

// MemoryQueue 使用带缓冲的 channel 实现进程内队列，用于单机部署与测试。
type MemoryQueue struct {
	ch     chan string
	mu     sync.Mutex
	closed bool
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue 创建容量为 size 的内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 128
	}
	return &MemoryQueue{ch: make(chan string, size)}
}

// Publish 将任务申请 ID 投递到队列。
func (q *MemoryQueue) Publish(ctx context.Context, submissionID string) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return errors.New("队列已关闭")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- submissionID:
		return nil
	}
}

// Consume 启动 workerCount 个工作协程消费队列，直到 ctx 取消或队列关闭。
// handler 的返回值不影响投递：失败结果已经落在 Store 中。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case submissionID, ok := <-q.ch:
					if !ok {
						return
					}
					_ = handler(ctx, submissionID)
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close 关闭内存队列，随后的 Publish 会返回错误。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if !q.closed {
		close(q.ch)
		q.closed = true
	}
	q.mu.Unlock()
	return nil
}
