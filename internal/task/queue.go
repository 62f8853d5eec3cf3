package task

import (
	"context"
)

// Handler 处理从队列取出的任务申请 ID。返回错误表示本次执行失败；
// 单次执行策略下队列不会重新投递，失败详情由 Store 记录。
type Handler func(ctx context.Context, submissionID string) error

// Producer 负责向队列投递任务申请。
type Producer interface {
	Publish(ctx context.Context, submissionID string) error
	Close() error
}

// Consumer 负责从队列中消费任务申请。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
