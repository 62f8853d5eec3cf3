package task

import "context"

// Store 定义任务申请的持久化接口。实现必须保证状态迁移的原子性：
// Claim 只能将 pending 迁移到 running，终态记录不可再变更。
type Store interface {
	// Create 保存一条新的任务申请。ID 冲突时返回 ErrTaskConflict。
	Create(ctx context.Context, sub *Submission) error

	// Get 返回指定任务申请的副本。
	Get(ctx context.Context, id string) (*Submission, error)

	// Claim 以独占方式将 pending 的申请迁移到 running，并返回其副本。
	// 已成功时返回 ErrTaskCompleted，已失败时返回 ErrTaskTerminal，
	// 处于 running 时返回 ErrTaskConflict。
	Claim(ctx context.Context, id string) (*Submission, error)

	// MarkSucceeded 将 running 的申请迁移到 succeeded 并记录产出。
	MarkSucceeded(ctx context.Context, id string, record *ExecutionRecord) error

	// MarkFailed 将申请迁移到 failed 终态并记录失败原因。
	MarkFailed(ctx context.Context, id string, code string, message string) error

	// List 按创建时间从新到旧返回任务申请。
	List(ctx context.Context, opts ...ListOption) ([]*Submission, error)

	// Stats 汇总各状态的数量。
	Stats(ctx context.Context) (*SubmissionStats, error)

	// Close 释放底层资源。
	Close() error
}
