package task

import (
	"context"
	"log/slog"
	"time"

	"AxiomHive-Agent/internal/agent"
	xerrors "AxiomHive-Agent/internal/errors"
	"AxiomHive-Agent/internal/observability/alerting"
	"AxiomHive-Agent/internal/observability/metrics"
	"AxiomHive-Agent/internal/usage"
	"AxiomHive-Agent/pkg/logger"
)

// Executor 定义处理器所需的执行器能力。Usage 用于在执行前后取快照，
// 以便把本次消耗的差值写入任务记录。
type Executor interface {
	Name() string
	ExecuteTask(ctx context.Context, t agent.Task, trackUsage bool, params map[string]any) *agent.ExecutionReport
	Usage() usage.Snapshot
}

// TaskFactory 将一条任务申请转换为可执行的原子任务。
type TaskFactory func(sub *Submission) (agent.Task, error)

// Processor 从队列消费任务申请并交给执行器执行，结果回写到 Store。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	factory     TaskFactory
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定调试日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, factory TaskFactory, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		factory:     factory,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动任务处理循环，直到 ctx 取消。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, submissionID string) error {
	if p.store == nil || p.executor == nil || p.factory == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	sub, err := p.store.Claim(ctx, submissionID)
	if err != nil {
		if IsTerminalClaim(err) {
			p.logDebug("跳过任务", slog.String("task_id", submissionID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取任务失败", slog.Any("error", err), slog.String("task_id", submissionID))
		return err
	}

	t, err := p.factory(sub)
	if err != nil {
		return p.fail(ctx, sub, xerrors.CodeOf(err), err.Error(), usage.Snapshot{}, usage.Snapshot{})
	}

	before := p.executor.Usage()
	report := p.executor.ExecuteTask(ctx, t, sub.TrackUsage, sub.Params)
	after := p.executor.Usage()

	// 预算拒绝：任务未被执行，记录终态并告警。
	if report.WithinBudget != nil && !*report.WithinBudget {
		metrics.ObserveBudgetHalt()
		p.emitAlert(ctx, sub, xerrors.CodeBudgetExhausted, report.Message, after)
		return p.fail(ctx, sub, xerrors.CodeBudgetExhausted, report.Message, before, after)
	}
	if report.Status != agent.ReportStatusSuccess {
		p.emitAlert(ctx, sub, CodeTaskProcessing, report.Message, after)
		return p.fail(ctx, sub, CodeTaskProcessing, report.Message, before, after)
	}

	record := &ExecutionRecord{
		Output:           report.Result,
		PromptTokens:     after.PromptTokens - before.PromptTokens,
		CompletionTokens: after.CompletionTokens - before.CompletionTokens,
		EstimatedCost:    after.EstimatedCost - before.EstimatedCost,
		WithinBudget:     true,
	}
	if err := p.store.MarkSucceeded(ctx, sub.ID, record); err != nil {
		logger.L().Error("标记任务成功状态失败", slog.Any("error", err), slog.String("task_id", sub.ID))
		return err
	}
	metrics.ObserveTask(string(StatusSucceeded), record.PromptTokens, record.CompletionTokens, record.EstimatedCost)
	logger.Audit().Info("任务执行成功",
		slog.String("task_id", sub.ID),
		slog.String("description", sub.Description),
		slog.Int("prompt_tokens", record.PromptTokens),
		slog.Int("completion_tokens", record.CompletionTokens),
		slog.Float64("estimated_cost", record.EstimatedCost),
	)
	return nil
}

func (p *Processor) fail(ctx context.Context, sub *Submission, code xerrors.Code, message string, before, after usage.Snapshot) error {
	if code == "" || code == xerrors.CodeUnknown {
		code = CodeTaskProcessing
	}
	if storeErr := p.store.MarkFailed(ctx, sub.ID, string(code), message); storeErr != nil {
		logger.L().Error("标记任务失败状态出错", slog.Any("error", storeErr), slog.String("task_id", sub.ID))
		return storeErr
	}
	metrics.ObserveTask(string(StatusFailed),
		after.PromptTokens-before.PromptTokens,
		after.CompletionTokens-before.CompletionTokens,
		after.EstimatedCost-before.EstimatedCost,
	)
	logger.Audit().Warn("任务执行失败",
		slog.String("task_id", sub.ID),
		slog.String("description", sub.Description),
		slog.String("error_code", string(code)),
		slog.String("error", message),
	)
	return nil
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger == nil {
		return
	}
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	p.logger.Debug(msg, args...)
}

func (p *Processor) emitAlert(ctx context.Context, sub *Submission, code xerrors.Code, message string, snapshot usage.Snapshot) {
	if p == nil || p.alerter == nil || sub == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	if message == "" {
		message = attrs.Message
	}
	event := alerting.Event{
		Code:          code,
		Message:       message,
		Severity:      attrs.Severity,
		AgentName:     p.executor.Name(),
		TaskID:        sub.ID,
		EstimatedCost: snapshot.EstimatedCost,
		BudgetLimit:   snapshot.BudgetLimit,
		OccurredAt:    time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("task_id", sub.ID),
			slog.String("code", string(code)),
		)
	}
}
