package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	xerrors "AxiomHive-Agent/internal/errors"
	"AxiomHive-Agent/internal/usage"
	"AxiomHive-Agent/pkg/logger"
)

// RunStatus 表示一次批量执行的最终状态。
type RunStatus string

const (
	// RunCompleted 表示队列中的任务全部处理完毕。
	RunCompleted RunStatus = "completed"
	// RunHalted 表示预算耗尽导致剩余任务被放弃。
	RunHalted RunStatus = "halted"
)

// 单个任务在批量结果中的状态。
const (
	TaskStatusSuccess = "success"
	TaskStatusFailed  = "failed"
)

// 单次执行结果的状态。
const (
	ReportStatusSuccess = "success"
	ReportStatusError   = "error"
)

// TaskOutcome 是批量执行中单个任务的结果条目，追加顺序即执行顺序。
type TaskOutcome struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// RunResult 汇总一次批量执行：逐任务结果与最终的用量快照。
type RunResult struct {
	Agent   string         `json:"agent"`
	Status  RunStatus      `json:"status"`
	Results []TaskOutcome  `json:"results"`
	Usage   usage.Snapshot `json:"usage"`
}

// ExecutionReport 是单任务执行模式的结构化结果。
type ExecutionReport struct {
	Status       string         `json:"status"`
	Result       any            `json:"result,omitempty"`
	Message      string         `json:"message,omitempty"`
	Usage        usage.Snapshot `json:"usage"`
	WithinBudget *bool          `json:"within_budget,omitempty"`
}

// Agent 在 token/成本预算约束下顺序调度原子任务，是框架的业务核心。
// Agent 与其内部的用量计数器构成一个互斥单元：所有公开方法都持有同一把锁，
// 可以安全地嵌入并发宿主。
type Agent struct {
	name         string
	maxTokens    int
	costPer1K    float64
	trackUsage   bool
	defaultUsage *TokenUsage

	mu             sync.Mutex
	tasks          []Task
	tracker        *usage.Tracker
	budgetCallback func(usage.Snapshot)
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// defaultMaxTokens 是单个任务可用 token 数的默认上限。
const defaultMaxTokens = 5000

// WithMaxTokens 设置单个任务可用 token 数的上限。
func WithMaxTokens(maxTokens int) Option {
	return func(a *Agent) {
		if maxTokens > 0 {
			a.maxTokens = maxTokens
		}
	}
}

// WithBudgetLimit 设置本 Agent 的累计成本预算，小于等于零表示不设预算。
func WithBudgetLimit(limit float64) Option {
	return func(a *Agent) {
		a.tracker = usage.NewTracker(usage.WithBudgetLimit(limit))
	}
}

// WithCostPer1KTokens 设置每千 token 的估算单价。
func WithCostPer1KTokens(rate float64) Option {
	return func(a *Agent) {
		if rate >= 0 {
			a.costPer1K = rate
		}
	}
}

// WithUsageTracking 控制批量执行是否默认记账。
func WithUsageTracking(enabled bool) Option {
	return func(a *Agent) {
		a.trackUsage = enabled
	}
}

// WithDefaultUsage 设置任务未上报真实消耗时的默认估算值。
func WithDefaultUsage(promptTokens, completionTokens int) Option {
	return func(a *Agent) {
		if promptTokens < 0 || completionTokens < 0 {
			return
		}
		a.defaultUsage = &TokenUsage{PromptTokens: promptTokens, CompletionTokens: completionTokens}
	}
}

// New 创建一个 Agent，用量计数器随 Agent 创建并与其同生命周期。
func New(name string, opts ...Option) *Agent {
	a := &Agent{
		name:       name,
		maxTokens:  defaultMaxTokens,
		costPer1K:  usage.DefaultCostPer1KTokens,
		trackUsage: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.tracker == nil {
		a.tracker = usage.NewTracker()
	}
	logger.L().Info("Agent 初始化完成",
		slog.String("agent", name),
		slog.Int("max_tokens", a.maxTokens),
	)
	return a
}

// Name 返回 Agent 的名称。
func (a *Agent) Name() string {
	return a.name
}

// AddTask 在任务通过自检后将其加入执行队列；校验失败时队列保持不变。
func (a *Agent) AddTask(t Task) error {
	if t == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	}
	if err := t.Validate(); err != nil {
		return xerrors.Wrap(xerrors.CodeTaskValidation, err,
			fmt.Sprintf("任务 %s 校验失败", t.Config().TaskID))
	}

	a.mu.Lock()
	a.tasks = append(a.tasks, t)
	a.mu.Unlock()

	logger.L().Info("任务已加入队列",
		slog.String("agent", a.name),
		slog.String("task_id", t.Config().TaskID),
	)
	return nil
}

// TaskCount 返回当前队列中的任务数量。
func (a *Agent) TaskCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tasks)
}

// SetBudgetCallback 注册预算耗尽回调，重复注册时替换之前的回调。
// 回调在执行器锁内被调用，实现中不得再调用 Agent 自身的方法。
func (a *Agent) SetBudgetCallback(fn func(usage.Snapshot)) {
	a.mu.Lock()
	a.budgetCallback = fn
	a.mu.Unlock()
}

// Usage 返回当前用量快照。
func (a *Agent) Usage() usage.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tracker.Snapshot()
}

// UsageHistory 返回按追加顺序排列的用量事件副本。
func (a *Agent) UsageHistory() []usage.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tracker.History()
}

// Run 按注册顺序执行队列中的全部任务并返回聚合结果。
//
// 每个任务执行前都会检查预算：预算耗尽时调用一次预算回调、放弃剩余任务并把
// 状态标记为 halted，已完成的结果原样保留。单个任务的失败不会中断批次，
// 只会生成一条 failed 结果。Run 永远返回结构化结果而不抛出任务级错误。
func (a *Agent) Run(ctx context.Context) *RunResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := &RunResult{
		Agent:   a.name,
		Status:  RunCompleted,
		Results: make([]TaskOutcome, 0, len(a.tasks)),
	}

	for _, t := range a.tasks {
		if a.tracker.Exceeded() {
			logger.L().Warn("预算耗尽，停止执行剩余任务", slog.String("agent", a.name))
			a.notifyBudgetExhausted()
			result.Status = RunHalted
			break
		}

		conf := t.Config()
		outcome, err := a.executeOne(ctx, t, nil)
		if err != nil {
			logger.L().Error("任务执行失败",
				slog.String("agent", a.name),
				slog.String("task_id", conf.TaskID),
				slog.Any("error", err),
			)
			result.Results = append(result.Results, TaskOutcome{
				TaskID: conf.TaskID,
				Status: TaskStatusFailed,
				Error:  err.Error(),
			})
			continue
		}

		if a.trackUsage {
			a.recordUsage(conf, outcome)
		}
		result.Results = append(result.Results, TaskOutcome{
			TaskID: conf.TaskID,
			Status: TaskStatusSuccess,
			Output: outcome.Output,
		})
	}

	result.Usage = a.tracker.Snapshot()
	return result
}

// ExecuteTask 单独执行一个任务：先校验输入参数（失败时不消耗预算检查），
// 再检查预算，通过后执行并按需记账。与 Run 共享同一套执行与记账原语。
func (a *Agent) ExecuteTask(ctx context.Context, t Task, trackUsage bool, params map[string]any) *ExecutionReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	report := &ExecutionReport{Status: ReportStatusError}
	if t == nil {
		report.Message = "task 不能为空"
		report.Usage = a.tracker.Snapshot()
		return report
	}

	if validator, ok := t.(InputValidator); ok {
		if err := validator.ValidateInput(params); err != nil {
			report.Message = err.Error()
			report.Usage = a.tracker.Snapshot()
			return report
		}
	}

	if a.tracker.Exceeded() {
		a.notifyBudgetExhausted()
		within := false
		report.Message = xerrors.AttributesOf(xerrors.CodeBudgetExhausted).Message
		report.WithinBudget = &within
		report.Usage = a.tracker.Snapshot()
		return report
	}

	within := true
	report.WithinBudget = &within

	conf := t.Config()
	outcome, err := a.executeOne(ctx, t, params)
	if err != nil {
		report.Message = err.Error()
		report.Usage = a.tracker.Snapshot()
		return report
	}

	if trackUsage {
		a.recordUsage(conf, outcome)
	}
	report.Status = ReportStatusSuccess
	report.Result = outcome.Output
	report.Usage = a.tracker.Snapshot()
	return report
}

// executeOne 是两种调用模式共享的执行原语。任务内部的 panic 一并按执行
// 失败处理，保证失败被隔离在单个任务内。
func (a *Agent) executeOne(ctx context.Context, t Task, params map[string]any) (outcome *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = nil
			err = xerrors.New(xerrors.CodeExecutorFailure, fmt.Sprintf("任务执行 panic: %v", r),
				xerrors.WithMetadata("task_id", t.Config().TaskID))
		}
	}()

	outcome, err = t.Execute(ctx, params)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeExecutorFailure, err, "任务执行失败",
			xerrors.WithMetadata("task_id", t.Config().TaskID))
	}
	if outcome == nil {
		outcome = &Outcome{}
	}
	return outcome, nil
}

// recordUsage 记录一次成功执行的消耗：优先采用任务上报的真实 token 数，
// 否则回退到配置的默认估算。
func (a *Agent) recordUsage(conf TaskConfig, outcome *Outcome) {
	prompt, completion := a.estimateUsage(conf, outcome)
	snapshot, err := a.tracker.LogUsage(prompt, completion, a.costPer1K, conf.TaskID)
	if err != nil {
		logger.L().Warn("记录用量失败",
			slog.String("agent", a.name),
			slog.String("task_id", conf.TaskID),
			slog.Any("error", err),
		)
		return
	}
	logger.Audit().Info("用量已记录",
		slog.String("agent", a.name),
		slog.String("task_id", conf.TaskID),
		slog.Int("total_tokens", snapshot.TotalTokens),
		slog.Float64("estimated_cost", snapshot.EstimatedCost),
	)
}

func (a *Agent) estimateUsage(conf TaskConfig, outcome *Outcome) (prompt, completion int) {
	if outcome != nil && outcome.Usage != nil {
		return outcome.Usage.PromptTokens, outcome.Usage.CompletionTokens
	}
	if a.defaultUsage != nil {
		return a.defaultUsage.PromptTokens, a.defaultUsage.CompletionTokens
	}
	maxTokens := conf.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}
	// 无任何上报时按任务 token 上限对半拆分估算。
	return maxTokens / 2, maxTokens - maxTokens/2
}

// notifyBudgetExhausted 调用预算回调；未注册回调是合法的空操作。
func (a *Agent) notifyBudgetExhausted() {
	if a.budgetCallback == nil {
		return
	}
	a.budgetCallback(a.tracker.Snapshot())
}
