package usage

import (
	"time"

	xerrors "AxiomHive-Agent/internal/errors"
)

// Event 记录一次 token 消耗及其成本，追加后不可变更。
type Event struct {
	Tokens    int     `json:"tokens"`
	Cost      float64 `json:"cost"`
	Label     string  `json:"label,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// Snapshot 是计数器在某一时刻的只读投影，可直接序列化为对外的 usage 结构。
type Snapshot struct {
	TotalTokens      int      `json:"total_tokens"`
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	EstimatedCost    float64  `json:"estimated_cost"`
	Calls            int      `json:"calls"`
	BudgetLimit      *float64 `json:"budget_limit"`
	BudgetRemaining  *float64 `json:"budget_remaining"`
}

// Tracker 维护累计的 token 与成本计数，并回答预算是否耗尽。
// Tracker 自身不做并发保护：它与持有它的执行器构成同一个互斥单元，
// 由执行器负责串行访问。
type Tracker struct {
	promptTokens     int
	completionTokens int
	estimatedCost    float64
	calls            int
	history          []Event
	budgetLimit      float64
	now              func() time.Time
}

// Option 定义 Tracker 的可选配置。
type Option func(*Tracker)

// WithBudgetLimit 设置预算上限，小于等于零视为未设置预算。
func WithBudgetLimit(limit float64) Option {
	return func(t *Tracker) {
		t.budgetLimit = limit
	}
}

// WithClock 替换事件时间戳的时钟来源。
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker 创建一个计数器，所有计数从零开始。
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// LogUsage 记录一次调用消耗：累加计数、按每千 token 单价折算成本并追加事件。
// token 数为负时返回 INVALID_USAGE，计数器保持不变。
func (t *Tracker) LogUsage(promptTokens, completionTokens int, costPer1KTokens float64, label string) (Snapshot, error) {
	if promptTokens < 0 || completionTokens < 0 {
		return Snapshot{}, xerrors.New(xerrors.CodeInvalidUsage, "token 数不能为负",
			xerrors.WithMetadata("label", label))
	}
	if costPer1KTokens < 0 {
		return Snapshot{}, xerrors.New(xerrors.CodeInvalidUsage, "token 单价不能为负",
			xerrors.WithMetadata("label", label))
	}

	increment := promptTokens + completionTokens
	cost := float64(increment) / 1000 * costPer1KTokens

	t.promptTokens += promptTokens
	t.completionTokens += completionTokens
	t.estimatedCost += cost
	t.calls++
	t.history = append(t.history, Event{
		Tokens:    increment,
		Cost:      cost,
		Label:     label,
		Timestamp: t.now().UTC().Format(time.RFC3339Nano),
	})
	return t.Snapshot(), nil
}

// Exceeded 判断累计成本是否达到预算上限，未设置预算时恒为 false。
func (t *Tracker) Exceeded() bool {
	if t.budgetLimit <= 0 {
		return false
	}
	return t.estimatedCost >= t.budgetLimit
}

// Snapshot 返回当前计数的只读副本，任何时刻均可调用且不改变状态。
func (t *Tracker) Snapshot() Snapshot {
	snap := Snapshot{
		TotalTokens:      t.promptTokens + t.completionTokens,
		PromptTokens:     t.promptTokens,
		CompletionTokens: t.completionTokens,
		EstimatedCost:    t.estimatedCost,
		Calls:            t.calls,
	}
	if t.budgetLimit > 0 {
		limit := t.budgetLimit
		remaining := t.budgetLimit - t.estimatedCost
		snap.BudgetLimit = &limit
		snap.BudgetRemaining = &remaining
	}
	return snap
}

// History 返回事件历史的副本，保持追加顺序。
func (t *Tracker) History() []Event {
	if len(t.history) == 0 {
		return nil
	}
	events := make([]Event, len(t.history))
	copy(events, t.history)
	return events
}

// BudgetLimit 返回配置的预算上限，第二个返回值表示是否设置了预算。
func (t *Tracker) BudgetLimit() (float64, bool) {
	if t.budgetLimit <= 0 {
		return 0, false
	}
	return t.budgetLimit, true
}
