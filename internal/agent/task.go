package agent

import (
	"context"
	"strings"

	xerrors "AxiomHive-Agent/internal/errors"
)

// OutputFormat 约定任务产出的结构形式。
type OutputFormat string

const (
	FormatJSON       OutputFormat = "json"
	FormatText       OutputFormat = "text"
	FormatStructured OutputFormat = "structured"
)

// IsValidFormat 检查给定的输出格式是否为支持的枚举值。
func IsValidFormat(format OutputFormat) bool {
	switch format {
	case FormatJSON, FormatText, FormatStructured:
		return true
	default:
		return false
	}
}

// TaskConfig 是原子任务的静态配置，构造之后不再修改。
type TaskConfig struct {
	TaskID       string       `json:"task_id"`
	Description  string       `json:"description"`
	MaxTokens    int          `json:"max_tokens"`
	Temperature  float64      `json:"temperature"`
	BudgetLimit  float64      `json:"budget_limit,omitempty"`
	OutputFormat OutputFormat `json:"output_format"`
}

// NewTaskConfig 创建带默认值的任务配置。
func NewTaskConfig(taskID, description string) TaskConfig {
	return TaskConfig{
		TaskID:       taskID,
		Description:  description,
		MaxTokens:    1000,
		Temperature:  0.7,
		OutputFormat: FormatJSON,
	}
}

// Validate 校验配置自身的一致性。
func (c TaskConfig) Validate() error {
	if strings.TrimSpace(c.TaskID) == "" {
		return xerrors.New(xerrors.CodeTaskValidation, "task_id 不能为空")
	}
	if strings.TrimSpace(c.Description) == "" {
		return xerrors.New(xerrors.CodeTaskValidation, "description 不能为空",
			xerrors.WithMetadata("task_id", c.TaskID))
	}
	if c.MaxTokens <= 0 {
		return xerrors.New(xerrors.CodeTaskValidation, "max_tokens 必须为正数",
			xerrors.WithMetadata("task_id", c.TaskID))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return xerrors.New(xerrors.CodeTaskValidation, "temperature 必须位于 [0,2] 区间",
			xerrors.WithMetadata("task_id", c.TaskID))
	}
	if c.BudgetLimit < 0 {
		return xerrors.New(xerrors.CodeTaskValidation, "budget_limit 不能为负",
			xerrors.WithMetadata("task_id", c.TaskID))
	}
	if !IsValidFormat(c.OutputFormat) {
		return xerrors.New(xerrors.CodeTaskValidation, "不支持的 output_format",
			xerrors.WithMetadata("task_id", c.TaskID))
	}
	return nil
}

// TokenUsage 是任务一次执行上报的真实 token 消耗。
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Outcome 是任务一次执行的结构化产出。
// Usage 为空表示任务无法上报真实消耗，由执行器按默认估算记账。
type Outcome struct {
	Output any         `json:"output"`
	Usage  *TokenUsage `json:"usage,omitempty"`
}

// Task 约定了可被执行器调度的原子任务能力。任务必须无状态且可安全地
// 重复执行：Execute 不得依赖任何先前调用留下的内部状态。
type Task interface {
	// Config 返回任务的静态配置。
	Config() TaskConfig
	// Validate 在注册阶段做自检，返回非 nil 时任务不会入队。
	Validate() error
	// Execute 执行任务并返回结构化产出，params 为本次调用注入的参数。
	Execute(ctx context.Context, params map[string]any) (*Outcome, error)
}

// InputValidator 是任务的可选能力，用于单次执行前校验调用参数。
type InputValidator interface {
	ValidateInput(params map[string]any) error
}

// ExecFunc 是任务执行逻辑的函数形式。
type ExecFunc func(ctx context.Context, params map[string]any) (*Outcome, error)

// FuncTask 用闭包实现 Task，是调用方扩展任务类型的最短路径。
type FuncTask struct {
	conf    TaskConfig
	fn      ExecFunc
	inputFn func(params map[string]any) error
}

// NewFuncTask 创建闭包任务。
func NewFuncTask(conf TaskConfig, fn ExecFunc) *FuncTask {
	return &FuncTask{conf: conf, fn: fn}
}

// WithInputValidator 为闭包任务附加参数校验逻辑。
func (t *FuncTask) WithInputValidator(fn func(params map[string]any) error) *FuncTask {
	t.inputFn = fn
	return t
}

// Config 实现 Task 接口。
func (t *FuncTask) Config() TaskConfig {
	return t.conf
}

// Validate 实现 Task 接口。
func (t *FuncTask) Validate() error {
	if t.fn == nil {
		return xerrors.New(xerrors.CodeTaskValidation, "任务缺少执行函数",
			xerrors.WithMetadata("task_id", t.conf.TaskID))
	}
	return t.conf.Validate()
}

// Execute 实现 Task 接口。
func (t *FuncTask) Execute(ctx context.Context, params map[string]any) (*Outcome, error) {
	return t.fn(ctx, params)
}

// ValidateInput 实现 InputValidator；未附加校验逻辑时放行所有参数。
func (t *FuncTask) ValidateInput(params map[string]any) error {
	if t.inputFn == nil {
		return nil
	}
	return t.inputFn(params)
}

var (
	_ Task           = (*FuncTask)(nil)
	_ InputValidator = (*FuncTask)(nil)
)
