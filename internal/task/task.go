package task

import (
	stdErrors "errors"

	"AxiomHive-Agent/internal/agent"
	xerrors "AxiomHive-Agent/internal/errors"
)

// Status 表示任务申请在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ExecutionRecord 保存一次执行的结构化产出与本次记账的消耗。
type ExecutionRecord struct {
	Output           any     `json:"output,omitempty"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	EstimatedCost    float64 `json:"estimated_cost"`
	WithinBudget     bool    `json:"within_budget"`
}

// Submission 描述了一条通过队列异步执行的任务申请。
// 每条申请只有一次执行机会：失败即为终态，不做重试。
type Submission struct {
	ID           string             `json:"id"`
	Description  string             `json:"description"`
	Params       map[string]any     `json:"params,omitempty"`
	MaxTokens    int                `json:"max_tokens"`
	Temperature  float64            `json:"temperature"`
	OutputFormat agent.OutputFormat `json:"output_format"`
	TrackUsage   bool               `json:"track_usage"`
	Status       Status             `json:"status"`
	LastError    string             `json:"last_error,omitempty"`
	ErrorCode    string             `json:"error_code,omitempty"`
	Result       *ExecutionRecord   `json:"result,omitempty"`
	CreatedAt    int64              `json:"created_at"`
	UpdatedAt    int64              `json:"updated_at"`
}

var (
	// ErrTaskNotFound 表示指定的任务申请不存在。
	ErrTaskNotFound = xerrors.New(CodeTaskNotFound, "task not found")
	// ErrTaskConflict 表示任务申请在当前状态下无法进行所请求的操作。
	ErrTaskConflict = xerrors.New(CodeTaskConflict, "task conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrTaskCompleted 表示任务申请已经成功完成。
	ErrTaskCompleted = xerrors.New(CodeTaskCompleted, "task already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrTaskTerminal 表示任务申请已经失败；单次执行策略下失败即终态。
	ErrTaskTerminal = xerrors.New(CodeTaskTerminal, "task already failed", xerrors.WithSeverity(xerrors.SeverityInfo))
)

const (
	CodeTaskNotFound   xerrors.Code = "TASK_NOT_FOUND"
	CodeTaskConflict   xerrors.Code = "TASK_CONFLICT"
	CodeTaskCompleted  xerrors.Code = "TASK_COMPLETED"
	CodeTaskTerminal   xerrors.Code = "TASK_TERMINAL"
	CodeTaskPublish    xerrors.Code = "TASK_PUBLISH_FAILED"
	CodeTaskProcessing xerrors.Code = "TASK_PROCESSING_FAILED"
)

func init() {
	xerrors.Register(CodeTaskNotFound, xerrors.Attributes{
		Message:  "task not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskConflict, xerrors.Attributes{
		Message:  "task conflict",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeTaskCompleted, xerrors.Attributes{
		Message:  "task already completed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskTerminal, xerrors.Attributes{
		Message:  "task already failed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskPublish, xerrors.Attributes{
		Message:   "failed to publish task",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeTaskProcessing, xerrors.Attributes{
		Message:  "task execution failed",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
	})
}

// IsTerminalClaim 判断 Claim 返回的错误是否意味着任务无需再处理。
func IsTerminalClaim(err error) bool {
	return stdErrors.Is(err, ErrTaskNotFound) ||
		stdErrors.Is(err, ErrTaskCompleted) ||
		stdErrors.Is(err, ErrTaskTerminal)
}

// IsValidStatus 检查给定的任务状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

func cloneParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	cloned := make(map[string]any, len(params))
	for key, value := range params {
		cloned[key] = value
	}
	return cloned
}
