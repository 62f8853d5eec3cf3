package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	xerrors "AxiomHive-Agent/internal/errors"
	"AxiomHive-Agent/internal/usage"
)

func newUsageTask(id string, prompt, completion int) *FuncTask {
	return NewFuncTask(NewTaskConfig(id, "测试任务 "+id),
		func(ctx context.Context, params map[string]any) (*Outcome, error) {
			return &Outcome{
				Output: map[string]any{"task": id},
				Usage:  &TokenUsage{PromptTokens: prompt, CompletionTokens: completion},
			}, nil
		})
}

func TestAddTaskRejectsInvalid(t *testing.T) {
	ag := New("validator")

	if err := ag.AddTask(nil); err == nil {
		t.Fatal("nil 任务应被拒绝")
	} else if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("期望 INVALID_ARGUMENT，实际 %s", xerrors.CodeOf(err))
	}

	bad := NewFuncTask(TaskConfig{TaskID: "", Description: "缺少 ID", MaxTokens: 100, Temperature: 0.5, OutputFormat: FormatJSON},
		func(ctx context.Context, params map[string]any) (*Outcome, error) { return &Outcome{}, nil })
	if err := ag.AddTask(bad); err == nil {
		t.Fatal("非法配置应被拒绝")
	} else if xerrors.CodeOf(err) != xerrors.CodeTaskValidation {
		t.Fatalf("期望 TASK_VALIDATION_FAILED，实际 %s", xerrors.CodeOf(err))
	}
	if ag.TaskCount() != 0 {
		t.Fatalf("校验失败后队列应保持为空，实际 %d", ag.TaskCount())
	}

	if err := ag.AddTask(newUsageTask("ok", 10, 5)); err != nil {
		t.Fatalf("合法任务应入队: %v", err)
	}
	if ag.TaskCount() != 1 {
		t.Fatalf("期望队列中有 1 个任务，实际 %d", ag.TaskCount())
	}
}

func TestRunExecutesAllTasks(t *testing.T) {
	ag := New("runner", WithCostPer1KTokens(0.002))
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("task-%d", i)
		if err := ag.AddTask(newUsageTask(id, 100, 50)); err != nil {
			t.Fatalf("注册任务失败: %v", err)
		}
	}

	result := ag.Run(context.Background())
	if result.Status != RunCompleted {
		t.Fatalf("期望 completed，实际 %s", result.Status)
	}
	if len(result.Results) != 3 {
		t.Fatalf("期望 3 条结果，实际 %d", len(result.Results))
	}
	for i, outcome := range result.Results {
		if outcome.TaskID != fmt.Sprintf("task-%d", i) {
			t.Fatalf("结果顺序应与注册顺序一致: %+v", result.Results)
		}
		if outcome.Status != TaskStatusSuccess {
			t.Fatalf("任务 %s 应成功: %+v", outcome.TaskID, outcome)
		}
	}
	if result.Usage.Calls != 3 || result.Usage.TotalTokens != 450 {
		t.Fatalf("用量统计错误: %+v", result.Usage)
	}
}

func TestRunHaltsWhenBudgetExhausted(t *testing.T) {
	// 预算只够第一个任务：0.15 成本的任务会在第二次检查时触发停机。
	ag := New("halting",
		WithBudgetLimit(0.10),
		WithCostPer1KTokens(1.0),
	)

	var callbacks int
	var callbackSnap usage.Snapshot
	ag.SetBudgetCallback(func(snap usage.Snapshot) {
		callbacks++
		callbackSnap = snap
	})

	for i := 0; i < 3; i++ {
		if err := ag.AddTask(newUsageTask(fmt.Sprintf("task-%d", i), 100, 50)); err != nil {
			t.Fatalf("注册任务失败: %v", err)
		}
	}

	result := ag.Run(context.Background())
	if result.Status != RunHalted {
		t.Fatalf("期望 halted，实际 %s", result.Status)
	}
	if len(result.Results) != 1 {
		t.Fatalf("预算耗尽前应只完成 1 个任务，实际 %d", len(result.Results))
	}
	if callbacks != 1 {
		t.Fatalf("预算回调应恰好触发一次，实际 %d", callbacks)
	}
	if callbackSnap.EstimatedCost < 0.10 {
		t.Fatalf("回调快照应反映超支状态: %+v", callbackSnap)
	}
	if result.Usage.BudgetRemaining == nil || *result.Usage.BudgetRemaining > 0 {
		t.Fatalf("预算剩余应为非正值: %+v", result.Usage)
	}
}

func TestRunIsolatesTaskFailures(t *testing.T) {
	ag := New("isolation")

	failing := NewFuncTask(NewTaskConfig("boom", "必然失败"),
		func(ctx context.Context, params map[string]any) (*Outcome, error) {
			return nil, fmt.Errorf("下游超时")
		})
	panicking := NewFuncTask(NewTaskConfig("panic", "触发 panic"),
		func(ctx context.Context, params map[string]any) (*Outcome, error) {
			panic("意外状态")
		})

	for _, task := range []Task{newUsageTask("first", 10, 5), failing, panicking, newUsageTask("last", 10, 5)} {
		if err := ag.AddTask(task); err != nil {
			t.Fatalf("注册任务失败: %v", err)
		}
	}

	result := ag.Run(context.Background())
	if result.Status != RunCompleted {
		t.Fatalf("任务失败不应中断批次，实际 %s", result.Status)
	}
	if len(result.Results) != 4 {
		t.Fatalf("期望 4 条结果，实际 %d", len(result.Results))
	}
	if result.Results[1].Status != TaskStatusFailed || result.Results[1].Error == "" {
		t.Fatalf("失败任务应带错误信息: %+v", result.Results[1])
	}
	if result.Results[2].Status != TaskStatusFailed || !strings.Contains(result.Results[2].Error, "panic") {
		t.Fatalf("panic 应被转换为失败结果: %+v", result.Results[2])
	}
	if result.Results[3].Status != TaskStatusSuccess {
		t.Fatalf("后续任务应继续执行: %+v", result.Results[3])
	}
	// 只有两个成功任务记账。
	if result.Usage.Calls != 2 {
		t.Fatalf("失败任务不应记账: %+v", result.Usage)
	}
}

func TestExecuteTaskPaths(t *testing.T) {
	ag := New("single", WithCostPer1KTokens(0.002))

	task := newUsageTask("one-shot", 100, 50).WithInputValidator(func(params map[string]any) error {
		if _, ok := params["required"]; !ok {
			return xerrors.New(xerrors.CodeInvalidArgument, "缺少 required 参数")
		}
		return nil
	})

	report := ag.ExecuteTask(context.Background(), task, true, nil)
	if report.Status != ReportStatusError {
		t.Fatalf("参数校验失败应返回 error 报告: %+v", report)
	}
	if report.WithinBudget != nil {
		t.Fatalf("参数校验失败不应触发预算判断: %+v", report)
	}
	if report.Usage.Calls != 0 {
		t.Fatalf("校验失败不应记账: %+v", report.Usage)
	}

	report = ag.ExecuteTask(context.Background(), task, true, map[string]any{"required": true})
	if report.Status != ReportStatusSuccess {
		t.Fatalf("期望成功报告: %+v", report)
	}
	if report.WithinBudget == nil || !*report.WithinBudget {
		t.Fatalf("成功执行应标记在预算内: %+v", report)
	}
	if report.Usage.TotalTokens != 150 || report.Usage.Calls != 1 {
		t.Fatalf("用量未正确累计: %+v", report.Usage)
	}

	report = ag.ExecuteTask(context.Background(), task, false, map[string]any{"required": true})
	if report.Status != ReportStatusSuccess {
		t.Fatalf("期望成功报告: %+v", report)
	}
	if report.Usage.Calls != 1 {
		t.Fatalf("关闭记账时计数不应增长: %+v", report.Usage)
	}
}

func TestExecuteTaskBudgetRefusal(t *testing.T) {
	ag := New("broke", WithBudgetLimit(0.01), WithCostPer1KTokens(1.0))

	var callbacks int
	ag.SetBudgetCallback(func(usage.Snapshot) { callbacks++ })

	// 第一次执行耗尽预算。
	report := ag.ExecuteTask(context.Background(), newUsageTask("spender", 100, 50), true, nil)
	if report.Status != ReportStatusSuccess {
		t.Fatalf("首次执行应成功: %+v", report)
	}

	report = ag.ExecuteTask(context.Background(), newUsageTask("refused", 1, 1), true, nil)
	if report.Status != ReportStatusError {
		t.Fatalf("预算耗尽后应拒绝执行: %+v", report)
	}
	if report.WithinBudget == nil || *report.WithinBudget {
		t.Fatalf("拒绝执行时 within_budget 应为 false: %+v", report)
	}
	if callbacks != 1 {
		t.Fatalf("预算回调应触发一次，实际 %d", callbacks)
	}
	if report.Usage.Calls != 1 {
		t.Fatalf("被拒绝的任务不应记账: %+v", report.Usage)
	}
}

func TestRunResultJSONShape(t *testing.T) {
	ag := New("codec", WithCostPer1KTokens(0.002))
	if err := ag.AddTask(newUsageTask("only", 100, 50)); err != nil {
		t.Fatalf("注册任务失败: %v", err)
	}

	result := ag.Run(context.Background())
	encoded, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("反序列化失败: %v", err)
	}
	for _, key := range []string{"agent", "status", "results", "usage"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("结果缺少字段 %s: %s", key, encoded)
		}
	}
	usagePart, ok := decoded["usage"].(map[string]any)
	if !ok {
		t.Fatalf("usage 字段结构错误: %s", encoded)
	}
	for _, key := range []string{"total_tokens", "prompt_tokens", "completion_tokens", "estimated_cost", "calls", "budget_limit", "budget_remaining"} {
		if _, ok := usagePart[key]; !ok {
			t.Fatalf("usage 缺少字段 %s: %s", key, encoded)
		}
	}
}

func TestDefaultUsageEstimation(t *testing.T) {
	silent := NewFuncTask(NewTaskConfig("silent", "不上报用量"),
		func(ctx context.Context, params map[string]any) (*Outcome, error) {
			return &Outcome{Output: "ok"}, nil
		})

	ag := New("estimator", WithDefaultUsage(30, 20))
	if err := ag.AddTask(silent); err != nil {
		t.Fatalf("注册任务失败: %v", err)
	}
	result := ag.Run(context.Background())
	if result.Usage.PromptTokens != 30 || result.Usage.CompletionTokens != 20 {
		t.Fatalf("应使用配置的默认估算: %+v", result.Usage)
	}

	fallback := New("fallback")
	conf := NewTaskConfig("split", "按上限对半估算")
	conf.MaxTokens = 1001
	task := NewFuncTask(conf, func(ctx context.Context, params map[string]any) (*Outcome, error) {
		return &Outcome{Output: "ok"}, nil
	})
	if err := fallback.AddTask(task); err != nil {
		t.Fatalf("注册任务失败: %v", err)
	}
	result = fallback.Run(context.Background())
	if result.Usage.PromptTokens != 500 || result.Usage.CompletionTokens != 501 {
		t.Fatalf("应按 MaxTokens 对半拆分: %+v", result.Usage)
	}
}
