package metrics

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestObserveTask 验证任务指标按最终状态与 token 种类累加。
func TestObserveTask(t *testing.T) {
	statusBefore := testutil.ToFloat64(tasksTotal.WithLabelValues("succeeded"))
	promptBefore := testutil.ToFloat64(tokensTotal.WithLabelValues("prompt"))
	completionBefore := testutil.ToFloat64(tokensTotal.WithLabelValues("completion"))
	costBefore := testutil.ToFloat64(estimatedCostTotal)

	ObserveTask("succeeded", 120, 80, 0.0004)

	if got := testutil.ToFloat64(tasksTotal.WithLabelValues("succeeded")); got != statusBefore+1 {
		t.Fatalf("任务计数错误: got %v, want %v", got, statusBefore+1)
	}
	if got := testutil.ToFloat64(tokensTotal.WithLabelValues("prompt")); got != promptBefore+120 {
		t.Fatalf("prompt token 计数错误: got %v", got)
	}
	if got := testutil.ToFloat64(tokensTotal.WithLabelValues("completion")); got != completionBefore+80 {
		t.Fatalf("completion token 计数错误: got %v", got)
	}
	if got := testutil.ToFloat64(estimatedCostTotal); math.Abs(got-(costBefore+0.0004)) > 1e-12 {
		t.Fatalf("成本计数错误: got %v", got)
	}
}

// TestObserveTaskIgnoresNonPositive 验证零值与负值不会写入计数器。
func TestObserveTaskIgnoresNonPositive(t *testing.T) {
	promptBefore := testutil.ToFloat64(tokensTotal.WithLabelValues("prompt"))
	costBefore := testutil.ToFloat64(estimatedCostTotal)

	ObserveTask("failed", 0, -5, 0)

	if got := testutil.ToFloat64(tokensTotal.WithLabelValues("prompt")); got != promptBefore {
		t.Fatalf("零 token 不应累加: got %v, want %v", got, promptBefore)
	}
	if got := testutil.ToFloat64(estimatedCostTotal); got != costBefore {
		t.Fatalf("零成本不应累加: got %v, want %v", got, costBefore)
	}
}

// TestObserveBudgetHalt 验证预算中断计数。
func TestObserveBudgetHalt(t *testing.T) {
	before := testutil.ToFloat64(budgetHaltsTotal)
	ObserveBudgetHalt()
	ObserveBudgetHalt()
	if got := testutil.ToFloat64(budgetHaltsTotal); got != before+2 {
		t.Fatalf("预算中断计数错误: got %v, want %v", got, before+2)
	}
}
