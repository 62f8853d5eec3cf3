package local

import (
	"context"
	"strings"
	"testing"

	"AxiomHive-Agent/internal/llm"
)

func TestCompleteIsDeterministic(t *testing.T) {
	client := NewClient("")
	ctx := context.Background()

	first, err := client.Complete(ctx, llm.Request{Prompt: "总结这份报告"})
	if err != nil {
		t.Fatalf("补全失败: %v", err)
	}
	second, err := client.Complete(ctx, llm.Request{Prompt: "总结这份报告"})
	if err != nil {
		t.Fatalf("补全失败: %v", err)
	}
	if first.Text != second.Text || first.PromptTokens != second.PromptTokens {
		t.Fatalf("相同输入应得到相同输出: %+v vs %+v", first, second)
	}
	if !strings.Contains(first.Text, "总结这份报告") {
		t.Fatalf("回复应包含输入: %s", first.Text)
	}
	if first.Model != "axiom-local" {
		t.Fatalf("缺省模型名错误: %s", first.Model)
	}
	if first.PromptTokens <= 0 || first.CompletionTokens <= 0 {
		t.Fatalf("token 估算应为正数: %+v", first)
	}
}

func TestCompleteRejectsEmptyPrompt(t *testing.T) {
	client := NewClient("custom")
	if _, err := client.Complete(context.Background(), llm.Request{Prompt: "   "}); err == nil {
		t.Fatal("空 prompt 应报错")
	}
}

func TestCompleteHonorsMaxTokens(t *testing.T) {
	client := NewClient("")
	resp, err := client.Complete(context.Background(), llm.Request{
		Prompt:    strings.Repeat("长提示词", 100),
		MaxTokens: 5,
	})
	if err != nil {
		t.Fatalf("补全失败: %v", err)
	}
	if resp.CompletionTokens > 5 {
		t.Fatalf("completion token 应被上限截断: %d", resp.CompletionTokens)
	}
}

func TestCompleteRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := NewClient("")
	if _, err := client.Complete(ctx, llm.Request{Prompt: "hello"}); err == nil {
		t.Fatal("已取消的上下文应报错")
	}
}
