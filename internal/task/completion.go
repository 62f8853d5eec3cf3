package task

import (
	"context"
	"fmt"
	"strings"

	"AxiomHive-Agent/internal/agent"
	xerrors "AxiomHive-Agent/internal/errors"
	"AxiomHive-Agent/internal/llm"
)

// CompletionTask 把一条任务申请包装为可调度的原子任务，执行时调用补全
// 服务并上报服务端返回的真实 token 消耗。prompt 从 params["prompt"] 读取，
// 缺省时退回任务描述。
type CompletionTask struct {
	conf   agent.TaskConfig
	client llm.Client
	model  string
}

var (
	_ agent.Task           = (*CompletionTask)(nil)
	_ agent.InputValidator = (*CompletionTask)(nil)
)

// NewCompletionTask 根据任务申请构造补全任务。
func NewCompletionTask(sub *Submission, client llm.Client, model string) *CompletionTask {
	conf := agent.TaskConfig{
		TaskID:       sub.ID,
		Description:  sub.Description,
		MaxTokens:    sub.MaxTokens,
		Temperature:  sub.Temperature,
		OutputFormat: sub.OutputFormat,
	}
	return &CompletionTask{conf: conf, client: client, model: model}
}

// Config 返回任务的静态配置。
func (t *CompletionTask) Config() agent.TaskConfig {
	return t.conf
}

// Validate 检查任务配置与补全客户端。
func (t *CompletionTask) Validate() error {
	if t.client == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "补全客户端未配置")
	}
	return t.conf.Validate()
}

// ValidateInput 要求 params["prompt"]（若提供）必须是非空字符串。
func (t *CompletionTask) ValidateInput(params map[string]any) error {
	raw, ok := params["prompt"]
	if !ok {
		return nil
	}
	prompt, ok := raw.(string)
	if !ok {
		return xerrors.New(xerrors.CodeInvalidArgument, "prompt 参数必须是字符串")
	}
	if strings.TrimSpace(prompt) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "prompt 参数不能为空")
	}
	return nil
}

// Execute 调用补全服务并按输出格式组织产出。
func (t *CompletionTask) Execute(ctx context.Context, params map[string]any) (*agent.Outcome, error) {
	prompt := t.conf.Description
	if raw, ok := params["prompt"]; ok {
		if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
			prompt = s
		}
	}

	resp, err := t.client.Complete(ctx, llm.Request{
		Prompt:      prompt,
		Model:       t.model,
		MaxTokens:   t.conf.MaxTokens,
		Temperature: t.conf.Temperature,
	})
	if err != nil {
		return nil, err
	}

	var output any
	switch t.conf.OutputFormat {
	case agent.FormatText:
		output = resp.Text
	case agent.FormatStructured:
		output = map[string]any{
			"text":              resp.Text,
			"model":             resp.Model,
			"prompt_tokens":     resp.PromptTokens,
			"completion_tokens": resp.CompletionTokens,
		}
	default:
		output = map[string]any{
			"text":  resp.Text,
			"model": resp.Model,
		}
	}
	return &agent.Outcome{
		Output: output,
		Usage: &agent.TokenUsage{
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.CompletionTokens,
		},
	}, nil
}

// String 便于日志打印。
func (t *CompletionTask) String() string {
	return fmt.Sprintf("completion[%s]", t.conf.TaskID)
}
