package local

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	xerrors "AxiomHive-Agent/internal/errors"
	"AxiomHive-Agent/internal/llm"
)

const defaultModelName = "axiom-local"

// Client 是确定性的本地补全实现：不访问任何外部推理服务，
// 回复由输入推导，token 消耗按字符数近似折算。用于离线演示与测试。
type Client struct {
	model string
}

// NewClient 创建本地补全客户端。
func NewClient(model string) *Client {
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultModelName
	}
	return &Client{model: model}
}

// Complete 实现 llm.Client。
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "prompt 不能为空")
	}

	reply := fmt.Sprintf("已完成: %s", prompt)
	completionTokens := estimateTokens(reply)
	if req.MaxTokens > 0 && completionTokens > req.MaxTokens {
		completionTokens = req.MaxTokens
	}
	return &llm.Response{
		Text:             reply,
		Model:            c.model,
		PromptTokens:     estimateTokens(prompt),
		CompletionTokens: completionTokens,
	}, nil
}

// estimateTokens 按每 4 个字符约 1 个 token 的经验值估算。
func estimateTokens(text string) int {
	count := utf8.RuneCountInString(text)
	if count == 0 {
		return 0
	}
	return (count + 3) / 4
}

var _ llm.Client = (*Client)(nil)
