package llm

import "context"

// Request 描述一次补全调用的上下文。
type Request struct {
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Response 是补全调用的结构化输出，附带服务端上报的真实 token 消耗。
type Response struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Client 定义了调用补全服务的统一接口。
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
