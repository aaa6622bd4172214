package provider

import (
	"context"
	"errors"
)

// Message LLM 对话消息
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// CompletionRequest LLM 补全请求
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

// CompletionChunk 流式输出的单个 chunk
type CompletionChunk struct {
	Delta        string `json:"delta"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// LLMProvider LLM 供应商接口
type LLMProvider interface {
	// Name 返回供应商名称
	Name() string

	// StreamComplete 流式补全，通过 channel 返回 chunks
	//
	// 两个 channel 在生成结束或 ctx 取消后都会关闭；errCh 最多产生一个错误。
	// ctx 超时以 context.DeadlineExceeded 报告，调用方主动取消不报告。
	StreamComplete(ctx context.Context, req *CompletionRequest) (<-chan CompletionChunk, <-chan error)
}

// StreamError 归一化流式生成的终止错误
//
// ctx 已结束时以 ctx.Err() 为准：取消返回 nil，超时返回 context.DeadlineExceeded。
func StreamError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.Canceled) {
			return nil
		}
		return ctxErr
	}
	return err
}
