package rag

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	applog "docqa/internal/platform/log"
)

// ResilientEmbedder 为 Embedder 增加限流与重试
//
// Embed 是幂等的，失败后整批重试；ctx 取消时立即返回。
type ResilientEmbedder struct {
	inner      Embedder
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

// NewResilientEmbedder rps<=0 表示不限流
func NewResilientEmbedder(inner Embedder, rps float64, maxRetries int) *ResilientEmbedder {
	var limiter *rate.Limiter
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &ResilientEmbedder{
		inner:      inner,
		limiter:    limiter,
		maxRetries: maxRetries,
		backoff:    500 * time.Millisecond,
	}
}

// Dims 返回向量维度
func (e *ResilientEmbedder) Dims() int {
	return e.inner.Dims()
}

// Embed 带重试的批量向量生成
func (e *ResilientEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			wait := e.backoff * time.Duration(1<<(attempt-1))
			applog.Warn("[RAG/Embedder] Retrying embedding", "attempt", attempt, "wait_ms", wait.Milliseconds(), "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		vectors, err := e.inner.Embed(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("embedding failed after %d attempts: %w", e.maxRetries+1, lastErr)
}
