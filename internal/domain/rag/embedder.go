package rag

import (
	"context"
	"fmt"
)

// ── Embedder 接口 ──────────────────────────────────────────────

// Embedder 向量生成接口
type Embedder interface {
	// Embed 将文本列表转为向量（batch）
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dims 返回向量维度
	Dims() int
}

// EmbedOne 生成单条文本的向量
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 vector, got %d", len(vectors))
	}
	return vectors[0], nil
}

// checkVectors 校验数量与维度，防止错位的向量被持久化
func checkVectors(vectors [][]float32, want, dims int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbedding, len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) != dims {
			return fmt.Errorf("%w: vector %d has %d dims, want %d", ErrEmbedding, i, len(v), dims)
		}
	}
	return nil
}

// batchRange 一个批次在输入中的 [start, end)
type batchRange struct{ start, end int }

// batchRanges 按 size 切分 n 条输入
func batchRanges(n, size int) []batchRange {
	if size <= 0 {
		size = n
	}
	var out []batchRange
	for start := 0; start < n; start += size {
		out = append(out, batchRange{start: start, end: min(start+size, n)})
	}
	return out
}
