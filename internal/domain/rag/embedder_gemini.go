package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	applog "docqa/internal/platform/log"
)

// GeminiEmbedder 通过 Google Generative AI 生成向量
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dims   int
	batch  int
}

// GeminiEmbedderConfig 配置
type GeminiEmbedderConfig struct {
	APIKey string
	Model  string // e.g. text-embedding-004
	Dims   int
	Batch  int // BatchEmbedContents 单次上限 100
}

// NewGeminiEmbedder 创建 Gemini Embedder
func NewGeminiEmbedder(ctx context.Context, cfg GeminiEmbedderConfig) (*GeminiEmbedder, error) {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	if cfg.Dims <= 0 {
		cfg.Dims = 768
	}
	if cfg.Batch <= 0 || cfg.Batch > 100 {
		cfg.Batch = 100
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiEmbedder{
		client: client,
		model:  cfg.Model,
		dims:   cfg.Dims,
		batch:  cfg.Batch,
	}, nil
}

// Dims 返回向量维度
func (e *GeminiEmbedder) Dims() int {
	return e.dims
}

// Close 释放底层连接
func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}

// Embed 批量生成向量，结果顺序与输入一致
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := e.client.EmbeddingModel(e.model)
	allVectors := make([][]float32, 0, len(texts))

	for _, br := range batchRanges(len(texts), e.batch) {
		start := time.Now()

		b := em.NewBatch()
		for _, t := range texts[br.start:br.end] {
			b.AddContent(genai.Text(t))
		}

		res, err := em.BatchEmbedContents(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("texts %d-%d: %w", br.start, br.end, err)
		}
		if len(res.Embeddings) != br.end-br.start {
			return nil, fmt.Errorf("%w: texts %d-%d: got %d embeddings", ErrEmbedding, br.start, br.end, len(res.Embeddings))
		}
		for j, emb := range res.Embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return nil, fmt.Errorf("%w: no embedding returned for input %d", ErrEmbedding, br.start+j)
			}
			allVectors = append(allVectors, emb.Values)
		}

		applog.Debug("[RAG/Embedder] Gemini batch embedded",
			"count", br.end-br.start,
			"model", e.model,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}

	return allVectors, nil
}
