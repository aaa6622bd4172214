package bootstrap

import (
	"context"
	"fmt"
	"io"

	"docqa/internal/domain/rag"
	"docqa/internal/platform/config"
	applog "docqa/internal/platform/log"
)

// NewEmbedder 按配置创建 Embedder，并包上限流与重试
func NewEmbedder(ctx context.Context, cfg *config.AppConfig) (rag.Embedder, io.Closer, error) {
	ragCfg := &cfg.RAG

	var (
		inner  rag.Embedder
		closer io.Closer
	)
	switch ragCfg.EmbeddingProvider {
	case "openai":
		inner = rag.NewOpenAIEmbedder(rag.OpenAIEmbedderConfig{
			BaseURL: cfg.OpenAI.BaseURL,
			APIKey:  cfg.OpenAI.APIKey,
			Model:   ragCfg.EmbeddingModel,
			Dims:    ragCfg.EmbeddingDims,
			Batch:   ragCfg.EmbeddingBatchSize,
		})
	case "gemini":
		g, err := rag.NewGeminiEmbedder(ctx, rag.GeminiEmbedderConfig{
			APIKey: cfg.Gemini.APIKey,
			Model:  ragCfg.EmbeddingModel,
			Dims:   ragCfg.EmbeddingDims,
			Batch:  ragCfg.EmbeddingBatchSize,
		})
		if err != nil {
			return nil, nil, err
		}
		inner, closer = g, g
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider %q", ragCfg.EmbeddingProvider)
	}

	applog.Infof("✅ Embedder initialized (provider: %s, model: %s, dims: %d, rps: %g, retries: %d)",
		ragCfg.EmbeddingProvider, ragCfg.EmbeddingModel, inner.Dims(), ragCfg.EmbeddingRateLimit, ragCfg.EmbeddingMaxRetries)
	return rag.NewResilientEmbedder(inner, ragCfg.EmbeddingRateLimit, ragCfg.EmbeddingMaxRetries), closer, nil
}
