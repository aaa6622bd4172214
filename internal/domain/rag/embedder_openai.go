package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	applog "docqa/internal/platform/log"
)

// OpenAIEmbedder 调用 OpenAI 兼容的 /embeddings 接口
//
// 每个批次的结果按 index 回填并逐条校验，缺失、重复或维度不符都返回 ErrEmbedding，
// 因此 Embed 成功时第 i 个向量一定对应第 i 段文本。
type OpenAIEmbedder struct {
	endpoint string
	apiKey   string
	model    string
	dims     int
	batch    int
	sendDims bool // text-embedding-3 系列支持 dimensions 参数
	client   *http.Client
}

// OpenAIEmbedderConfig 配置
type OpenAIEmbedderConfig struct {
	BaseURL string // 默认 https://api.openai.com/v1
	APIKey  string
	Model   string // 默认 text-embedding-3-small
	Dims    int
	Batch   int // 单次请求最多文本数
}

// NewOpenAIEmbedder 创建 OpenAI 兼容 Embedder
func NewOpenAIEmbedder(cfg OpenAIEmbedderConfig) *OpenAIEmbedder {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	e := &OpenAIEmbedder{
		endpoint: base + "/embeddings",
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		dims:     cfg.Dims,
		batch:    cfg.Batch,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
	if e.model == "" {
		e.model = "text-embedding-3-small"
	}
	if e.dims <= 0 {
		e.dims = 1536
	}
	if e.batch <= 0 {
		e.batch = 64
	}
	e.sendDims = strings.HasPrefix(e.model, "text-embedding-3")
	return e
}

// Dims 返回向量维度
func (e *OpenAIEmbedder) Dims() int {
	return e.dims
}

// Embed 分批请求，结果顺序与输入一致
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, b := range batchRanges(len(texts), e.batch) {
		got, err := e.embedBatch(ctx, texts[b.start:b.end])
		if err != nil {
			return nil, fmt.Errorf("texts %d-%d: %w", b.start, b.end, err)
		}
		vectors = append(vectors, got...)
	}
	return vectors, nil
}

type openAIEmbeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// openAIErrorBody OpenAI 风格的错误响应
type openAIErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()

	payload := openAIEmbeddingRequest{Model: e.model, Input: texts, EncodingFormat: "float"}
	if e.sendDims {
		payload.Dimensions = e.dims
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, openAIStatusError(resp)
	}

	var parsed openAIEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrEmbedding, err)
	}

	vectors := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		switch {
		case d.Index < 0 || d.Index >= len(texts):
			return nil, fmt.Errorf("%w: index %d out of range for %d inputs", ErrEmbedding, d.Index, len(texts))
		case vectors[d.Index] != nil:
			return nil, fmt.Errorf("%w: duplicate embedding for input %d", ErrEmbedding, d.Index)
		case len(d.Embedding) != e.dims:
			return nil, fmt.Errorf("%w: input %d has %d dims, want %d", ErrEmbedding, d.Index, len(d.Embedding), e.dims)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%w: no embedding returned for input %d", ErrEmbedding, i)
		}
	}

	applog.Debug("[RAG/Embedder] Batch embedded",
		"count", len(texts),
		"model", e.model,
		"tokens", parsed.Usage.TotalTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return vectors, nil
}

// openAIStatusError 优先使用响应里的 error.message
func openAIStatusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var eb openAIErrorBody
	if json.Unmarshal(raw, &eb) == nil && eb.Error.Message != "" {
		return fmt.Errorf("embedding API error (%d %s): %s", resp.StatusCode, eb.Error.Type, eb.Error.Message)
	}
	return fmt.Errorf("embedding API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
