package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	applog "docqa/internal/platform/log"
)

// Retriever 检索引擎
type Retriever struct {
	store    ChunkStore
	embedder Embedder
	config   *Config
	cache    SearchCacheStore // 可选
}

// NewRetriever 创建检索引擎，embedder 必须与入库时一致
func NewRetriever(store ChunkStore, embedder Embedder, config *Config) *Retriever {
	return &Retriever{
		store:    store,
		embedder: embedder,
		config:   config,
	}
}

// SetCache 设置检索缓存
func (r *Retriever) SetCache(c SearchCacheStore) {
	r.cache = c
}

// Retrieve 返回与问题最相似的分块，按相似度倒序
func (r *Retriever) Retrieve(ctx context.Context, req *RetrieveRequest) ([]RetrievedChunk, error) {
	q := r.withDefaults(req)
	if q.Query == "" {
		return []RetrievedChunk{}, nil
	}

	// 代数在检索前读取，期间发生的失效会让本次写入落到旧代数下
	var gen int64
	useCache := false
	if r.cache != nil {
		gen, useCache = r.cache.Generation(ctx)
		if useCache {
			if cached, ok := r.cache.Get(ctx, gen, q); ok {
				return cached, nil
			}
		}
	}

	start := time.Now()

	vector, err := EmbedOne(ctx, r.embedder, q.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrRetrieval, ErrEmbedding, err)
	}

	matches, err := r.store.Search(ctx, VectorQuery{
		Vector:    vector,
		Threshold: q.Threshold,
		Limit:     q.Limit,
		FileIDs:   q.FileIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	result := rankMatches(matches, q.Threshold, q.Limit)

	applog.Info("[RAG] Retrieve",
		"query_chars", len(q.Query),
		"file_ids", len(q.FileIDs),
		"threshold", q.Threshold,
		"limit", q.Limit,
		"matches", len(result),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if useCache {
		r.cache.Set(ctx, gen, q, result)
	}

	return result, nil
}

// withDefaults 返回填充默认值后的请求副本
func (r *Retriever) withDefaults(req *RetrieveRequest) *RetrieveRequest {
	q := &RetrieveRequest{
		Query:     strings.TrimSpace(req.Query),
		Threshold: req.Threshold,
		Limit:     req.Limit,
	}
	if len(req.FileIDs) > 0 {
		q.FileIDs = append([]string(nil), req.FileIDs...)
	}
	if q.Threshold == 0 {
		q.Threshold = r.config.MatchThreshold
	}
	if q.Limit <= 0 {
		q.Limit = r.config.MatchCount
	}
	return q
}

// rankMatches 丢弃低于阈值的结果，稳定排序后截断
func rankMatches(matches []RetrievedChunk, threshold float64, limit int) []RetrievedChunk {
	out := make([]RetrievedChunk, 0, len(matches))
	for _, m := range matches {
		if m.Similarity >= threshold {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
