package rag_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"docqa/internal/domain/rag"
	"docqa/internal/provider"
)

var errBoom = errors.New("boom")

// keywordEmbedder 每个维度统计一个关键词出现次数
type keywordEmbedder struct {
	vocab []string
	calls atomic.Int32
}

func newKeywordEmbedder() *keywordEmbedder {
	return &keywordEmbedder{vocab: []string{"refund", "shipping", "warranty", "battery"}}
}

func (e *keywordEmbedder) Dims() int { return len(e.vocab) }

func (e *keywordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *keywordEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(e.vocab))
	for i, w := range e.vocab {
		v[i] = float32(strings.Count(lower, w))
	}
	return v
}

// reversedEmbedder 返回顺序颠倒的向量
type reversedEmbedder struct{ *keywordEmbedder }

func (e reversedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := e.keywordEmbedder.Embed(ctx, texts)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, err
}

// switchEmbedder 可切换失败模式
type switchEmbedder struct {
	*keywordEmbedder
	fail      atomic.Bool
	dropOne   atomic.Bool
	wrongDims atomic.Bool
}

func (e *switchEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.fail.Load() {
		return nil, errBoom
	}
	out, _ := e.keywordEmbedder.Embed(ctx, texts)
	if e.dropOne.Load() && len(out) > 0 {
		out = out[:len(out)-1]
	}
	if e.wrongDims.Load() && len(out) > 0 {
		out[0] = append(out[0], 1)
	}
	return out, nil
}

// textParser 把字节原样当作文本
type textParser struct {
	ft   rag.FileType
	fail bool
}

func (p textParser) FileType() rag.FileType { return p.ft }

func (p textParser) Parse(data []byte) (string, error) {
	if p.fail {
		return "", errBoom
	}
	return string(data), nil
}

func textParsers(fail bool) *rag.ParserRegistry {
	reg := rag.NewParserRegistry()
	reg.Register(textParser{ft: rag.FileTypePDF, fail: fail})
	reg.Register(textParser{ft: rag.FileTypeDOCX, fail: fail})
	return reg
}

// failingChunkStore 写入或查询时返回错误
type failingChunkStore struct{}

func (failingChunkStore) SaveChunks(ctx context.Context, chunks []rag.ChunkRecord) error {
	return errBoom
}

func (failingChunkStore) Search(ctx context.Context, q rag.VectorQuery) ([]rag.RetrievedChunk, error) {
	return nil, errBoom
}

func (failingChunkStore) SoftDeleteByFile(ctx context.Context, fileID string) error { return nil }

// staticChunkStore 原样返回预设结果，用于验证排序/阈值兜底
type staticChunkStore struct {
	results []rag.RetrievedChunk
	last    rag.VectorQuery
}

func (s *staticChunkStore) SaveChunks(ctx context.Context, chunks []rag.ChunkRecord) error {
	return nil
}

func (s *staticChunkStore) Search(ctx context.Context, q rag.VectorQuery) ([]rag.RetrievedChunk, error) {
	s.last = q
	return append([]rag.RetrievedChunk(nil), s.results...), nil
}

func (s *staticChunkStore) SoftDeleteByFile(ctx context.Context, fileID string) error { return nil }

// mapCache 同步内存缓存，条目按代数隔离
type mapCache struct {
	mu          sync.Mutex
	gen         int64
	entries     map[string][]rag.RetrievedChunk
	invalidated int
	beforeSet   func() // 可选：Set 写入前调用，用于制造竞争窗口
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]rag.RetrievedChunk)}
}

func (c *mapCache) key(gen int64, req *rag.RetrieveRequest) string {
	return fmt.Sprintf("%d|%s|%s", gen, req.Query, strings.Join(req.FileIDs, ","))
}

func (c *mapCache) Generation(ctx context.Context) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, true
}

func (c *mapCache) Get(ctx context.Context, gen int64, req *rag.RetrieveRequest) ([]rag.RetrievedChunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[c.key(gen, req)]
	return v, ok
}

func (c *mapCache) Set(ctx context.Context, gen int64, req *rag.RetrieveRequest, result []rag.RetrievedChunk) {
	if c.beforeSet != nil {
		c.beforeSet()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(gen, req)] = result
}

func (c *mapCache) InvalidateAll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = make(map[string][]rag.RetrievedChunk)
	c.invalidated++
}

// cached 按当前代数查询
func (c *mapCache) cached(req *rag.RetrieveRequest) bool {
	gen, _ := c.Generation(context.Background())
	_, ok := c.Get(context.Background(), gen, req)
	return ok
}

func (c *mapCache) invalidations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidated
}

// gatedEmbedder 第一次 Embed 时通知 entered 并等待 release，之后直接放行
type gatedEmbedder struct {
	*keywordEmbedder
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGatedEmbedder() *gatedEmbedder {
	e := &gatedEmbedder{
		keywordEmbedder: newKeywordEmbedder(),
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	e.armed.Store(true)
	return e
}

func (e *gatedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.armed.CompareAndSwap(true, false) {
		close(e.entered)
		<-e.release
	}
	return e.keywordEmbedder.Embed(ctx, texts)
}

// recordingLLM 记录请求并回放固定 token
type recordingLLM struct {
	tokens []string
	err    error
	calls  atomic.Int32
	last   *provider.CompletionRequest
}

func (l *recordingLLM) Name() string { return "recording" }

func (l *recordingLLM) StreamComplete(ctx context.Context, req *provider.CompletionRequest) (<-chan provider.CompletionChunk, <-chan error) {
	l.calls.Add(1)
	l.last = req
	chunkCh := make(chan provider.CompletionChunk, len(l.tokens))
	errCh := make(chan error, 1)
	for _, t := range l.tokens {
		chunkCh <- provider.CompletionChunk{Delta: t}
	}
	if l.err != nil {
		errCh <- l.err
	}
	close(chunkCh)
	close(errCh)
	return chunkCh, errCh
}

func drain(chunkCh <-chan provider.CompletionChunk, errCh <-chan error) (string, error) {
	var sb strings.Builder
	for c := range chunkCh {
		sb.WriteString(c.Delta)
	}
	return sb.String(), <-errCh
}
