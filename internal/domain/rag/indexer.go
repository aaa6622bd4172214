package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	applog "docqa/internal/platform/log"
)

// Indexer 文档入库 Pipeline：保存原文 → 解析 → 分块 → 向量化 → 持久化
type Indexer struct {
	docs     DocumentRepository
	chunks   ChunkStore
	blobs    BlobStore
	embedder Embedder
	chunker  *Chunker
	parsers  *ParserRegistry
	cache    SearchCacheStore // 可选：入库/删除后清缓存
	now      func() time.Time
}

// NewIndexer 创建入库 Pipeline
func NewIndexer(docs DocumentRepository, chunks ChunkStore, blobs BlobStore, embedder Embedder, cfg *Config) (*Indexer, error) {
	chunker, err := NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	return &Indexer{
		docs:     docs,
		chunks:   chunks,
		blobs:    blobs,
		embedder: embedder,
		chunker:  chunker,
		parsers:  NewParserRegistry(),
		now:      time.Now,
	}, nil
}

// SetCache 设置缓存（入库后自动清除）
func (idx *Indexer) SetCache(c SearchCacheStore) {
	idx.cache = c
}

// SetParsers 替换文档解析器注册表
func (idx *Indexer) SetParsers(p *ParserRegistry) {
	idx.parsers = p
}

// IndexDocument 入库单个文档
//
// 文档记录创建之后的任何失败都会把状态置为 error 并保留原文，
// 此时同时返回 IndexResult 与错误。
func (idx *Indexer) IndexDocument(ctx context.Context, req *IndexRequest) (*IndexResult, error) {
	ft, err := FileTypeFromMIME(req.MimeType)
	if err != nil {
		return nil, err
	}

	id := req.DocumentID
	if id == "" {
		id = uuid.New().String()
	}

	key, err := idx.blobs.Save(ctx, id, req.Data, req.MimeType)
	if err != nil {
		return nil, fmt.Errorf("%w: save blob: %w", ErrStorage, err)
	}

	now := idx.now()
	doc := &Document{
		ID:         id,
		Name:       req.Name,
		MimeType:   req.MimeType,
		FileType:   ft,
		Status:     StatusProcessing,
		Size:       int64(len(req.Data)),
		StorageKey: key,
		UploadedAt: now,
		UpdatedAt:  now,
	}
	if err := idx.docs.CreateDocument(ctx, doc); err != nil {
		if delErr := idx.blobs.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			applog.Warn("[RAG/Indexer] Failed to remove orphan blob", "doc_id", id, "error", delErr)
		}
		return nil, fmt.Errorf("%w: create document: %w", ErrStorage, err)
	}

	return idx.run(ctx, doc, req.Data)
}

// Reindex 从已保存的原文重新入库一个失败的文档
func (idx *Indexer) Reindex(ctx context.Context, id string) (*IndexResult, error) {
	doc, err := idx.docs.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: get document: %w", ErrStorage, err)
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	if doc.Status != StatusError {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotReindexable, id, doc.Status)
	}

	data, err := idx.blobs.Get(ctx, doc.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("%w: load blob: %w", ErrStorage, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: blob %s is missing", ErrStorage, doc.StorageKey)
	}

	// 并发的重新入库只有一个能完成 error → processing
	ok, err := idx.docs.TransitionDocumentStatus(ctx, id, StatusError, StatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("%w: update status: %w", ErrStorage, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is already being reindexed or was deleted", ErrNotReindexable, id)
	}
	doc.Status = StatusProcessing
	doc.Error = ""

	return idx.run(ctx, doc, data)
}

// DeleteDocument 软删除文档及其分块并移除原文，对未知或已删除的 id 幂等
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) error {
	doc, err := idx.docs.GetDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: get document: %w", ErrStorage, err)
	}
	if doc == nil {
		return nil
	}

	deleted, err := idx.docs.SoftDeleteDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: delete document: %w", ErrStorage, err)
	}
	if !deleted {
		return nil
	}

	if err := idx.chunks.SoftDeleteByFile(ctx, id); err != nil {
		return fmt.Errorf("%w: delete chunks: %w", ErrStorage, err)
	}
	if err := idx.blobs.Delete(ctx, doc.StorageKey); err != nil {
		applog.Warn("[RAG/Indexer] Failed to delete blob", "doc_id", id, "key", doc.StorageKey, "error", err)
	}

	applog.Info("[RAG] Document deleted", "doc_id", id)
	idx.invalidateCache(ctx)
	return nil
}

// run 执行解析到持久化的阶段并回写文档状态
func (idx *Indexer) run(ctx context.Context, doc *Document, data []byte) (*IndexResult, error) {
	start := time.Now()

	count, err := idx.process(ctx, doc, data)
	if err != nil {
		applog.Error("[RAG/Indexer] Indexing failed", "doc_id", doc.ID, "name", doc.Name, "error", err)
		// 请求可能已被取消，状态回写不受其影响
		if updErr := idx.docs.UpdateDocumentStatus(context.WithoutCancel(ctx), doc.ID, StatusError, 0, err.Error()); updErr != nil {
			applog.Error("[RAG/Indexer] Failed to record error status", "doc_id", doc.ID, "error", updErr)
		}
		return &IndexResult{
			DocumentID: doc.ID,
			Name:       doc.Name,
			Status:     StatusError,
			Error:      err.Error(),
		}, err
	}

	if err := idx.docs.UpdateDocumentStatus(ctx, doc.ID, StatusReady, count, ""); err != nil {
		err = fmt.Errorf("%w: mark ready: %w", ErrStorage, err)
		return &IndexResult{DocumentID: doc.ID, Name: doc.Name, Status: StatusError, Error: err.Error()}, err
	}

	// 入库期间文档可能已被删除：删除先于分块写入时，由这里补删分块
	if err := idx.discardIfDeleted(context.WithoutCancel(ctx), doc.ID); err != nil {
		return &IndexResult{DocumentID: doc.ID, Name: doc.Name, Status: StatusError, Error: err.Error()}, err
	}

	applog.Info("[RAG] Document indexed",
		"doc_id", doc.ID,
		"name", doc.Name,
		"chunks", count,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	idx.invalidateCache(ctx)

	return &IndexResult{
		DocumentID: doc.ID,
		Name:       doc.Name,
		ChunkCount: count,
		Status:     StatusReady,
	}, nil
}

func (idx *Indexer) process(ctx context.Context, doc *Document, data []byte) (int, error) {
	text, err := idx.parsers.Extract(data, doc.FileType)
	if err != nil {
		return 0, err
	}

	chunks := idx.chunker.Chunk(text)
	if len(chunks) == 0 {
		applog.Warn("[RAG/Indexer] No text extracted", "doc_id", doc.ID, "name", doc.Name)
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := idx.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if err := checkVectors(vectors, len(chunks), idx.embedder.Dims()); err != nil {
		return 0, err
	}

	now := idx.now()
	records := make([]ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = ChunkRecord{
			ID:        ChunkID(doc.ID, c.Index),
			FileID:    doc.ID,
			Index:     c.Index,
			Text:      c.Text,
			Embedding: vectors[i],
			CreatedAt: now,
		}
	}

	if err := idx.chunks.SaveChunks(ctx, records); err != nil {
		return 0, fmt.Errorf("%w: save chunks: %w", ErrStorage, err)
	}
	return len(records), nil
}

// discardIfDeleted 分块写入后复查文档，已删除则软删除刚写入的分块
//
// 复查之后才发生的删除，其 SoftDeleteByFile 必然晚于 SaveChunks。
func (idx *Indexer) discardIfDeleted(ctx context.Context, id string) error {
	doc, err := idx.docs.GetDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: recheck document: %w", ErrStorage, err)
	}
	if doc != nil {
		return nil
	}
	if err := idx.chunks.SoftDeleteByFile(ctx, id); err != nil {
		return fmt.Errorf("%w: discard chunks of deleted document: %w", ErrStorage, err)
	}
	// 分块短暂可见期间的检索结果可能已进入缓存
	idx.invalidateCache(ctx)
	applog.Warn("[RAG/Indexer] Document deleted during indexing, chunks discarded", "doc_id", id)
	return fmt.Errorf("%w: %s was deleted during indexing", ErrDocumentNotFound, id)
}

func (idx *Indexer) invalidateCache(ctx context.Context) {
	if idx.cache != nil {
		idx.cache.InvalidateAll(ctx)
	}
}
