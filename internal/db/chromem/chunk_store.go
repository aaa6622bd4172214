package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"docqa/internal/domain/rag"
	applog "docqa/internal/platform/log"
)

const collectionName = "document_chunks"

const (
	metaFileID  = "file_id"
	metaIndex   = "chunk_index"
	metaDeleted = "deleted"
)

// ChunkStore 基于 chromem-go 的嵌入式向量存储
//
// 向量在入库时已经算好，collection 不需要 EmbeddingFunc；
// 软删除通过覆盖写入 deleted=true 的元数据实现。
type ChunkStore struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
}

// NewChunkStore path 为空时使用纯内存 DB，否则持久化到该目录
func NewChunkStore(path string) (*ChunkStore, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	col, err := db.GetOrCreateCollection(collectionName, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	applog.Info("[Storage] chromem collection ready", "path", path, "documents", col.Count())
	return &ChunkStore{db: db, collection: col}, nil
}

// noEmbedding 所有文档都自带向量，被调用说明调用方漏传了向量
func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("chromem store requires precomputed embeddings")
}

// SaveChunks 写入分块；失败时删除本批已写入的部分
func (s *ChunkStore) SaveChunks(ctx context.Context, chunks []rag.ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", c.ID)
		}
		ids[i] = c.ID
		docs[i] = chromem.Document{
			ID:        c.ID,
			Content:   c.Text,
			Embedding: append([]float32(nil), c.Embedding...),
			Metadata:  chunkMetadata(c.FileID, c.Index, false),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		if delErr := s.collection.Delete(context.WithoutCancel(ctx), nil, nil, ids...); delErr != nil {
			applog.Warn("[Storage] chromem rollback failed", "error", delErr)
		}
		return fmt.Errorf("chromem add documents: %w", err)
	}
	return nil
}

// Search 按文件逐个查询后合并，chromem 的 where 只支持等值匹配
func (s *ChunkStore) Search(ctx context.Context, q rag.VectorQuery) ([]rag.RetrievedChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.collection.Count()
	if count == 0 || q.Limit <= 0 {
		return nil, nil
	}
	n := q.Limit
	if n > count {
		n = count
	}

	wheres := []map[string]string{{metaDeleted: "false"}}
	if len(q.FileIDs) > 0 {
		wheres = wheres[:0]
		for _, id := range q.FileIDs {
			wheres = append(wheres, map[string]string{metaDeleted: "false", metaFileID: id})
		}
	}

	var out []rag.RetrievedChunk
	for _, where := range wheres {
		results, err := s.collection.QueryEmbedding(ctx, q.Vector, n, where, nil)
		if err != nil {
			return nil, fmt.Errorf("chromem query: %w", err)
		}
		for _, r := range results {
			sim := float64(r.Similarity)
			if sim < q.Threshold {
				continue
			}
			idx, _ := strconv.Atoi(r.Metadata[metaIndex])
			out = append(out, rag.RetrievedChunk{
				ChunkID:    r.ID,
				FileID:     r.Metadata[metaFileID],
				Index:      idx,
				Text:       r.Content,
				Similarity: sim,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// SoftDeleteByFile 分块 ID 连续（<file>_chunk_<i>），逐个标记为已删除
func (s *ChunkStore) SoftDeleteByFile(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	marked := 0
	for i := 0; ; i++ {
		doc, err := s.collection.GetByID(ctx, rag.ChunkID(fileID, i))
		if err != nil {
			break
		}
		if doc.Metadata[metaDeleted] == "true" {
			continue
		}
		doc.Metadata = chunkMetadata(fileID, i, true)
		if err := s.collection.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("mark chunk %s deleted: %w", doc.ID, err)
		}
		marked++
	}

	applog.Debug("[Storage] chromem chunks soft-deleted", "file_id", fileID, "count", marked)
	return nil
}

func chunkMetadata(fileID string, index int, deleted bool) map[string]string {
	return map[string]string{
		metaFileID:  fileID,
		metaIndex:   strconv.Itoa(index),
		metaDeleted: strconv.FormatBool(deleted),
	}
}
