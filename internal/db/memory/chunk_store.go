package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"docqa/internal/domain/rag"
)

type storedChunk struct {
	record  rag.ChunkRecord
	deleted bool
}

// ChunkStore 内存向量存储，暴力计算余弦相似度
type ChunkStore struct {
	mu     sync.RWMutex
	chunks map[string]*storedChunk
	order  []string // 插入顺序，保证同分时结果稳定
}

// NewChunkStore 创建内存向量存储
func NewChunkStore() *ChunkStore {
	return &ChunkStore{chunks: make(map[string]*storedChunk)}
}

func (s *ChunkStore) SaveChunks(ctx context.Context, chunks []rag.ChunkRecord) error {
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", c.ID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		if _, exists := s.chunks[c.ID]; !exists {
			s.order = append(s.order, c.ID)
		}
		rec := c
		rec.Embedding = append([]float32(nil), c.Embedding...)
		s.chunks[c.ID] = &storedChunk{record: rec}
	}
	return nil
}

func (s *ChunkStore) Search(ctx context.Context, q rag.VectorQuery) ([]rag.RetrievedChunk, error) {
	var allowed map[string]bool
	if len(q.FileIDs) > 0 {
		allowed = make(map[string]bool, len(q.FileIDs))
		for _, id := range q.FileIDs {
			allowed[id] = true
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []rag.RetrievedChunk
	for _, id := range s.order {
		c := s.chunks[id]
		if c.deleted || (allowed != nil && !allowed[c.record.FileID]) {
			continue
		}
		sim, err := cosineSimilarity(q.Vector, c.record.Embedding)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", id, err)
		}
		if sim < q.Threshold {
			continue
		}
		out = append(out, rag.RetrievedChunk{
			ChunkID:    c.record.ID,
			FileID:     c.record.FileID,
			Index:      c.record.Index,
			Text:       c.record.Text,
			Similarity: sim,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *ChunkStore) SoftDeleteByFile(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.chunks {
		if c.record.FileID == fileID {
			c.deleted = true
		}
	}
	return nil
}

// Count 返回某文件未删除的分块数
func (s *ChunkStore) Count(fileID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.chunks {
		if c.record.FileID == fileID && !c.deleted {
			n++
		}
	}
	return n
}

// cosineSimilarity 余弦相似度，零向量返回 0
func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, fmt.Errorf("vectors cannot be empty")
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d != %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
