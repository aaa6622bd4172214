package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"docqa/internal/domain/rag"
)

// DocumentRepository 内存文档元数据存储，用于本地开发与测试
type DocumentRepository struct {
	mu   sync.RWMutex
	docs map[string]*rag.Document
}

// NewDocumentRepository 创建内存文档存储
func NewDocumentRepository() *DocumentRepository {
	return &DocumentRepository{docs: make(map[string]*rag.Document)}
}

func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *rag.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *DocumentRepository) GetDocument(ctx context.Context, id string) (*rag.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok || doc.DeletedAt != nil {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (r *DocumentRepository) ListDocuments(ctx context.Context) ([]*rag.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*rag.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		if doc.DeletedAt != nil {
			continue
		}
		cp := *doc
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	return out, nil
}

func (r *DocumentRepository) UpdateDocumentStatus(ctx context.Context, id string, status rag.DocumentStatus, chunkCount int, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok || doc.DeletedAt != nil {
		return nil
	}
	doc.Status = status
	doc.ChunkCount = chunkCount
	doc.Error = errMsg
	doc.UpdatedAt = time.Now()
	return nil
}

func (r *DocumentRepository) TransitionDocumentStatus(ctx context.Context, id string, from, to rag.DocumentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok || doc.DeletedAt != nil || doc.Status != from {
		return false, nil
	}
	doc.Status = to
	doc.ChunkCount = 0
	doc.Error = ""
	doc.UpdatedAt = time.Now()
	return true, nil
}

func (r *DocumentRepository) SoftDeleteDocument(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok || doc.DeletedAt != nil {
		return false, nil
	}
	now := time.Now()
	doc.DeletedAt = &now
	doc.UpdatedAt = now
	return true, nil
}
