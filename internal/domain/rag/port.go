package rag

import "context"

// DocumentRepository 文档元数据存储
type DocumentRepository interface {
	CreateDocument(ctx context.Context, doc *Document) error
	// GetDocument 不存在或已软删除时返回 (nil, nil)
	GetDocument(ctx context.Context, id string) (*Document, error)
	// ListDocuments 未删除文档，按上传时间倒序
	ListDocuments(ctx context.Context) ([]*Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status DocumentStatus, chunkCount int, errMsg string) error
	// TransitionDocumentStatus 仅当当前状态为 from 时切换到 to，并清空分块数与错误信息
	TransitionDocumentStatus(ctx context.Context, id string, from, to DocumentStatus) (bool, error)
	// SoftDeleteDocument 返回本次是否真正删除
	SoftDeleteDocument(ctx context.Context, id string) (bool, error)
}

// ChunkStore 分块与向量存储
type ChunkStore interface {
	// SaveChunks 全部写入或全部不写入
	SaveChunks(ctx context.Context, chunks []ChunkRecord) error
	// Search 返回 similarity >= Threshold 的结果，按相似度倒序，最多 Limit 条
	Search(ctx context.Context, q VectorQuery) ([]RetrievedChunk, error)
	SoftDeleteByFile(ctx context.Context, fileID string) error
}

// BlobStore 原始文件存储
type BlobStore interface {
	Save(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Get 不存在时返回 (nil, nil)
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete 幂等
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// SearchCacheStore 检索结果缓存
//
// 条目按代数隔离：InvalidateAll 使代数递增，用旧代数写入的结果不会再被读到。
type SearchCacheStore interface {
	// Generation 当前代数，ok=false 时本次检索不使用缓存
	Generation(ctx context.Context) (gen int64, ok bool)
	Get(ctx context.Context, gen int64, req *RetrieveRequest) ([]RetrievedChunk, bool)
	Set(ctx context.Context, gen int64, req *RetrieveRequest, result []RetrievedChunk)
	InvalidateAll(ctx context.Context)
}
