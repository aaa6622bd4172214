package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"docqa/internal/domain/rag"
)

// ChunkStore 基于 pgvector 的分块向量存储
type ChunkStore struct {
	db   *sql.DB
	dims int
}

// NewChunkStore 创建 pgvector 存储，dims 必须与 Embedder 一致
func NewChunkStore(db *sql.DB, dims int) *ChunkStore {
	return &ChunkStore{db: db, dims: dims}
}

// EnsureChunkTables 确保 vector 扩展与 document_chunks 表存在
func (s *ChunkStore) EnsureChunkTables(ctx context.Context) error {
	ddl := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS document_chunks (
		id          VARCHAR(128) PRIMARY KEY,
		file_id     VARCHAR(64) NOT NULL,
		chunk_index INT NOT NULL,
		content     TEXT NOT NULL,
		embedding   vector(%d) NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at  TIMESTAMPTZ,
		UNIQUE (file_id, chunk_index)
	);
	CREATE INDEX IF NOT EXISTS idx_document_chunks_file ON document_chunks(file_id) WHERE deleted_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding ON document_chunks USING hnsw (embedding vector_cosine_ops);
	`, s.dims)
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// SaveChunks 在单个事务中写入全部分块
func (s *ChunkStore) SaveChunks(ctx context.Context, chunks []rag.ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_chunks (id, file_id, chunk_index, content, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding,
		   created_at = EXCLUDED.created_at, deleted_at = NULL`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.FileID, c.Index, c.Text, pgvector.NewVector(c.Embedding), c.CreatedAt); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// Search 余弦相似度检索，只返回未删除文档的分块
func (s *ChunkStore) Search(ctx context.Context, q rag.VectorQuery) ([]rag.RetrievedChunk, error) {
	var fileFilter any
	if len(q.FileIDs) > 0 {
		fileFilter = pq.Array(q.FileIDs)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.file_id, c.chunk_index, c.content, 1 - (c.embedding <=> $1) AS similarity
		FROM document_chunks c
		JOIN documents d ON d.id = c.file_id AND d.deleted_at IS NULL
		WHERE c.deleted_at IS NULL
		  AND ($2::text[] IS NULL OR c.file_id = ANY($2::text[]))
		  AND 1 - (c.embedding <=> $1) >= $3
		ORDER BY c.embedding <=> $1
		LIMIT $4`,
		pgvector.NewVector(q.Vector), fileFilter, q.Threshold, q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rag.RetrievedChunk
	for rows.Next() {
		var m rag.RetrievedChunk
		if err := rows.Scan(&m.ChunkID, &m.FileID, &m.Index, &m.Text, &m.Similarity); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *ChunkStore) SoftDeleteByFile(ctx context.Context, fileID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE document_chunks SET deleted_at = NOW() WHERE file_id = $1 AND deleted_at IS NULL`, fileID)
	return err
}
