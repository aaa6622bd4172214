package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"docqa/internal/domain/rag"
	applog "docqa/internal/platform/log"
)

// Repository PostgreSQL 文档元数据存储
type Repository struct {
	db *sql.DB
}

// NewRepository 创建 PostgreSQL 存储
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EnsureDocumentTables 确保 documents 表存在
func (r *Repository) EnsureDocumentTables(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS documents (
		id          VARCHAR(64) PRIMARY KEY,
		name        VARCHAR(512) NOT NULL,
		mime_type   VARCHAR(255) NOT NULL,
		file_type   VARCHAR(16) NOT NULL,
		status      VARCHAR(32) NOT NULL DEFAULT 'processing',
		chunk_count INT NOT NULL DEFAULT 0,
		size        BIGINT NOT NULL DEFAULT 0,
		storage_key VARCHAR(512) NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		uploaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at  TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_documents_live_uploaded ON documents(uploaded_at DESC) WHERE deleted_at IS NULL;
	`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// EnsureDocumentColumns 兼容旧表结构
func (r *Repository) EnsureDocumentColumns(ctx context.Context) error {
	queries := []string{
		`ALTER TABLE documents ADD COLUMN IF NOT EXISTS size BIGINT NOT NULL DEFAULT 0`,
		`ALTER TABLE documents ADD COLUMN IF NOT EXISTS error TEXT NOT NULL DEFAULT ''`,
	}
	for _, q := range queries {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			applog.Warn("[Storage] ALTER TABLE failed (may already exist)", "query", q, "error", err)
		}
	}
	return nil
}

const documentColumns = `id, name, mime_type, file_type, status, chunk_count, size, storage_key, error, uploaded_at, updated_at, deleted_at`

func (r *Repository) CreateDocument(ctx context.Context, doc *rag.Document) error {
	if doc.Status == "" {
		doc.Status = rag.StatusProcessing
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now()
	}
	doc.UpdatedAt = doc.UploadedAt
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (id, name, mime_type, file_type, status, chunk_count, size, storage_key, error, uploaded_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		doc.ID, doc.Name, doc.MimeType, string(doc.FileType), string(doc.Status), doc.ChunkCount, doc.Size, doc.StorageKey, doc.Error, doc.UploadedAt, doc.UpdatedAt)
	return err
}

func (r *Repository) GetDocument(ctx context.Context, id string) (*rag.Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 AND deleted_at IS NULL`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return doc, err
}

func (r *Repository) ListDocuments(ctx context.Context) ([]*rag.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE deleted_at IS NULL ORDER BY uploaded_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*rag.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *Repository) UpdateDocumentStatus(ctx context.Context, id string, status rag.DocumentStatus, chunkCount int, errMsg string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = $1, chunk_count = $2, error = $3, updated_at = NOW()
		 WHERE id = $4 AND deleted_at IS NULL`,
		string(status), chunkCount, errMsg, id)
	return err
}

// TransitionDocumentStatus 条件 UPDATE，并发调用只有一个成功
func (r *Repository) TransitionDocumentStatus(ctx context.Context, id string, from, to rag.DocumentStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = $1, chunk_count = 0, error = '', updated_at = NOW()
		 WHERE id = $2 AND status = $3 AND deleted_at IS NULL`,
		string(to), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SoftDeleteDocument 单条条件 UPDATE，并发删除只有一个生效
func (r *Repository) SoftDeleteDocument(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(s rowScanner) (*rag.Document, error) {
	doc := &rag.Document{}
	var fileType, status string
	var deletedAt sql.NullTime
	if err := s.Scan(
		&doc.ID, &doc.Name, &doc.MimeType, &fileType, &status, &doc.ChunkCount, &doc.Size,
		&doc.StorageKey, &doc.Error, &doc.UploadedAt, &doc.UpdatedAt, &deletedAt,
	); err != nil {
		return nil, err
	}
	doc.FileType = rag.FileType(fileType)
	doc.Status = rag.DocumentStatus(status)
	if deletedAt.Valid {
		t := deletedAt.Time
		doc.DeletedAt = &t
	}
	return doc, nil
}
