package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"docqa/internal/domain/rag"
)

// DocumentRepository 本地模式下的 SQLite 文档元数据存储
type DocumentRepository struct {
	db *sql.DB
}

// Open 打开（必要时创建）dataDir/documents.db 并建表
func Open(ctx context.Context, dataDir string) (*DocumentRepository, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "documents.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite 单写者，避免 database is locked
	db.SetMaxOpenConns(1)

	r := &DocumentRepository{db: db}
	if err := r.EnsureDocumentTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return r, nil
}

// Close 关闭数据库连接
func (r *DocumentRepository) Close() error {
	return r.db.Close()
}

// EnsureDocumentTables 确保 documents 表存在
func (r *DocumentRepository) EnsureDocumentTables(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS documents (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		mime_type   TEXT NOT NULL,
		file_type   TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'processing',
		chunk_count INTEGER NOT NULL DEFAULT 0,
		size        INTEGER NOT NULL DEFAULT 0,
		storage_key TEXT NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		uploaded_at INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL,
		deleted_at  INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_documents_uploaded ON documents(uploaded_at DESC);
	`)
	return err
}

const documentColumns = `id, name, mime_type, file_type, status, chunk_count, size, storage_key, error, uploaded_at, updated_at, deleted_at`

func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *rag.Document) error {
	if doc.Status == "" {
		doc.Status = rag.StatusProcessing
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now()
	}
	doc.UpdatedAt = doc.UploadedAt
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (id, name, mime_type, file_type, status, chunk_count, size, storage_key, error, uploaded_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Name, doc.MimeType, string(doc.FileType), string(doc.Status), doc.ChunkCount, doc.Size,
		doc.StorageKey, doc.Error, toMillis(doc.UploadedAt), toMillis(doc.UpdatedAt))
	return err
}

func (r *DocumentRepository) GetDocument(ctx context.Context, id string) (*rag.Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ? AND deleted_at IS NULL`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return doc, err
}

func (r *DocumentRepository) ListDocuments(ctx context.Context) ([]*rag.Document, error) {
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

func (r *DocumentRepository) UpdateDocumentStatus(ctx context.Context, id string, status rag.DocumentStatus, chunkCount int, errMsg string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, chunk_count = ?, error = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		string(status), chunkCount, errMsg, toMillis(time.Now()), id)
	return err
}

// TransitionDocumentStatus 条件 UPDATE，并发调用只有一个成功
func (r *DocumentRepository) TransitionDocumentStatus(ctx context.Context, id string, from, to rag.DocumentStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, chunk_count = 0, error = '', updated_at = ?
		 WHERE id = ? AND status = ? AND deleted_at IS NULL`,
		string(to), toMillis(time.Now()), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *DocumentRepository) SoftDeleteDocument(ctx context.Context, id string) (bool, error) {
	now := toMillis(time.Now())
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`, now, now, id)
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
	var uploadedAt, updatedAt int64
	var deletedAt sql.NullInt64
	if err := s.Scan(
		&doc.ID, &doc.Name, &doc.MimeType, &fileType, &status, &doc.ChunkCount, &doc.Size,
		&doc.StorageKey, &doc.Error, &uploadedAt, &updatedAt, &deletedAt,
	); err != nil {
		return nil, err
	}
	doc.FileType = rag.FileType(fileType)
	doc.Status = rag.DocumentStatus(status)
	doc.UploadedAt = fromMillis(uploadedAt)
	doc.UpdatedAt = fromMillis(updatedAt)
	if deletedAt.Valid {
		t := fromMillis(deletedAt.Int64)
		doc.DeletedAt = &t
	}
	return doc, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
