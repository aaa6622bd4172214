package postgres

import (
	"context"
	"database/sql"
	"errors"
)

// BlobStore 把原始文件存入 bytea 列
type BlobStore struct {
	db *sql.DB
}

// NewBlobStore 创建 PostgreSQL 原文存储
func NewBlobStore(db *sql.DB) *BlobStore {
	return &BlobStore{db: db}
}

// EnsureBlobTable 确保 document_blobs 表存在
func (s *BlobStore) EnsureBlobTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS document_blobs (
		key          VARCHAR(512) PRIMARY KEY,
		content_type VARCHAR(255) NOT NULL DEFAULT '',
		data         BYTEA NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	return err
}

func (s *BlobStore) Save(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document_blobs (key, content_type, data) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET content_type = EXCLUDED.content_type, data = EXCLUDED.data`,
		key, contentType, data)
	if err != nil {
		return "", err
	}
	return key, nil
}

func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM document_blobs WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func (s *BlobStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM document_blobs WHERE key = $1`, key)
	return err
}

func (s *BlobStore) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM document_blobs WHERE key = $1)`, key).Scan(&exists)
	return exists, err
}
