package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	chromemdb "docqa/internal/db/chromem"
	"docqa/internal/db/memory"
	"docqa/internal/db/opensearch"
	"docqa/internal/db/postgres"
	"docqa/internal/db/sqlite"
	"docqa/internal/domain/rag"
	"docqa/internal/platform/config"
	applog "docqa/internal/platform/log"
	"docqa/internal/storage"
)

// Storage 按配置装配好的三类存储
type Storage struct {
	Documents rag.DocumentRepository
	Chunks    rag.ChunkStore
	Blobs     rag.BlobStore

	closers []func() error
}

// Close 释放数据库连接
func (s *Storage) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenStorage 创建存储后端并执行建表/建索引
func OpenStorage(ctx context.Context, cfg *config.AppConfig, dims int) (*Storage, error) {
	s := &Storage{}
	log := applog.Component("storage")

	var pg *sql.DB
	if cfg.UsesPostgres() {
		db, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		pg = db
		s.closers = append(s.closers, db.Close)
		log.Info("✅ Connected to PostgreSQL")
	}

	fail := func(err error) (*Storage, error) {
		s.Close()
		return nil, err
	}

	switch cfg.Storage.DocumentStore {
	case config.BackendPostgres:
		repo := postgres.NewRepository(pg)
		if err := repo.EnsureDocumentTables(ctx); err != nil {
			return fail(fmt.Errorf("ensure documents table: %w", err))
		}
		if err := repo.EnsureDocumentColumns(ctx); err != nil {
			applog.Warnf("⚠️  Failed to ensure document columns: %v", err)
		}
		s.Documents = repo
	case config.BackendSQLite:
		repo, err := sqlite.Open(ctx, cfg.Storage.DataDir)
		if err != nil {
			return fail(fmt.Errorf("open sqlite: %w", err))
		}
		s.closers = append(s.closers, repo.Close)
		s.Documents = repo
	default:
		s.Documents = memory.NewDocumentRepository()
	}

	switch cfg.Storage.VectorStore {
	case config.BackendPGVector:
		store := postgres.NewChunkStore(pg, dims)
		if err := store.EnsureChunkTables(ctx); err != nil {
			return fail(fmt.Errorf("ensure chunk table: %w", err))
		}
		s.Chunks = store
	case config.BackendOpenSearch:
		client := opensearch.NewClient(&cfg.RAG)
		if err := client.Ping(ctx); err != nil {
			return fail(err)
		}
		if err := client.EnsureIndex(ctx, dims); err != nil {
			return fail(fmt.Errorf("ensure opensearch index: %w", err))
		}
		s.Chunks = client
	case config.BackendChromem:
		path := cfg.Storage.ChromemPath
		if path == "" {
			path = filepath.Join(cfg.Storage.DataDir, "chromem")
		}
		store, err := chromemdb.NewChunkStore(path)
		if err != nil {
			return fail(err)
		}
		s.Chunks = store
	default:
		s.Chunks = memory.NewChunkStore()
	}

	switch cfg.Storage.BlobStore {
	case config.BackendPostgres:
		blobs := postgres.NewBlobStore(pg)
		if err := blobs.EnsureBlobTable(ctx); err != nil {
			return fail(fmt.Errorf("ensure blob table: %w", err))
		}
		s.Blobs = blobs
	case config.BackendLocal:
		blobs, err := storage.NewLocalBlobStore(filepath.Join(cfg.Storage.DataDir, "blobs"))
		if err != nil {
			return fail(err)
		}
		s.Blobs = blobs
	default:
		s.Blobs = memory.NewBlobStore()
	}

	log.Info("✅ Storage ready",
		"documents", cfg.Storage.DocumentStore,
		"vectors", cfg.Storage.VectorStore,
		"blobs", cfg.Storage.BlobStore,
	)
	return s, nil
}

func openPostgres(ctx context.Context, cfg *config.AppConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetimeSeconds) * time.Second)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
