package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"docqa/internal/api"
	"docqa/internal/app/bootstrap"
	redisdb "docqa/internal/db/redis"
	"docqa/internal/domain/rag"
	"docqa/internal/platform/config"
	applog "docqa/internal/platform/log"
	"docqa/internal/provider"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Config load failed: %v\n", err)
		os.Exit(1)
	}

	applog.Init(applog.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	defer applog.Sync()

	ctx := context.Background()
	ragCfg := &cfg.RAG

	embedder, embedCloser, err := bootstrap.NewEmbedder(ctx, cfg)
	if err != nil {
		applog.Fatalf("❌ Failed to create embedder: %v", err)
	}
	if embedCloser != nil {
		defer embedCloser.Close()
	}

	setupCtx, setupCancel := context.WithTimeout(ctx, 30*time.Second)
	store, err := bootstrap.OpenStorage(setupCtx, cfg, embedder.Dims())
	setupCancel()
	if err != nil {
		applog.Fatalf("❌ Failed to open storage: %v", err)
	}
	defer store.Close()

	indexer, err := rag.NewIndexer(store.Documents, store.Chunks, store.Blobs, embedder, ragCfg)
	if err != nil {
		applog.Fatalf("❌ Invalid chunking config: %v", err)
	}
	retriever := rag.NewRetriever(store.Chunks, embedder, ragCfg)

	if cache := initSearchCache(ctx, cfg); cache != nil {
		retriever.SetCache(cache)
		indexer.SetCache(cache)
	}

	closers, err := bootstrap.RegisterLLMProviders(ctx, cfg)
	for _, c := range closers {
		defer c.Close()
	}
	if err != nil {
		applog.Fatalf("❌ Failed to register LLM providers: %v", err)
	}

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	serverConfig.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	serverConfig.ChatTimeout = time.Duration(cfg.Server.ChatTimeoutSeconds) * time.Second
	serverConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	server := api.NewServer(serverConfig, store.Documents, store.Blobs, indexer, retriever)
	server.SetMaxUploadBytes(ragCfg.MaxFileBytes())

	if llm, err := provider.GetProvider(ragCfg.GenerationProvider); err != nil {
		applog.Warnf("⚠️  Generation provider unavailable, chat disabled: %v", err)
	} else {
		server.SetChat(rag.NewChatService(retriever, llm, ragCfg.GenerationModel))
		applog.Infof("✅ Chat enabled (provider: %s, model: %s)", llm.Name(), ragCfg.GenerationModel)
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		applog.Info("🔄 Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			applog.Errorf("❌ Server shutdown error: %v", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		applog.Fatalf("❌ Server error: %v", err)
	}

	applog.Info("👋 Server stopped")
}

// initSearchCache REDIS_URL 未配置或连不上时返回 nil，检索照常工作
func initSearchCache(ctx context.Context, cfg *config.AppConfig) rag.SearchCacheStore {
	if cfg.Redis.URL == "" || !cfg.RAG.HasCache() {
		applog.Info("ℹ️  Search cache disabled")
		return nil
	}

	opt, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		applog.Warnf("⚠️  Redis URL invalid, search cache disabled: %v", err)
		return nil
	}
	client := goredis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		applog.Warnf("⚠️  Redis unreachable, search cache disabled: %v", err)
		closeQuietly(client)
		return nil
	}

	applog.Infof("✅ Search cache initialized (TTL: %ds)", cfg.RAG.CacheTTL)
	return redisdb.NewSearchCache(client, cfg.RAG.CacheTTL)
}

func closeQuietly(c io.Closer) {
	_ = c.Close()
}
