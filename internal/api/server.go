package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"docqa/internal/domain/rag"
	applog "docqa/internal/platform/log"
)

// ServerConfig 服务配置
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ChatTimeout    time.Duration // 单次问答（检索 + 生成）超时
	AllowedOrigins []string
}

// DefaultServerConfig 默认配置
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    60 * time.Second, // 上传大文件
		WriteTimeout:   10 * time.Minute, // SSE 需要较长写超时
		ChatTimeout:    5 * time.Minute,
		AllowedOrigins: []string{"*"},
	}
}

// Server HTTP 服务器
type Server struct {
	config    *ServerConfig
	docs      rag.DocumentRepository
	blobs     rag.BlobStore
	indexer   *rag.Indexer
	retriever *rag.Retriever
	chat      *rag.ChatService
	maxBytes  int64
	httpSrv   *http.Server
}

// NewServer 创建服务器
func NewServer(config *ServerConfig, docs rag.DocumentRepository, blobs rag.BlobStore, indexer *rag.Indexer, retriever *rag.Retriever) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	return &Server{
		config:    config,
		docs:      docs,
		blobs:     blobs,
		indexer:   indexer,
		retriever: retriever,
		maxBytes:  rag.DefaultConfig().MaxFileBytes(),
	}
}

// SetChat 设置问答服务（未配置生成模型时为空，/api/chat 返回 503）
func (s *Server) SetChat(chat *rag.ChatService) {
	s.chat = chat
}

// SetMaxUploadBytes 设置上传大小上限
func (s *Server) SetMaxUploadBytes(n int64) {
	if n > 0 {
		s.maxBytes = n
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.buildRouter(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	applog.Infof("🚀 Document QA server starting on %s", addr)
	return s.httpSrv.ListenAndServe()
}

// Stop 优雅停机
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

// Handler 返回 HTTP Handler（用于测试）
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		NewFileHandler(s.docs, s.blobs, s.indexer, s.maxBytes).RegisterRoutes(r)
		NewChatHandler(s.chat, s.retriever, s.config.ChatTimeout).RegisterRoutes(r)
	})
	return r
}
