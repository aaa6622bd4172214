package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"docqa/internal/domain/rag"
)

// 存储后端
const (
	BackendMemory     = "memory"
	BackendPostgres   = "postgres"
	BackendSQLite     = "sqlite"
	BackendLocal      = "local"
	BackendChromem    = "chromem"
	BackendPGVector   = "pgvector"
	BackendOpenSearch = "opensearch"
)

// AppConfig 全局配置。启动时统一加载，再按模块提取使用。
type AppConfig struct {
	LogLevel  string         `json:"log_level"`
	LogFormat string         `json:"log_format"`
	Server    ServerConfig   `json:"server"`
	Database  DatabaseConfig `json:"database"`
	Redis     RedisConfig    `json:"redis"`
	OpenAI    OpenAIConfig   `json:"openai"`
	Gemini    GeminiConfig   `json:"gemini"`
	Storage   StorageConfig  `json:"storage"`
	RAG       rag.Config     `json:"rag"`
}

type ServerConfig struct {
	Host                string   `json:"host"`
	Port                int      `json:"port"`
	ReadTimeoutSeconds  int      `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `json:"write_timeout_seconds"`
	ChatTimeoutSeconds  int      `json:"chat_timeout_seconds"`
	AllowedOrigins      []string `json:"allowed_origins"`
}

type DatabaseConfig struct {
	URL                    string `json:"url"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// RedisConfig URL 为空时不启用检索缓存
type RedisConfig struct {
	URL string `json:"url"`
}

type OpenAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

type GeminiConfig struct {
	APIKey string `json:"api_key"`
}

// StorageConfig 三类存储各自选择后端
type StorageConfig struct {
	DocumentStore string `json:"document_store"` // sqlite | postgres | memory
	VectorStore   string `json:"vector_store"`   // chromem | pgvector | opensearch | memory
	BlobStore     string `json:"blob_store"`     // local | postgres | memory
	DataDir       string `json:"data_dir"`
	ChromemPath   string `json:"chromem_path"` // 为空时使用 DataDir/chromem
}

// Default 返回默认配置：单机模式，全部数据落在 DataDir 下。
func Default() *AppConfig {
	ragCfg := rag.DefaultConfig()
	return &AppConfig{
		LogLevel:  "info",
		LogFormat: "text",
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			ReadTimeoutSeconds:  60,
			WriteTimeoutSeconds: 600,
			ChatTimeoutSeconds:  300,
			AllowedOrigins:      []string{"*"},
		},
		Database: DatabaseConfig{
			MaxOpenConns:           25,
			MaxIdleConns:           5,
			ConnMaxLifetimeSeconds: 300,
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
		},
		Storage: StorageConfig{
			DocumentStore: BackendSQLite,
			VectorStore:   BackendChromem,
			BlobStore:     BackendLocal,
			DataDir:       "./data",
		},
		RAG: *ragCfg,
	}
}

// Load 加载全局配置：默认值 -> 配置文件 -> 环境变量。
// 配置文件路径通过 APP_CONFIG_FILE 指定（JSON）。
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		// .env 非必需，忽略错误
	}

	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read APP_CONFIG_FILE %q failed: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse APP_CONFIG_FILE %q failed: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	applyString("LOG_LEVEL", &c.LogLevel)
	applyString("LOG_FORMAT", &c.LogFormat)

	applyString("HOST", &c.Server.Host)
	applyInt("PORT", &c.Server.Port)
	applyInt("SERVER_READ_TIMEOUT", &c.Server.ReadTimeoutSeconds)
	applyInt("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeoutSeconds)
	applyInt("CHAT_TIMEOUT", &c.Server.ChatTimeoutSeconds)
	applyList("CORS_ALLOWED_ORIGINS", &c.Server.AllowedOrigins)

	applyString("DATABASE_URL", &c.Database.URL)
	applyInt("DATABASE_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	applyInt("DATABASE_MAX_IDLE_CONNS", &c.Database.MaxIdleConns)
	applyInt("DATABASE_CONN_MAX_LIFETIME", &c.Database.ConnMaxLifetimeSeconds)

	applyString("REDIS_URL", &c.Redis.URL)

	applyString("OPENAI_API_KEY", &c.OpenAI.APIKey)
	applyString("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	applyString("GEMINI_API_KEY", &c.Gemini.APIKey)

	applyString("DOCUMENT_STORE", &c.Storage.DocumentStore)
	applyString("VECTOR_STORE", &c.Storage.VectorStore)
	applyString("BLOB_STORE", &c.Storage.BlobStore)
	applyString("DATA_DIR", &c.Storage.DataDir)
	applyString("CHROMEM_PATH", &c.Storage.ChromemPath)

	// RAG 环境变量
	applyInt("RAG_CHUNK_SIZE", &c.RAG.ChunkSize)
	applyInt("RAG_CHUNK_OVERLAP", &c.RAG.ChunkOverlap)
	applyFloat64("RAG_MATCH_THRESHOLD", &c.RAG.MatchThreshold)
	applyInt("RAG_MATCH_COUNT", &c.RAG.MatchCount)
	applyString("RAG_EMBEDDING_PROVIDER", &c.RAG.EmbeddingProvider)
	applyString("RAG_EMBEDDING_MODEL", &c.RAG.EmbeddingModel)
	applyInt("RAG_EMBEDDING_DIMS", &c.RAG.EmbeddingDims)
	applyInt("RAG_EMBEDDING_BATCH_SIZE", &c.RAG.EmbeddingBatchSize)
	applyFloat64("RAG_EMBEDDING_RATE_LIMIT", &c.RAG.EmbeddingRateLimit)
	applyInt("RAG_EMBEDDING_MAX_RETRIES", &c.RAG.EmbeddingMaxRetries)
	applyString("RAG_GENERATION_PROVIDER", &c.RAG.GenerationProvider)
	applyString("RAG_GENERATION_MODEL", &c.RAG.GenerationModel)
	applyString("OPENSEARCH_URL", &c.RAG.OpenSearchURL)
	applyString("OPENSEARCH_USERNAME", &c.RAG.OpenSearchUsername)
	applyString("OPENSEARCH_PASSWORD", &c.RAG.OpenSearchPassword)
	applyString("OPENSEARCH_INDEX_PREFIX", &c.RAG.IndexPrefix)
	applyInt("RAG_CACHE_TTL", &c.RAG.CacheTTL)
	applyInt("RAG_MAX_FILE_SIZE", &c.RAG.MaxFileSize)
}

func (c *AppConfig) normalize() {
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	c.Storage.DocumentStore = strings.ToLower(strings.TrimSpace(c.Storage.DocumentStore))
	c.Storage.VectorStore = strings.ToLower(strings.TrimSpace(c.Storage.VectorStore))
	c.Storage.BlobStore = strings.ToLower(strings.TrimSpace(c.Storage.BlobStore))
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "./data"
	}
	c.RAG.EmbeddingProvider = strings.ToLower(strings.TrimSpace(c.RAG.EmbeddingProvider))
	c.RAG.GenerationProvider = strings.ToLower(strings.TrimSpace(c.RAG.GenerationProvider))
}

func (c *AppConfig) validate() error {
	if err := c.RAG.Validate(); err != nil {
		return err
	}

	if err := oneOf("DOCUMENT_STORE", c.Storage.DocumentStore, BackendSQLite, BackendPostgres, BackendMemory); err != nil {
		return err
	}
	if err := oneOf("VECTOR_STORE", c.Storage.VectorStore, BackendChromem, BackendPGVector, BackendOpenSearch, BackendMemory); err != nil {
		return err
	}
	if err := oneOf("BLOB_STORE", c.Storage.BlobStore, BackendLocal, BackendPostgres, BackendMemory); err != nil {
		return err
	}

	if c.UsesPostgres() && strings.TrimSpace(c.Database.URL) == "" {
		return fmt.Errorf("DATABASE_URL is required for postgres-backed storage")
	}
	// pgvector 检索需要 JOIN documents 表
	if c.Storage.VectorStore == BackendPGVector && c.Storage.DocumentStore != BackendPostgres {
		return fmt.Errorf("VECTOR_STORE=pgvector requires DOCUMENT_STORE=postgres")
	}
	if c.Storage.VectorStore == BackendOpenSearch && strings.TrimSpace(c.RAG.OpenSearchURL) == "" {
		return fmt.Errorf("OPENSEARCH_URL is required for VECTOR_STORE=opensearch")
	}

	if err := c.requireKey("RAG_EMBEDDING_PROVIDER", c.RAG.EmbeddingProvider); err != nil {
		return err
	}
	if err := c.requireKey("RAG_GENERATION_PROVIDER", c.RAG.GenerationProvider); err != nil {
		return err
	}
	return nil
}

// UsesPostgres 任一存储使用 PostgreSQL
func (c *AppConfig) UsesPostgres() bool {
	return c.Storage.DocumentStore == BackendPostgres ||
		c.Storage.VectorStore == BackendPGVector ||
		c.Storage.BlobStore == BackendPostgres
}

func (c *AppConfig) requireKey(field, provider string) error {
	switch provider {
	case "openai":
		if strings.TrimSpace(c.OpenAI.APIKey) == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when %s=openai", field)
		}
	case "gemini":
		if strings.TrimSpace(c.Gemini.APIKey) == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when %s=gemini", field)
		}
	default:
		return fmt.Errorf("%s must be openai or gemini, got %q", field, provider)
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), value)
}

func applyString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func applyInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func applyFloat64(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*target = n
		}
	}
}

// applyList 逗号分隔
func applyList(key string, target *[]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) > 0 {
		*target = out
	}
}
