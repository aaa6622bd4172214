package rag

import "fmt"

// Config RAG 模块配置
type Config struct {
	// Chunker 配置（按字符计）
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`

	// 检索配置
	MatchThreshold float64 `json:"match_threshold"`
	MatchCount     int     `json:"match_count"`

	// Embedding
	EmbeddingProvider   string  `json:"embedding_provider"` // openai | gemini
	EmbeddingModel      string  `json:"embedding_model"`
	EmbeddingDims       int     `json:"embedding_dims"`
	EmbeddingBatchSize  int     `json:"embedding_batch_size"`
	EmbeddingRateLimit  float64 `json:"embedding_rate_limit"` // 每秒请求数，0=不限
	EmbeddingMaxRetries int     `json:"embedding_max_retries"`

	// 生成
	GenerationProvider string `json:"generation_provider"` // openai | gemini
	GenerationModel    string `json:"generation_model"`

	// OpenSearch 向量存储（VECTOR_STORE=opensearch 时使用）
	OpenSearchURL      string `json:"opensearch_url"`
	OpenSearchUsername string `json:"opensearch_username"`
	OpenSearchPassword string `json:"opensearch_password"`
	IndexPrefix        string `json:"index_prefix"`

	// 缓存配置
	CacheTTL    int `json:"cache_ttl"`     // 缓存 TTL（秒），0=禁用
	MaxFileSize int `json:"max_file_size"` // 最大文件大小（MB）
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		ChunkSize:           1000,
		ChunkOverlap:        200,
		MatchThreshold:      0.5,
		MatchCount:          5,
		EmbeddingProvider:   "gemini",
		EmbeddingModel:      "text-embedding-004",
		EmbeddingDims:       768,
		EmbeddingBatchSize:  100,
		EmbeddingRateLimit:  0,
		EmbeddingMaxRetries: 2,
		GenerationProvider:  "gemini",
		GenerationModel:     "gemini-2.5-flash",
		OpenSearchURL:       "https://localhost:9200",
		IndexPrefix:         "docqa",
		CacheTTL:            300, // 5分钟
		MaxFileSize:         50,  // 50MB
	}
}

// Validate 校验会导致运行期错误的配置
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_size=%d chunk_overlap=%d", ErrInvalidChunkConfig, c.ChunkSize, c.ChunkOverlap)
	}
	if c.MatchThreshold < -1 || c.MatchThreshold > 1 {
		return fmt.Errorf("match_threshold must be within [-1, 1], got %v", c.MatchThreshold)
	}
	if c.MatchCount <= 0 {
		return fmt.Errorf("match_count must be positive, got %d", c.MatchCount)
	}
	if c.EmbeddingDims <= 0 {
		return fmt.Errorf("embedding_dims must be positive, got %d", c.EmbeddingDims)
	}
	return nil
}

// ChunkIndexName 返回 Chunk 索引名称
func (c *Config) ChunkIndexName() string {
	return c.IndexPrefix + "_chunk_index"
}

// HasCache 是否启用缓存
func (c *Config) HasCache() bool {
	return c.CacheTTL > 0
}

// MaxFileBytes 上传大小上限（字节）
func (c *Config) MaxFileBytes() int64 {
	return int64(c.MaxFileSize) << 20
}
