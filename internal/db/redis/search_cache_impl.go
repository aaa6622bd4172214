package redisdb

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"docqa/internal/domain/rag"
	applog "docqa/internal/platform/log"
)

const defaultCachePrefix = "docqa:search:"

// generationSuffix 代数计数器的 key 后缀，不带过期时间
const generationSuffix = "generation"

// SearchCache 检索结果 Redis 缓存
type SearchCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
}

// NewSearchCache 创建检索缓存
func NewSearchCache(rdb *redis.Client, ttlSeconds int) *SearchCache {
	ttl := 5 * time.Minute
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	return &SearchCache{
		redis:  rdb,
		ttl:    ttl,
		prefix: defaultCachePrefix,
	}
}

// Generation 读取当前代数，key 不存在时为 0
func (c *SearchCache) Generation(ctx context.Context) (int64, bool) {
	gen, err := c.redis.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		applog.Warn("[RAG/Cache] Failed to read generation, bypassing cache", "error", err)
		return 0, false
	}
	return gen, true
}

// Get 从缓存获取检索结果
func (c *SearchCache) Get(ctx context.Context, gen int64, req *rag.RetrieveRequest) ([]rag.RetrievedChunk, bool) {
	key := c.cacheKey(gen, req)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}

	var result []rag.RetrievedChunk
	if err := json.Unmarshal(data, &result); err != nil {
		applog.Warn("[RAG/Cache] Failed to unmarshal cached result", "error", err)
		return nil, false
	}
	if result == nil {
		result = []rag.RetrievedChunk{}
	}

	applog.Debug("[RAG/Cache] Hit", "key", key)
	return result, true
}

// Set 写入检索结果到缓存
func (c *SearchCache) Set(ctx context.Context, gen int64, req *rag.RetrieveRequest, result []rag.RetrievedChunk) {
	key := c.cacheKey(gen, req)
	data, err := json.Marshal(result)
	if err != nil {
		return
	}

	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		applog.Warn("[RAG/Cache] Failed to set cache", "key", key, "error", err)
	}
}

// InvalidateAll 文档增删后递增代数，再清理旧条目
//
// 代数递增之后旧 key 已不可达，清理失败只影响内存占用。
func (c *SearchCache) InvalidateAll(ctx context.Context) {
	genKey := c.generationKey()
	if err := c.redis.Incr(ctx, genKey).Err(); err != nil {
		applog.Warn("[RAG/Cache] Failed to bump generation", "error", err)
	}

	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		if key := iter.Val(); key != genKey {
			keys = append(keys, key)
		}
	}
	if err := iter.Err(); err != nil {
		applog.Warn("[RAG/Cache] Scan failed", "error", err)
	}
	if len(keys) > 0 {
		if err := c.redis.Del(ctx, keys...).Err(); err != nil {
			applog.Warn("[RAG/Cache] Invalidate failed", "error", err)
			return
		}
		applog.Info("[RAG/Cache] All cache invalidated", "keys_deleted", len(keys))
	}
}

func (c *SearchCache) generationKey() string {
	return c.prefix + generationSuffix
}

// cacheKey 生成缓存 key = prefix + gen + ":" + hash(query + fileIDs + threshold + limit)
func (c *SearchCache) cacheKey(gen int64, req *rag.RetrieveRequest) string {
	ids := make([]string, len(req.FileIDs))
	copy(ids, req.FileIDs)
	sort.Strings(ids)

	raw := fmt.Sprintf("%s|%s|%g|%d",
		req.Query,
		strings.Join(ids, ","),
		req.Threshold,
		req.Limit,
	)

	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%d:%x", c.prefix, gen, hash[:12])
}
