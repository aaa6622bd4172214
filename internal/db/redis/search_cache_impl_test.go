package redisdb

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"docqa/internal/domain/rag"
)

func TestCacheKeyIgnoresFileOrder(t *testing.T) {
	c := NewSearchCache(nil, 0)

	a := c.cacheKey(0, &rag.RetrieveRequest{Query: "refund", FileIDs: []string{"b", "a"}, Threshold: 0.5, Limit: 5})
	b := c.cacheKey(0, &rag.RetrieveRequest{Query: "refund", FileIDs: []string{"a", "b"}, Threshold: 0.5, Limit: 5})

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, defaultCachePrefix+"0:"))
}

func TestCacheKeyVariesWithParameters(t *testing.T) {
	c := NewSearchCache(nil, 60)
	base := rag.RetrieveRequest{Query: "refund", Threshold: 0.5, Limit: 5}

	variants := []rag.RetrieveRequest{
		{Query: "shipping", Threshold: 0.5, Limit: 5},
		{Query: "refund", Threshold: 0.7, Limit: 5},
		{Query: "refund", Threshold: 0.5, Limit: 3},
		{Query: "refund", Threshold: 0.5, Limit: 5, FileIDs: []string{"a"}},
	}
	for _, v := range variants {
		assert.NotEqual(t, c.cacheKey(0, &base), c.cacheKey(0, &v))
	}
}

func TestCacheKeyIsScopedByGeneration(t *testing.T) {
	c := NewSearchCache(nil, 60)
	req := &rag.RetrieveRequest{Query: "refund", Threshold: 0.5, Limit: 5}

	before := c.cacheKey(3, req)
	after := c.cacheKey(4, req)

	assert.NotEqual(t, before, after)
	assert.True(t, strings.HasPrefix(after, defaultCachePrefix+"4:"))
	assert.NotEqual(t, c.generationKey(), before)
	assert.NotEqual(t, c.generationKey(), after)
}

func TestNewSearchCacheTTL(t *testing.T) {
	assert.Equal(t, "5m0s", NewSearchCache(nil, 0).ttl.String())
	assert.Equal(t, "1m0s", NewSearchCache(nil, 60).ttl.String())
}
