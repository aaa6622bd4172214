package chromemdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain/rag"
)

func record(fileID string, index int, text string, vec ...float32) rag.ChunkRecord {
	return rag.ChunkRecord{
		ID:        rag.ChunkID(fileID, index),
		FileID:    fileID,
		Index:     index,
		Text:      text,
		Embedding: vec,
	}
}

func newSeededStore(t *testing.T) *ChunkStore {
	t.Helper()
	s, err := NewChunkStore("")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.SaveChunks(ctx, []rag.ChunkRecord{
		record("a", 0, "refunds", 1, 0, 0),
		record("a", 1, "mostly refunds", 0.9, 0.1, 0),
		record("a", 2, "shipping", 0, 1, 0),
	}))
	require.NoError(t, s.SaveChunks(ctx, []rag.ChunkRecord{
		record("b", 0, "refunds in b", 0.95, 0.05, 0),
	}))
	return s
}

func TestChromemSearchOrdersAndThresholds(t *testing.T) {
	s := newSeededStore(t)

	got, err := s.Search(context.Background(), rag.VectorQuery{Vector: []float32{1, 0, 0}, Threshold: 0.5, Limit: 10})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "a_chunk_0", got[0].ChunkID)
	for i, c := range got {
		assert.GreaterOrEqual(t, c.Similarity, 0.5)
		if i > 0 {
			assert.GreaterOrEqual(t, got[i-1].Similarity, c.Similarity)
		}
	}
}

func TestChromemSearchLimitAndFileFilter(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	got, err := s.Search(ctx, rag.VectorQuery{Vector: []float32{1, 0, 0}, Threshold: 0, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = s.Search(ctx, rag.VectorQuery{Vector: []float32{1, 0, 0}, Threshold: 0.5, Limit: 10, FileIDs: []string{"b"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].FileID)
	assert.Equal(t, "refunds in b", got[0].Text)
}

func TestChromemSoftDeleteHidesChunks(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	require.NoError(t, s.SoftDeleteByFile(ctx, "a"))
	require.NoError(t, s.SoftDeleteByFile(ctx, "a"))
	require.NoError(t, s.SoftDeleteByFile(ctx, "unknown"))

	got, err := s.Search(ctx, rag.VectorQuery{Vector: []float32{1, 0, 0}, Threshold: 0, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].FileID)
}

func TestChromemEmptyStore(t *testing.T) {
	s, err := NewChunkStore("")
	require.NoError(t, err)

	got, err := s.Search(context.Background(), rag.VectorQuery{Vector: []float32{1, 0}, Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, got)
}
