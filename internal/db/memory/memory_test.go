package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain/rag"
)

func TestChunkStoreSearchFiltersAndRanks(t *testing.T) {
	ctx := context.Background()
	s := NewChunkStore()

	require.NoError(t, s.SaveChunks(ctx, []rag.ChunkRecord{
		{ID: rag.ChunkID("a", 0), FileID: "a", Index: 0, Text: "exact", Embedding: []float32{1, 0}},
		{ID: rag.ChunkID("a", 1), FileID: "a", Index: 1, Text: "close", Embedding: []float32{1, 1}},
		{ID: rag.ChunkID("b", 0), FileID: "b", Index: 0, Text: "orthogonal", Embedding: []float32{0, 1}},
	}))

	got, err := s.Search(ctx, rag.VectorQuery{Vector: []float32{1, 0}, Threshold: 0.5, Limit: 5})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "exact", got[0].Text)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-9)
	assert.Equal(t, "close", got[1].Text)
	assert.InDelta(t, 0.7071, got[1].Similarity, 1e-3)

	got, err = s.Search(ctx, rag.VectorQuery{Vector: []float32{1, 0}, Threshold: -1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "exact", got[0].Text)

	got, err = s.Search(ctx, rag.VectorQuery{Vector: []float32{1, 0}, Threshold: -1, Limit: 5, FileIDs: []string{"b"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].FileID)
}

func TestChunkStoreSoftDeleteHidesChunks(t *testing.T) {
	ctx := context.Background()
	s := NewChunkStore()
	require.NoError(t, s.SaveChunks(ctx, []rag.ChunkRecord{
		{ID: rag.ChunkID("a", 0), FileID: "a", Text: "one", Embedding: []float32{1, 0}},
		{ID: rag.ChunkID("b", 0), FileID: "b", Text: "two", Embedding: []float32{1, 0}},
	}))

	require.NoError(t, s.SoftDeleteByFile(ctx, "a"))
	assert.Equal(t, 0, s.Count("a"))
	assert.Equal(t, 1, s.Count("b"))

	got, err := s.Search(ctx, rag.VectorQuery{Vector: []float32{1, 0}, Threshold: 0, Limit: 5})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].FileID)
}

func TestChunkStoreRejectsBadVectors(t *testing.T) {
	ctx := context.Background()
	s := NewChunkStore()

	err := s.SaveChunks(ctx, []rag.ChunkRecord{{ID: "x", FileID: "x"}})
	assert.Error(t, err)
	assert.Equal(t, 0, s.Count("x"))

	require.NoError(t, s.SaveChunks(ctx, []rag.ChunkRecord{{ID: "y", FileID: "y", Embedding: []float32{1, 0, 0}}}))
	_, err = s.Search(ctx, rag.VectorQuery{Vector: []float32{1, 0}, Limit: 5})
	assert.Error(t, err)
}

func TestDocumentRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	r := NewDocumentRepository()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, r.CreateDocument(ctx, &rag.Document{ID: "old", Name: "old.pdf", Status: rag.StatusProcessing, UploadedAt: base}))
	require.NoError(t, r.CreateDocument(ctx, &rag.Document{ID: "new", Name: "new.pdf", Status: rag.StatusProcessing, UploadedAt: base.Add(time.Minute)}))

	require.NoError(t, r.UpdateDocumentStatus(ctx, "old", rag.StatusReady, 3, ""))
	doc, err := r.GetDocument(ctx, "old")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, rag.StatusReady, doc.Status)
	assert.Equal(t, 3, doc.ChunkCount)

	docs, err := r.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "new", docs[0].ID)

	deleted, err := r.SoftDeleteDocument(ctx, "old")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = r.SoftDeleteDocument(ctx, "old")
	require.NoError(t, err)
	assert.False(t, deleted)

	doc, err = r.GetDocument(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, doc)

	docs, err = r.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestBlobStoreDistinguishesEmptyFromMissing(t *testing.T) {
	ctx := context.Background()
	s := NewBlobStore()

	key, err := s.Save(ctx, "empty", nil, "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "empty", key)

	data, err := s.Get(ctx, "empty")
	require.NoError(t, err)
	assert.NotNil(t, data)
	assert.Empty(t, data)

	data, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, s.Delete(ctx, "empty"))
	require.NoError(t, s.Delete(ctx, "empty"))
	ok, err := s.Exists(ctx, "empty")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDocumentRepositoryTransitionIsConditional(t *testing.T) {
	ctx := context.Background()
	r := NewDocumentRepository()
	require.NoError(t, r.CreateDocument(ctx, &rag.Document{ID: "d1", Status: rag.StatusError, Error: "boom"}))

	ok, err := r.TransitionDocumentStatus(ctx, "d1", rag.StatusError, rag.StatusProcessing)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.TransitionDocumentStatus(ctx, "d1", rag.StatusError, rag.StatusProcessing)
	require.NoError(t, err)
	assert.False(t, ok)

	doc, err := r.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, rag.StatusProcessing, doc.Status)
	assert.Empty(t, doc.Error)

	_, err = r.SoftDeleteDocument(ctx, "d1")
	require.NoError(t, err)
	require.NoError(t, r.UpdateDocumentStatus(ctx, "d1", rag.StatusError, 0, ""))
	ok, err = r.TransitionDocumentStatus(ctx, "d1", rag.StatusError, rag.StatusProcessing)
	require.NoError(t, err)
	assert.False(t, ok, "deleted documents never transition")
}
