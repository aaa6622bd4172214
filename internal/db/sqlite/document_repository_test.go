package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain/rag"
)

func newTestRepository(t *testing.T) *DocumentRepository {
	t.Helper()
	r, err := Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func newDoc(id string, uploaded time.Time) *rag.Document {
	return &rag.Document{
		ID:         id,
		Name:       id + ".pdf",
		MimeType:   rag.MimePDF,
		FileType:   rag.FileTypePDF,
		StorageKey: id,
		Size:       42,
		UploadedAt: uploaded,
	}
}

func TestDocumentLifecycle(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()

	base := time.Now().Truncate(time.Millisecond)
	require.NoError(t, r.CreateDocument(ctx, newDoc("old", base.Add(-time.Hour))))
	require.NoError(t, r.CreateDocument(ctx, newDoc("new", base)))

	doc, err := r.GetDocument(ctx, "new")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, rag.StatusProcessing, doc.Status)
	assert.Equal(t, rag.FileTypePDF, doc.FileType)
	assert.Equal(t, int64(42), doc.Size)
	assert.True(t, base.Equal(doc.UploadedAt))
	assert.Nil(t, doc.DeletedAt)

	require.NoError(t, r.UpdateDocumentStatus(ctx, "new", rag.StatusReady, 3, ""))
	require.NoError(t, r.UpdateDocumentStatus(ctx, "old", rag.StatusError, 0, "parse failed"))

	docs, err := r.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "new", docs[0].ID)
	assert.Equal(t, 3, docs[0].ChunkCount)
	assert.Equal(t, rag.StatusReady, docs[0].Status)
	assert.Equal(t, "old", docs[1].ID)
	assert.Equal(t, "parse failed", docs[1].Error)
}

func TestSoftDeleteDocument(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()
	require.NoError(t, r.CreateDocument(ctx, newDoc("a", time.Now())))

	deleted, err := r.SoftDeleteDocument(ctx, "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = r.SoftDeleteDocument(ctx, "a")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = r.SoftDeleteDocument(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, deleted)

	doc, err := r.GetDocument(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, doc)

	docs, err := r.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestTransitionDocumentStatusIsConditional(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, r.CreateDocument(ctx, newDoc("d1", time.Now())))
	require.NoError(t, r.UpdateDocumentStatus(ctx, "d1", rag.StatusError, 0, "parse failed"))

	ok, err := r.TransitionDocumentStatus(ctx, "d1", rag.StatusError, rag.StatusProcessing)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.TransitionDocumentStatus(ctx, "d1", rag.StatusError, rag.StatusProcessing)
	require.NoError(t, err)
	assert.False(t, ok, "second transition from a stale status must not apply")

	doc, err := r.GetDocument(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, rag.StatusProcessing, doc.Status)
	assert.Empty(t, doc.Error)

	ok, err = r.TransitionDocumentStatus(ctx, "missing", rag.StatusError, rag.StatusProcessing)
	require.NoError(t, err)
	assert.False(t, ok)
}
