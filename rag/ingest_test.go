package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/ragserve/types"
)

func newTestIngestor(t *testing.T) (*Ingestor, *InMemoryVectorStore, *memRegistry) {
	t.Helper()
	store := NewInMemoryVectorStore(nil)
	registry := newMemRegistry()
	splitter := NewTextSplitter(ChunkingConfig{ChunkSize: 50, ChunkOverlap: 0, MinChunkSize: 1}, nil, nil)
	return NewIngestor(splitter, hashEmbedder{}, store, registry, nil), store, registry
}

func TestIngestTextIndexesChunksWithMetadata(t *testing.T) {
	ctx := context.Background()
	ing, store, registry := newTestIngestor(t)

	text := strings.Repeat("glaciers carve valleys over time. ", 5)
	rec, err := ing.IngestText(ctx, "glaciers.txt", text)
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "glaciers.txt", rec.Filename)
	assert.True(t, rec.Active)
	assert.Greater(t, rec.ChunkCount, 1)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec.ChunkCount, n)

	docs, err := store.Get(ctx, chunkIDs(rec))
	require.NoError(t, err)
	require.Len(t, docs, rec.ChunkCount)
	for _, d := range docs {
		assert.Equal(t, rec.ID, d.FileID())
		assert.Equal(t, "glaciers.txt", d.Filename())
		assert.True(t, d.IsActive())
		assert.NotEmpty(t, d.Embedding)
	}

	stored, err := registry.GetFile(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ChunkCount, stored.ChunkCount)
}

func TestIngestTextEmptyContent(t *testing.T) {
	ing, _, _ := newTestIngestor(t)
	_, err := ing.IngestText(context.Background(), "empty.txt", "   ")
	require.Error(t, err)
	assert.Equal(t, types.ErrEmptyContent, types.GetErrorCode(err))
}

func TestSetFileActiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	ing, store, _ := newTestIngestor(t)
	retriever := NewCandidateRetriever(store, hashEmbedder{}, DefaultRetrieverConfig(), nil, nil)

	rec, err := ing.IngestText(ctx, "glaciers.txt", "glacier movement is driven by gravity")
	require.NoError(t, err)

	found, err := retriever.Retrieve(ctx, "glacier movement", 1)
	require.NoError(t, err)
	require.Len(t, found, 1)
	original := found[0].Document

	// 停用后块从检索结果消失，但索引条目仍在。
	require.NoError(t, ing.SetFileActive(ctx, rec.ID, false))

	found, err = retriever.Retrieve(ctx, "glacier movement", 1)
	require.NoError(t, err)
	assert.Empty(t, found)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec.ChunkCount, n, "deactivation must not delete index entries")

	// 重新启用后块原样回归：ID、内容、向量都不变。
	require.NoError(t, ing.SetFileActive(ctx, rec.ID, true))

	found, err = retriever.Retrieve(ctx, "glacier movement", 1)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, original.ID, found[0].Document.ID)
	assert.Equal(t, original.Content, found[0].Document.Content)
	assert.Equal(t, original.Embedding, found[0].Document.Embedding)
}

func TestSetFileActiveNoopWhenUnchanged(t *testing.T) {
	ctx := context.Background()
	ing, _, registry := newTestIngestor(t)

	rec, err := ing.IngestText(ctx, "glaciers.txt", "glacier movement is driven by gravity")
	require.NoError(t, err)

	require.NoError(t, ing.SetFileActive(ctx, rec.ID, true))
	got, err := registry.GetFile(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
}

func TestDeleteFileRemovesChunksAndRecord(t *testing.T) {
	ctx := context.Background()
	ing, store, registry := newTestIngestor(t)

	rec, err := ing.IngestText(ctx, "glaciers.txt", "glacier movement is driven by gravity")
	require.NoError(t, err)

	require.NoError(t, ing.DeleteFile(ctx, rec.ID))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = registry.GetFile(ctx, rec.ID)
	assert.Error(t, err)
}

func TestChunkIDsAreStable(t *testing.T) {
	rec := FileRecord{ID: "file-x", ChunkCount: 3}
	assert.Equal(t, []string{"file-x_chunk_0", "file-x_chunk_1", "file-x_chunk_2"}, chunkIDs(rec))
}
