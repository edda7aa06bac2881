package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float64{1, 0}, []float64{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float64{0, 0}, []float64{1, 1}))
	assert.Equal(t, 0.0, cosineSimilarity([]float64{1}, []float64{1, 2}))
	assert.Equal(t, 0.0, cosineSimilarity(nil, nil))
}

func TestInMemoryStoreSearchOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryVectorStore(nil)

	require.NoError(t, store.Insert(ctx, []Document{
		{ID: "far", Content: "far", Embedding: []float64{0, 1}},
		{ID: "near", Content: "near", Embedding: []float64{1, 0.1}},
		{ID: "exact", Content: "exact", Embedding: []float64{1, 0}},
	}))

	got, err := store.SearchWithScore(ctx, []float64{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "exact", got[0].Document.ID)
	assert.Equal(t, "near", got[1].Document.ID)
	assert.Less(t, got[0].Distance, got[1].Distance)
}

func TestInMemoryStoreRejectsFilter(t *testing.T) {
	store := NewInMemoryVectorStore(nil)
	_, err := store.SearchWithScore(context.Background(), []float64{1}, 3, &SearchFilter{
		Equals: map[string]any{MetaActive: true},
	})
	assert.ErrorIs(t, err, ErrFilterUnsupported)
}

func TestInMemoryStoreDeleteAndCount(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryVectorStore(nil)

	require.NoError(t, store.Insert(ctx, []Document{
		{ID: "a", Embedding: []float64{1}},
		{ID: "b", Embedding: []float64{1}},
	}))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.Delete(ctx, []string{"a", "missing"}))
	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInMemoryStoreGet(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryVectorStore(nil)

	doc := activeDoc("keep", "content body", true)
	doc.Embedding = []float64{0.5, 0.5}
	require.NoError(t, store.Insert(ctx, []Document{doc}))

	got, err := store.Get(ctx, []string{"keep", "absent"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "keep", got[0].ID)
	assert.Equal(t, "content body", got[0].Content)
	assert.True(t, got[0].IsActive())
}

func TestInMemoryStoreInsertOverwritesByID(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryVectorStore(nil)

	require.NoError(t, store.Insert(ctx, []Document{activeDoc("x", "old", true)}))
	require.NoError(t, store.Insert(ctx, []Document{activeDoc("x", "new", false)}))

	got, err := store.Get(ctx, []string{"x"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Content)
	assert.False(t, got[0].IsActive())

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
