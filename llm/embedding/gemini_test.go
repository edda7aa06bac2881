package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/ragserve/types"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *GeminiProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGeminiProvider(GeminiConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	})
}

func TestEmbedQuery(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-embedding-001:batchEmbedContents")

		var body geminiBatchEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Requests, 1)
		assert.Equal(t, geminiTaskRetrievalQuery, body.Requests[0].TaskType)
		assert.Equal(t, "what is a raft", body.Requests[0].Content.Parts[0].Text)

		json.NewEncoder(w).Encode(geminiBatchEmbedResponse{
			Embeddings: []geminiContentEmbedding{{Values: []float64{0.1, 0.2, 0.3}}},
		})
	})

	emb, err := p.EmbedQuery(context.Background(), "what is a raft")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, emb)
}

func TestEmbedDocumentsTaskType(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var body geminiBatchEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Requests, 2)
		for _, req := range body.Requests {
			assert.Equal(t, geminiTaskRetrievalDocument, req.TaskType)
		}

		json.NewEncoder(w).Encode(geminiBatchEmbedResponse{
			Embeddings: []geminiContentEmbedding{
				{Values: []float64{1, 0}},
				{Values: []float64{0, 1}},
			},
		})
	})

	embs, err := p.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, embs, 2)
	assert.Equal(t, []float64{0, 1}, embs[1])
}

func TestEmbedEmptyInput(t *testing.T) {
	p := NewGeminiProvider(GeminiConfig{APIKey: "k"})
	_, err := p.Embed(context.Background(), &EmbeddingRequest{})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestEmbedUpstreamFailure(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	})

	_, err := p.EmbedQuery(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}
