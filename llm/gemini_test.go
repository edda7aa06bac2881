package llm

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
		Model:   "gemini-2.0-flash-lite",
	}, nil)
}

func TestCompletion(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Contains(t, r.URL.Path, "gemini-2.0-flash-lite:generateContent")

		var body geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Contents, 1)
		assert.Equal(t, "user", body.Contents[0].Role)

		json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{
				Content:      geminiContent{Role: "model", Parts: []geminiPart{{Text: "hello "}, {Text: "world"}}},
				FinishReason: "STOP",
			}},
			UsageMetadata: &geminiUsageMetadata{PromptTokenCount: 3, CandidatesTokenCount: 2, TotalTokenCount: 5},
		})
	})

	resp, err := p.Completion(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello world", FirstText(resp))
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
}

func TestCompletionSystemInstruction(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var body geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.NotNil(t, body.SystemInstruction)
		assert.Equal(t, "be terse", body.SystemInstruction.Parts[0].Text)
		// system 消息不出现在 contents 中
		require.Len(t, body.Contents, 1)

		json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{Content: geminiContent{Parts: []geminiPart{{Text: "ok"}}}}},
		})
	})

	_, err := p.Completion(context.Background(), &ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "be terse"},
			{Role: RoleUser, Content: "hi"},
		},
	})
	require.NoError(t, err)
}

func TestCompletionErrorMapping(t *testing.T) {
	tests := []struct {
		status   int
		wantCode types.ErrorCode
	}{
		{http.StatusUnauthorized, types.ErrUnauthorized},
		{http.StatusTooManyRequests, types.ErrRateLimited},
		{http.StatusBadRequest, types.ErrInvalidRequest},
		{http.StatusInternalServerError, types.ErrUpstreamError},
	}

	for _, tt := range tests {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"code": tt.status, "message": "boom"},
			})
		})

		_, err := p.Completion(context.Background(), &ChatRequest{
			Messages: []Message{{Role: RoleUser, Content: "hi"}},
		})
		require.Error(t, err)
		assert.Equal(t, tt.wantCode, types.GetErrorCode(err), "status %d", tt.status)
	}
}

func TestStream(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":streamGenerateContent")
		// Gemini 流式响应：JSON 数组逐行输出
		w.Write([]byte("[{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"foo\"}]}}]}\n"))
		w.Write([]byte(",{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"bar\"}]},\"finishReason\":\"STOP\"}]}\n"))
		w.Write([]byte("]\n"))
	})

	ch, err := p.Stream(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	var texts []string
	var finish string
	for chunk := range ch {
		require.Nil(t, chunk.Err)
		texts = append(texts, chunk.Delta.Content)
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
	}
	assert.Equal(t, []string{"foo", "bar"}, texts)
	assert.Equal(t, "stop", finish)
}

func TestStreamContextCancel(t *testing.T) {
	block := make(chan struct{})
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"first\"}]}}]}\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-block
	})
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := p.Stream(ctx, &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)

	first, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, "first", first.Delta.Content)

	cancel()
	// 通道最终关闭，不再阻塞
	for range ch {
	}
}

func TestHealthCheck(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	status, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
}
