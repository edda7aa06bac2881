package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/ragserve/rag"
	"github.com/BaSui01/ragserve/rag/loader"
)

// serverEnv 一套完整接线的 API 测试环境，路由表与线上一致。
type serverEnv struct {
	mux      *http.ServeMux
	store    *rag.InMemoryVectorStore
	memory   *rag.WindowMemory
	registry *memRegistry
	ingestor *rag.Ingestor
	generate *fakeClient
	stream   *StreamHandler
}

func newServerEnv(t *testing.T, rewrite, difficulty, generate *fakeClient) *serverEnv {
	t.Helper()

	store := rag.NewInMemoryVectorStore(nil)
	memory := rag.NewWindowMemory(5)
	registry := newMemRegistry()
	splitter := rag.NewTextSplitter(rag.DefaultChunkingConfig(), nil, nil)
	ingestor := rag.NewIngestor(splitter, hashEmbedder{}, store, registry, nil)
	retriever := rag.NewCandidateRetriever(store, hashEmbedder{}, rag.DefaultRetrieverConfig(), nil, nil)

	orch := rag.NewRetrievalOrchestrator(rag.OrchestratorDeps{
		Rewriter:  rag.NewQueryRewriter(rewrite, nil),
		Estimator: rag.NewDifficultyEstimator(difficulty, nil),
		Retriever: retriever,
		Ranker:    rag.NewDocumentRanker(rag.DefaultMaxDocs, nil),
		Generator: rag.NewAnswerGenerator(generate, nil),
		Memory:    memory,
	})

	uploadHandler := NewUploadHandler(loader.NewRegistry(), ingestor, nil, nil)
	fileHandler := NewFileHandler(ingestor, nil)
	queryHandler := NewQueryHandler(orch, retriever, nil)
	streamHandler := NewStreamHandler(orch, nil, nil)
	streamHandler.AllowInsecureOrigin()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload_file", uploadHandler.HandleUpload)
	mux.HandleFunc("GET /api/v1/files", fileHandler.HandleList)
	mux.HandleFunc("PATCH /api/v1/files/{id}/active", fileHandler.HandleSetActive)
	mux.HandleFunc("DELETE /api/v1/files/{id}", fileHandler.HandleDelete)
	mux.HandleFunc("POST /rag", queryHandler.HandleQuery)
	mux.HandleFunc("POST /vector_search", queryHandler.HandleVectorSearch)
	mux.HandleFunc("POST /api/v1/citations", queryHandler.HandleCitations)
	mux.HandleFunc("DELETE /api/v1/memory", queryHandler.HandleClearMemory)
	mux.HandleFunc("GET /ws/stream", streamHandler.HandleStream)

	return &serverEnv{
		mux:      mux,
		store:    store,
		memory:   memory,
		registry: registry,
		ingestor: ingestor,
		generate: generate,
		stream:   streamHandler,
	}
}

// do 执行一次请求并返回响应记录器。
func (e *serverEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

// uploadText 以 multipart 形式上传一个文本文件。
func (e *serverEnv) uploadText(t *testing.T, filename, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload_file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

// decodeData 解出统一响应信封里的 data 字段。
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.True(t, envelope.Success, "expected success envelope: %s", rec.Body.String())
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

// decodeError 解出统一响应信封里的错误码。
func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var envelope struct {
		Success bool `json:"success"`
		Error   *struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.False(t, envelope.Success)
	require.NotNil(t, envelope.Error)
	return envelope.Error.Code
}
