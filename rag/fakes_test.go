package rag

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/BaSui01/ragserve/llm"
	"github.com/BaSui01/ragserve/types"
)

func upstreamTestErr() *types.Error {
	return types.NewError(types.ErrUpstreamError, "stream interrupted")
}

// fakeClient 可编程的 CompletionClient 测试替身。
type fakeClient struct {
	completeFn func(ctx context.Context, messages []llm.Message) (string, error)
	streamFn   func(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error)

	completeCalls int
	lastMessages  []llm.Message
}

func (f *fakeClient) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	f.completeCalls++
	f.lastMessages = messages
	if f.completeFn == nil {
		return "", fmt.Errorf("unexpected Complete call")
	}
	return f.completeFn(ctx, messages)
}

func (f *fakeClient) StreamComplete(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	f.lastMessages = messages
	if f.streamFn == nil {
		return nil, fmt.Errorf("unexpected StreamComplete call")
	}
	return f.streamFn(ctx, messages)
}

func (f *fakeClient) Name() string { return "fake" }

// textStream 把片段包装成带 finish 标记的流。
func textStream(fragments ...string) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk, len(fragments)+1)
	for _, frag := range fragments {
		ch <- llm.StreamChunk{Delta: llm.Message{Role: llm.RoleAssistant, Content: frag}}
	}
	ch <- llm.StreamChunk{FinishReason: "stop"}
	close(ch)
	return ch
}

// hashEmbedder 确定性的向量化替身：同词共享分量，词面重合的
// 文本向量更接近，足够驱动真实的余弦检索。
type hashEmbedder struct{}

func (hashEmbedder) embed(text string) []float64 {
	const dims = 64
	v := make([]float64, dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		v[int(h.Sum32())%dims] += 1
	}
	return v
}

func (e hashEmbedder) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return e.embed(query), nil
}

func (e hashEmbedder) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	out := make([][]float64, len(documents))
	for i, d := range documents {
		out[i] = e.embed(d)
	}
	return out, nil
}

func (hashEmbedder) Name() string { return "hash" }

// memRegistry 进程内 FileRegistry 替身。
type memRegistry struct {
	files map[string]FileRecord
}

func newMemRegistry() *memRegistry {
	return &memRegistry{files: make(map[string]FileRecord)}
}

func (r *memRegistry) CreateFile(ctx context.Context, rec FileRecord) error {
	r.files[rec.ID] = rec
	return nil
}

func (r *memRegistry) GetFile(ctx context.Context, fileID string) (FileRecord, error) {
	rec, ok := r.files[fileID]
	if !ok {
		return FileRecord{}, fmt.Errorf("file %s not found", fileID)
	}
	return rec, nil
}

func (r *memRegistry) ListFiles(ctx context.Context) ([]FileRecord, error) {
	out := make([]FileRecord, 0, len(r.files))
	for _, rec := range r.files {
		out = append(out, rec)
	}
	return out, nil
}

func (r *memRegistry) SetFileActive(ctx context.Context, fileID string, active bool) error {
	rec, ok := r.files[fileID]
	if !ok {
		return fmt.Errorf("file %s not found", fileID)
	}
	rec.Active = active
	r.files[fileID] = rec
	return nil
}

func (r *memRegistry) DeleteFile(ctx context.Context, fileID string) error {
	delete(r.files, fileID)
	return nil
}

// activeDoc 构造测试用块。
func activeDoc(id, content string, active bool) Document {
	return Document{
		ID:      id,
		Content: content,
		Metadata: map[string]any{
			MetaFileID:   "file-1",
			MetaFilename: "test.txt",
			MetaActive:   active,
		},
	}
}
