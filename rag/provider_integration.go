package rag

import (
	"context"

	"github.com/BaSui01/ragserve/llm"
	"github.com/BaSui01/ragserve/llm/embedding"
)

// EmbeddingProvider 检索侧需要的向量化能力。
// embedding.Provider 是其超集，直接满足本接口。
type EmbeddingProvider interface {
	EmbedQuery(ctx context.Context, query string) ([]float64, error)
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)
	Name() string
}

var _ EmbeddingProvider = (embedding.Provider)(nil)

// CompletionClient 生成侧需要的模型能力：一次性补全与流式补全。
// 重写器、难度估计器与回答生成器都通过它访问模型。
type CompletionClient interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
	StreamComplete(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error)
	Name() string
}

// ProviderClient 把 llm.Provider 适配成 CompletionClient。
type ProviderClient struct {
	provider llm.Provider
	model    string
}

// NewProviderClient 创建适配器。model 为空时由底层 provider 决定。
func NewProviderClient(provider llm.Provider, model string) *ProviderClient {
	return &ProviderClient{provider: provider, model: model}
}

func (c *ProviderClient) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	resp, err := c.provider.Completion(ctx, &llm.ChatRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	return llm.FirstText(resp), nil
}

func (c *ProviderClient) StreamComplete(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	return c.provider.Stream(ctx, &llm.ChatRequest{
		Model:    c.model,
		Messages: messages,
	})
}

func (c *ProviderClient) Name() string {
	return c.provider.Name()
}
