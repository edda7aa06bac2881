package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/ragserve/llm"
)

const rewriteSystemPrompt = `You are a helpful assistant that takes a user's query and turns it into a short statement or paragraph so that it can be used in a semantic similarity search on a vector database to return the most similar chunks of content based on the rewritten query.
Resolve pronouns and vague references using the conversation history when one is provided.
Answer in the same language as the query. Please make no comments, just return the rewritten query.`

// QueryRewriter 把原始问题改写为自包含的检索语句。
// 改写结果只用于向量检索，生成阶段仍使用原始问题。
type QueryRewriter struct {
	client CompletionClient
	logger *zap.Logger
}

// NewQueryRewriter 创建改写器。logger 可为 nil。
func NewQueryRewriter(client CompletionClient, logger *zap.Logger) *QueryRewriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryRewriter{
		client: client,
		logger: logger.With(zap.String("component", "query_rewriter")),
	}
}

// Rewrite 执行一次改写。history 为空表示新会话。
// 模型调用失败直接上抛，由调用方决定整个请求是否失败。
func (r *QueryRewriter) Rewrite(ctx context.Context, query, history string) (string, error) {
	var user strings.Builder
	if strings.TrimSpace(history) != "" {
		user.WriteString("conversation history:\n")
		user.WriteString(history)
		user.WriteString("\n\n")
	}
	fmt.Fprintf(&user, "query: %s", query)

	out, err := r.client.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: rewriteSystemPrompt},
		{Role: llm.RoleUser, Content: user.String()},
	})
	if err != nil {
		return "", fmt.Errorf("rewrite query: %w", err)
	}

	rewritten := strings.TrimSpace(out)
	if rewritten == "" {
		// 模型偶发空响应时退回原问题，检索仍可进行。
		r.logger.Warn("rewriter returned empty output, using raw query")
		return query, nil
	}

	r.logger.Debug("query rewritten",
		zap.String("raw", query),
		zap.String("rewritten", rewritten))
	return rewritten, nil
}
