package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/ragserve/llm"
)

const answerPromptTemplate = `Use the context provided to answer the user's question below.
If you do not know the answer based on the context provided, tell the user that you do not know the answer to their question based on the context provided and that you are sorry.
Do not start your answer with phrases like "Based on the provided context", "According to the context" or "From the documents provided" — answer directly.
%s
context: %s

question: %s

answer: `

// FallbackAnswer 没有任何活跃上下文可用时返回的固定回答，
// 不发起模型调用，也不写入会话记忆。
const FallbackAnswer = "I'm sorry, I could not find any relevant content in the uploaded documents to answer your question."

// AnswerChunk 流式回答的一个增量片段。
// Err 非空表示流异常中断，Done 表示生成完整结束。
type AnswerChunk struct {
	Text string
	Done bool
	Err  error
}

// AnswerGenerator 组装最终提示词并调用聊天模型。
// 提示词使用原始问题而非改写版本，保留用户的措辞与语气。
type AnswerGenerator struct {
	client CompletionClient
	logger *zap.Logger
}

// NewAnswerGenerator 创建生成器。logger 可为 nil。
func NewAnswerGenerator(client CompletionClient, logger *zap.Logger) *AnswerGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnswerGenerator{
		client: client,
		logger: logger.With(zap.String("component", "answer_generator")),
	}
}

// BuildPrompt 组装提示词：角色指令、历史、上下文（块间空行分隔）、原始问题。
func (g *AnswerGenerator) BuildPrompt(rawQuery, history string, ranked []RankedCandidate) string {
	contents := make([]string, 0, len(ranked))
	for _, r := range ranked {
		contents = append(contents, r.Document.Content)
	}
	contextBlock := strings.Join(contents, "\n\n")

	historyBlock := ""
	if strings.TrimSpace(history) != "" {
		historyBlock = fmt.Sprintf("\nconversation history:\n%s\n", history)
	}

	return fmt.Sprintf(answerPromptTemplate, historyBlock, contextBlock, rawQuery)
}

// Generate 阻塞式生成完整回答。
func (g *AnswerGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	answer, err := g.client.Complete(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

// GenerateStream 流式生成。返回的通道在流结束、出错或 ctx 取消后关闭；
// 全部片段拼起来等于完整回答。转发遵循顺序：每个片段送达后才取下一个。
func (g *AnswerGenerator) GenerateStream(ctx context.Context, prompt string) (<-chan AnswerChunk, error) {
	upstream, err := g.client.StreamComplete(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("start answer stream: %w", err)
	}

	out := make(chan AnswerChunk)
	go func() {
		defer close(out)
		for chunk := range upstream {
			if chunk.Err != nil {
				select {
				case out <- AnswerChunk{Err: chunk.Err}:
				case <-ctx.Done():
				}
				return
			}

			if chunk.Delta.Content != "" {
				select {
				case out <- AnswerChunk{Text: chunk.Delta.Content}:
				case <-ctx.Done():
					return
				}
			}

			if chunk.FinishReason != "" {
				select {
				case out <- AnswerChunk{Done: true}:
				case <-ctx.Done():
				}
				return
			}
		}
		// 上游未给出 finish 标记也算正常结束。
		select {
		case out <- AnswerChunk{Done: true}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}
