package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/ragserve/types"
)

// 查询结果记账用的 outcome 标签。
const (
	outcomeOK        = "ok"
	outcomeEmpty     = "empty"
	outcomeError     = "error"
	outcomeCancelled = "cancelled"
)

// QueryResult 一次阻塞式查询的完整产物。
type QueryResult struct {
	Answer    string            `json:"answer"`
	Citations []RankedCandidate `json:"citations"`
	// Rewritten 改写后的检索语句，诊断接口。
	Rewritten  string `json:"rewritten_query"`
	Difficulty int    `json:"difficulty"`
}

// StreamResult 流式查询的产物：引用立即可用，回答经通道逐段送达。
// Chunks 关闭即流结束；中途取消不会产生记忆写入。
type StreamResult struct {
	Citations  []RankedCandidate
	Rewritten  string
	Difficulty int
	Chunks     <-chan AnswerChunk
}

// RetrievalOrchestrator 把改写、难度估计、检索、重排、生成与
// 会话记忆串成一条请求级流水线。一个实例对应一个逻辑会话，
// 记忆耦合的操作串行化执行。
type RetrievalOrchestrator struct {
	rewriter  *QueryRewriter
	estimator *DifficultyEstimator
	retriever *CandidateRetriever
	ranker    *DocumentRanker
	generator *AnswerGenerator
	memory    ConversationMemory
	metrics   PipelineMetrics
	tracer    trace.Tracer
	logger    *zap.Logger

	// 保护 记忆读 → 生成 → 记忆写 的完整周期。
	mu sync.Mutex
}

// OrchestratorDeps 编排器的全部依赖，启动时一次性注入。
type OrchestratorDeps struct {
	Rewriter  *QueryRewriter
	Estimator *DifficultyEstimator
	Retriever *CandidateRetriever
	Ranker    *DocumentRanker
	Generator *AnswerGenerator
	Memory    ConversationMemory
	Metrics   PipelineMetrics
	Logger    *zap.Logger
}

// NewRetrievalOrchestrator 创建编排器。Metrics、Logger 可为 nil。
func NewRetrievalOrchestrator(deps OrchestratorDeps) *RetrievalOrchestrator {
	if deps.Metrics == nil {
		deps.Metrics = NopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &RetrievalOrchestrator{
		rewriter:  deps.Rewriter,
		estimator: deps.Estimator,
		retriever: deps.Retriever,
		ranker:    deps.Ranker,
		generator: deps.Generator,
		memory:    deps.Memory,
		metrics:   deps.Metrics,
		tracer:    otel.Tracer("ragserve/rag"),
		logger:    deps.Logger.With(zap.String("component", "orchestrator")),
	}
}

// pipelineOutput 检索子流水线（改写→难度→检索→重排）的产物。
type pipelineOutput struct {
	rewritten  string
	difficulty int
	ranked     []RankedCandidate
}

// runRetrieval 执行不含生成的检索子流水线。
// 改写与难度估计没有数据依赖，并发执行；难度估计使用原始问题。
func (o *RetrievalOrchestrator) runRetrieval(ctx context.Context, query, history string) (*pipelineOutput, error) {
	ctx, span := o.tracer.Start(ctx, "rag.retrieval_pipeline")
	defer span.End()

	var (
		rewritten  string
		difficulty int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		out, err := o.rewriter.Rewrite(gctx, query, history)
		o.metrics.ObserveStage("rewrite", time.Since(start))
		if err != nil {
			return err
		}
		rewritten = out
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		difficulty = o.estimator.Estimate(gctx, query)
		o.metrics.ObserveStage("difficulty", time.Since(start))
		o.metrics.ObserveDifficulty(difficulty)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("rag.difficulty", difficulty),
		attribute.Int("rag.fan_out", o.retriever.FanOut(difficulty)),
	)

	start := time.Now()
	candidates, err := o.retriever.Retrieve(ctx, rewritten, difficulty)
	o.metrics.ObserveStage("retrieve", time.Since(start))
	if err != nil {
		return nil, err
	}
	o.metrics.ObserveCandidates(len(candidates))

	start = time.Now()
	ranked := o.ranker.Rank(candidates, rewritten)
	o.metrics.ObserveStage("rank", time.Since(start))

	span.SetAttributes(attribute.Int("rag.ranked", len(ranked)))
	return &pipelineOutput{
		rewritten:  rewritten,
		difficulty: difficulty,
		ranked:     ranked,
	}, nil
}

// GetRetrievedDocuments 用显式历史执行检索子流水线，不生成、不写记忆。
func (o *RetrievalOrchestrator) GetRetrievedDocuments(ctx context.Context, query, history string) ([]RankedCandidate, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	out, err := o.runRetrieval(ctx, query, history)
	if err != nil {
		return nil, err
	}
	return out.ranked, nil
}

// GetCitationsForQuery 用当前会话记忆作历史，只读执行检索子流水线。
func (o *RetrievalOrchestrator) GetCitationsForQuery(ctx context.Context, query string) ([]RankedCandidate, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	history, err := o.memory.Read(ctx)
	if err != nil {
		return nil, err
	}
	out, err := o.runRetrieval(ctx, query, history)
	if err != nil {
		return nil, err
	}
	return out.ranked, nil
}

// ProcessQuery 阻塞式全流水线：检索、生成、提交记忆。
// 零候选直接返回固定兜底回答，不调模型、不写记忆。
func (o *RetrievalOrchestrator) ProcessQuery(ctx context.Context, query string) (*QueryResult, error) {
	if err := validateQuery(query); err != nil {
		o.metrics.IncQueries(outcomeError)
		return nil, err
	}

	ctx, span := o.tracer.Start(ctx, "rag.process_query")
	defer span.End()

	o.mu.Lock()
	defer o.mu.Unlock()

	history, err := o.memory.Read(ctx)
	if err != nil {
		o.metrics.IncQueries(outcomeError)
		return nil, err
	}

	out, err := o.runRetrieval(ctx, query, history)
	if err != nil {
		o.metrics.IncQueries(outcomeError)
		return nil, err
	}

	if len(out.ranked) == 0 {
		o.metrics.IncQueries(outcomeEmpty)
		o.logger.Info("no active candidates, returning fallback answer",
			zap.String("query", query))
		return &QueryResult{
			Answer:     FallbackAnswer,
			Citations:  []RankedCandidate{},
			Rewritten:  out.rewritten,
			Difficulty: out.difficulty,
		}, nil
	}

	prompt := o.generator.BuildPrompt(query, history, out.ranked)

	start := time.Now()
	answer, err := o.generator.Generate(ctx, prompt)
	o.metrics.ObserveStage("generate", time.Since(start))
	if err != nil {
		o.metrics.IncQueries(outcomeError)
		return nil, err
	}

	if err := o.commit(ctx, query, answer); err != nil {
		o.metrics.IncQueries(outcomeError)
		return nil, err
	}

	o.metrics.IncQueries(outcomeOK)
	return &QueryResult{
		Answer:     answer,
		Citations:  out.ranked,
		Rewritten:  out.rewritten,
		Difficulty: out.difficulty,
	}, nil
}

// ProcessQueryStream 流式全流水线。记忆提交只在流被完整消费后发生：
// 消费方中途断开则视为失败请求，历史保持不变。
func (o *RetrievalOrchestrator) ProcessQueryStream(ctx context.Context, query string) (*StreamResult, error) {
	if err := validateQuery(query); err != nil {
		o.metrics.IncQueries(outcomeError)
		return nil, err
	}

	ctx, span := o.tracer.Start(ctx, "rag.process_query_stream")

	o.mu.Lock()

	release := func() {
		o.mu.Unlock()
		span.End()
	}

	history, err := o.memory.Read(ctx)
	if err != nil {
		release()
		o.metrics.IncQueries(outcomeError)
		return nil, err
	}

	out, err := o.runRetrieval(ctx, query, history)
	if err != nil {
		release()
		o.metrics.IncQueries(outcomeError)
		return nil, err
	}

	if len(out.ranked) == 0 {
		release()
		o.metrics.IncQueries(outcomeEmpty)
		chunks := make(chan AnswerChunk, 2)
		chunks <- AnswerChunk{Text: FallbackAnswer}
		chunks <- AnswerChunk{Done: true}
		close(chunks)
		return &StreamResult{
			Citations:  []RankedCandidate{},
			Rewritten:  out.rewritten,
			Difficulty: out.difficulty,
			Chunks:     chunks,
		}, nil
	}

	prompt := o.generator.BuildPrompt(query, history, out.ranked)
	upstream, err := o.generator.GenerateStream(ctx, prompt)
	if err != nil {
		release()
		o.metrics.IncQueries(outcomeError)
		return nil, err
	}

	forwarded := make(chan AnswerChunk)
	go func() {
		defer release()
		defer close(forwarded)

		start := time.Now()
		var answer strings.Builder
		completed := false

	drain:
		for chunk := range upstream {
			if chunk.Err != nil {
				select {
				case forwarded <- chunk:
				case <-ctx.Done():
				}
				break drain
			}
			if chunk.Done {
				completed = true
				select {
				case forwarded <- chunk:
				case <-ctx.Done():
					completed = false
				}
				break drain
			}

			select {
			case forwarded <- chunk:
				answer.WriteString(chunk.Text)
			case <-ctx.Done():
				break drain
			}
		}
		o.metrics.ObserveStage("generate", time.Since(start))

		if !completed {
			// 未完整生成的回答不进入历史。
			o.metrics.IncQueries(outcomeCancelled)
			o.logger.Info("stream ended before completion, memory unchanged",
				zap.String("query", query))
			return
		}

		// 提交脱离请求 ctx：消费方在收到最后一个片段后立即断开
		// 不应使这次已完成的生成丢失。
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := o.commit(commitCtx, query, answer.String()); err != nil {
			o.metrics.IncQueries(outcomeError)
			return
		}
		o.metrics.IncQueries(outcomeOK)
	}()

	return &StreamResult{
		Citations:  out.ranked,
		Rewritten:  out.rewritten,
		Difficulty: out.difficulty,
		Chunks:     forwarded,
	}, nil
}

// ClearMemory 清空当前会话历史。
func (o *RetrievalOrchestrator) ClearMemory(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.memory.Clear(ctx)
}

func (o *RetrievalOrchestrator) commit(ctx context.Context, question, answer string) error {
	if err := o.memory.Write(ctx, question, answer); err != nil {
		o.logger.Error("memory commit failed", zap.Error(err))
		return fmt.Errorf("commit conversation turn: %w", err)
	}
	return nil
}

func validateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return types.NewError(types.ErrInvalidRequest, "query must not be empty")
	}
	return nil
}
