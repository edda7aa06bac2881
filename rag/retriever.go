package rag

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const (
	// DefaultFanOutFloor 检索扇出下限。
	DefaultFanOutFloor = 3
	// DefaultOversample 过采样倍数，给过滤与重排留出余量。
	DefaultOversample = 3
	// NeutralDistance 索引不返回分数时赋给候选的占位距离。
	NeutralDistance = 1.0
)

// RetrieverConfig 候选检索配置。
type RetrieverConfig struct {
	FanOutFloor int `json:"fan_out_floor" yaml:"fan_out_floor"`
	Oversample  int `json:"oversample" yaml:"oversample"`
}

// DefaultRetrieverConfig 默认检索配置。
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		FanOutFloor: DefaultFanOutFloor,
		Oversample:  DefaultOversample,
	}
}

// retrievalStrategy 一条检索路径。按声明顺序尝试，首个成功者胜出，
// 各路径的后置条件一致：只含活跃块，数量不超过 poolK。
type retrievalStrategy struct {
	name string
	run  func(ctx context.Context, embedding []float64, poolK int) ([]ScoredCandidate, error)
}

// CandidateRetriever 按难度确定扇出并从索引取回候选块。
// 过滤走有序降级链：服务端过滤、客户端过滤、无分数检索兜底。
type CandidateRetriever struct {
	store      VectorStore
	embedder   EmbeddingProvider
	config     RetrieverConfig
	metrics    PipelineMetrics
	logger     *zap.Logger
	strategies []retrievalStrategy
}

// NewCandidateRetriever 创建检索器。metrics、logger 可为 nil。
func NewCandidateRetriever(store VectorStore, embedder EmbeddingProvider, config RetrieverConfig, metrics PipelineMetrics, logger *zap.Logger) *CandidateRetriever {
	if config.FanOutFloor <= 0 {
		config.FanOutFloor = DefaultFanOutFloor
	}
	if config.Oversample <= 0 {
		config.Oversample = DefaultOversample
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &CandidateRetriever{
		store:    store,
		embedder: embedder,
		config:   config,
		metrics:  metrics,
		logger:   logger.With(zap.String("component", "candidate_retriever")),
	}
	r.strategies = []retrievalStrategy{
		{name: "filtered", run: r.searchFiltered},
		{name: "client_side", run: r.searchClientSide},
		{name: "unfiltered", run: r.searchUnscored},
	}
	return r
}

// FanOut 由难度计算请求条数，受下限约束。
func (r *CandidateRetriever) FanOut(difficulty int) int {
	if difficulty < r.config.FanOutFloor {
		return r.config.FanOutFloor
	}
	return difficulty
}

// Retrieve 返回与改写后查询最相关的活跃候选，按距离升序。
// 零候选返回空切片而非错误，表示没有可用的活跃内容。
func (r *CandidateRetriever) Retrieve(ctx context.Context, rewrittenQuery string, difficulty int) ([]ScoredCandidate, error) {
	requestedK := r.FanOut(difficulty)
	poolK := requestedK * r.config.Oversample

	embedding, err := r.embedder.EmbedQuery(ctx, rewrittenQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var lastErr error
	for _, strategy := range r.strategies {
		candidates, err := strategy.run(ctx, embedding, poolK)
		if err != nil {
			r.logger.Warn("retrieval strategy failed, trying next",
				zap.String("strategy", strategy.name),
				zap.Error(err))
			lastErr = err
			continue
		}

		r.metrics.IncFallback(strategy.name)
		r.logger.Debug("retrieval completed",
			zap.String("strategy", strategy.name),
			zap.Int("requested_k", requestedK),
			zap.Int("pool_k", poolK),
			zap.Int("candidates", len(candidates)))
		return candidates, nil
	}

	return nil, fmt.Errorf("all retrieval strategies failed: %w", lastErr)
}

// searchFiltered 服务端过滤路径。
func (r *CandidateRetriever) searchFiltered(ctx context.Context, embedding []float64, poolK int) ([]ScoredCandidate, error) {
	filter := &SearchFilter{Equals: map[string]any{MetaActive: true}}
	return r.store.SearchWithScore(ctx, embedding, poolK, filter)
}

// searchClientSide 无过滤检索后在客户端剔除不活跃块。
// 标志缺失与 false 同样剔除。
func (r *CandidateRetriever) searchClientSide(ctx context.Context, embedding []float64, poolK int) ([]ScoredCandidate, error) {
	candidates, err := r.store.SearchWithScore(ctx, embedding, poolK, nil)
	if err != nil {
		return nil, err
	}
	return filterActive(candidates), nil
}

// searchUnscored 兜底路径：索引的分数能力也不可用时，
// 退化为普通 top-k 并对所有幸存候选赋中性距离。
func (r *CandidateRetriever) searchUnscored(ctx context.Context, embedding []float64, poolK int) ([]ScoredCandidate, error) {
	plain, ok := r.store.(interface {
		Search(ctx context.Context, embedding []float64, topK int) ([]Document, error)
	})
	if !ok {
		return nil, fmt.Errorf("store has no plain search capability")
	}

	docs, err := plain.Search(ctx, embedding, poolK)
	if err != nil {
		return nil, err
	}

	candidates := make([]ScoredCandidate, 0, len(docs))
	for _, doc := range docs {
		candidates = append(candidates, ScoredCandidate{Document: doc, Distance: NeutralDistance})
	}
	return filterActive(candidates), nil
}

func filterActive(candidates []ScoredCandidate) []ScoredCandidate {
	out := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Document.IsActive() {
			out = append(out, c)
		}
	}
	return out
}
