package rag

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrFilterUnsupported 索引不支持服务端过滤时由 SearchWithScore 返回。
// 检索层据此切换到客户端过滤分支。
var ErrFilterUnsupported = errors.New("vector store does not support server-side filters")

// SearchFilter 服务端元数据过滤条件，各字段按 AND 组合。
type SearchFilter struct {
	// Equals 要求元数据键精确等于给定值。
	Equals map[string]any
}

// VectorStore 向量索引的最小契约：插入、删除、带分数检索。
// 不提供原地更新，可见性翻转通过删除加重插完成。
type VectorStore interface {
	Insert(ctx context.Context, docs []Document) error
	Delete(ctx context.Context, ids []string) error
	// SearchWithScore 返回与查询向量最相近的 topK 个候选，按距离升序。
	// filter 为 nil 表示不过滤；实现不支持过滤时返回 ErrFilterUnsupported。
	SearchWithScore(ctx context.Context, embedding []float64, topK int, filter *SearchFilter) ([]ScoredCandidate, error)
	// Get 按 ID 取回文档，用于可见性翻转前读取原始块。
	Get(ctx context.Context, ids []string) ([]Document, error)
	Count(ctx context.Context) (int, error)
}

// InMemoryVectorStore 进程内向量索引，余弦距离，线性扫描。
// 适合测试与小规模部署；不支持服务端过滤。
type InMemoryVectorStore struct {
	mu     sync.RWMutex
	docs   map[string]Document
	logger *zap.Logger
}

// NewInMemoryVectorStore 创建进程内索引。logger 可为 nil。
func NewInMemoryVectorStore(logger *zap.Logger) *InMemoryVectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryVectorStore{
		docs:   make(map[string]Document),
		logger: logger.With(zap.String("component", "memory_vector_store")),
	}
}

func (s *InMemoryVectorStore) Insert(ctx context.Context, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	s.logger.Debug("documents inserted", zap.Int("count", len(docs)), zap.Int("total", len(s.docs)))
	return nil
}

func (s *InMemoryVectorStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.docs, id)
	}
	return nil
}

func (s *InMemoryVectorStore) SearchWithScore(ctx context.Context, embedding []float64, topK int, filter *SearchFilter) ([]ScoredCandidate, error) {
	if filter != nil {
		return nil, ErrFilterUnsupported
	}
	if topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]ScoredCandidate, 0, len(s.docs))
	for _, d := range s.docs {
		sim := cosineSimilarity(embedding, d.Embedding)
		candidates = append(candidates, ScoredCandidate{
			Document: d,
			Distance: 1 - sim,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].Document.ID < candidates[j].Document.ID
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

func (s *InMemoryVectorStore) Get(ctx context.Context, ids []string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, 0, len(ids))
	for _, id := range ids {
		if d, ok := s.docs[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *InMemoryVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// cosineSimilarity 计算两向量的余弦相似度，零向量或长度不一致时返回 0。
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
