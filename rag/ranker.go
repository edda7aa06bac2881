package rag

import (
	"sort"
	"strings"

	"go.uber.org/zap"
)

// 组合得分权重。向量距离单独使用会低估词面重合，
// 也不惩罚过短或过长的退化块，所以补上关键词与长度两项。
const (
	weightSimilarity = 0.6
	weightKeyword    = 0.3
	weightLength     = 0.1
)

// DefaultMaxDocs 重排后保留的候选上限。
const DefaultMaxDocs = 5

// DocumentRanker 多因子重排器：相似度、关键词重合、内容长度。
type DocumentRanker struct {
	maxDocs int
	logger  *zap.Logger
}

// NewDocumentRanker 创建重排器。maxDocs <= 0 时取默认值。
func NewDocumentRanker(maxDocs int, logger *zap.Logger) *DocumentRanker {
	if maxDocs <= 0 {
		maxDocs = DefaultMaxDocs
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentRanker{
		maxDocs: maxDocs,
		logger:  logger.With(zap.String("component", "document_ranker")),
	}
}

// Rank 按组合得分降序返回不超过 maxDocs 个候选。
// 稳定排序：得分相同的候选保持检索顺序。空输入返回空输出。
func (r *DocumentRanker) Rank(candidates []ScoredCandidate, query string) []RankedCandidate {
	if len(candidates) == 0 {
		return nil
	}

	queryTokens := tokenize(query)

	ranked := make([]RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		similarity := similarityScore(c.Distance)
		keyword := keywordScore(queryTokens, c.Document.Content)
		length := lengthScore(runeLen(c.Document.Content))

		ranked = append(ranked, RankedCandidate{
			Document:        c.Document,
			SimilarityScore: similarity,
			KeywordScore:    keyword,
			LengthScore:     length,
			FinalScore:      weightSimilarity*similarity + weightKeyword*keyword + weightLength*length,
			Distance:        c.Distance,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FinalScore > ranked[j].FinalScore
	})

	if len(ranked) > r.maxDocs {
		ranked = ranked[:r.maxDocs]
	}

	r.logger.Debug("candidates ranked",
		zap.Int("input", len(candidates)),
		zap.Int("output", len(ranked)))
	return ranked
}

// similarityScore 把距离映射到 (0,1]，距离越小相似度越高。
func similarityScore(distance float64) float64 {
	if distance > 0 {
		return 1.0 / (1.0 + distance)
	}
	return 1.0
}

// keywordScore 查询词元在块内的命中比例，查询无词元时为 0。
func keywordScore(queryTokens []string, content string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	contentTokens := make(map[string]struct{})
	for _, t := range strings.Fields(strings.ToLower(content)) {
		contentTokens[t] = struct{}{}
	}

	hits := 0
	for _, t := range queryTokens {
		if _, ok := contentTokens[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTokens))
}

// lengthScore 内容长度（字符）的分段得分。
// 100 字符以下的碎块与 2000 以上的长块都降权。
func lengthScore(length int) float64 {
	switch {
	case length < 100:
		return 0.3
	case length >= 800 && length <= 1200:
		return 1.0
	case length > 2000:
		return 0.7
	default:
		return 0.8
	}
}

// tokenize 小写去重的空白分词，保持首次出现顺序。
func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
