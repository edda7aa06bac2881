package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/ragserve/api"
	"github.com/BaSui01/ragserve/rag"
	"github.com/BaSui01/ragserve/types"
)

// =============================================================================
// 💬 问答 Handler
// =============================================================================

// defaultSearchN /vector_search 未指定 n 时的默认返回数量。
const defaultSearchN = 2

// QueryHandler 问答处理器
type QueryHandler struct {
	orchestrator *rag.RetrievalOrchestrator
	retriever    *rag.CandidateRetriever
	logger       *zap.Logger
}

// NewQueryHandler 创建问答处理器
func NewQueryHandler(orchestrator *rag.RetrievalOrchestrator, retriever *rag.CandidateRetriever, logger *zap.Logger) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHandler{
		orchestrator: orchestrator,
		retriever:    retriever,
		logger:       logger.With(zap.String("component", "query_handler")),
	}
}

func citationsFrom(ranked []rag.RankedCandidate) []api.Citation {
	citations := make([]api.Citation, 0, len(ranked))
	for _, c := range ranked {
		citations = append(citations, api.Citation{
			Content:  c.Document.Content,
			FileID:   c.Document.FileID(),
			Filename: c.Document.Filename(),
			Score:    c.FinalScore,
		})
	}
	return citations
}

// HandleQuery 处理 POST /rag 请求（阻塞式问答）
// @Summary 检索增强问答
// @Description 对问题执行完整检索流水线并返回带引用的回答
// @Tags 问答
// @Accept json
// @Produce json
// @Success 200 {object} Response{data=api.QueryResponse} "回答"
// @Failure 400 {object} Response "问题为空"
// @Failure 502 {object} Response "模型端失败"
// @Router /rag [post]
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req api.QueryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	result, err := h.orchestrator.ProcessQuery(r.Context(), req.Query)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}

	WriteSuccess(w, api.QueryResponse{
		Answer:     result.Answer,
		Rewritten:  result.Rewritten,
		Difficulty: result.Difficulty,
		Citations:  citationsFrom(result.Citations),
	})
}

// HandleCitations 处理 POST /api/v1/citations 请求
// @Summary 查询引用预览
// @Description 只读执行检索子流水线，不生成回答也不写入会话记忆
// @Tags 问答
// @Accept json
// @Produce json
// @Success 200 {object} Response{data=[]api.Citation} "引用列表"
// @Router /api/v1/citations [post]
func (h *QueryHandler) HandleCitations(w http.ResponseWriter, r *http.Request) {
	var req api.QueryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	ranked, err := h.orchestrator.GetCitationsForQuery(r.Context(), req.Query)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteSuccess(w, citationsFrom(ranked))
}

// HandleVectorSearch 处理 POST /vector_search 请求
// @Summary 原始向量检索
// @Description 对检索文本执行相似度检索，返回最相近的活跃片段
// @Tags 问答
// @Accept json
// @Produce json
// @Success 200 {object} Response{data=api.VectorSearchResponse} "检索结果"
// @Router /vector_search [post]
func (h *QueryHandler) HandleVectorSearch(w http.ResponseWriter, r *http.Request) {
	var req api.VectorSearchRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.SearchStr) == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "search_str must not be empty"), h.logger)
		return
	}

	n := req.N
	if n <= 0 {
		n = defaultSearchN
	}

	candidates, err := h.searchTopN(r.Context(), req.SearchStr, n)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}

	resp := api.VectorSearchResponse{Results: make([]api.VectorSearchResult, 0, len(candidates))}
	for _, c := range candidates {
		resp.Results = append(resp.Results, api.VectorSearchResult{
			Content:  c.Document.Content,
			Filename: c.Document.Filename(),
			Distance: c.Distance,
		})
	}
	WriteSuccess(w, resp)
}

// searchTopN 复用候选检索链（含可见性过滤），截断到请求数量。
func (h *QueryHandler) searchTopN(ctx context.Context, query string, n int) ([]rag.ScoredCandidate, error) {
	candidates, err := h.retriever.Retrieve(ctx, query, n)
	if err != nil {
		return nil, err
	}
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates, nil
}

// HandleClearMemory 处理 DELETE /api/v1/memory 请求
// @Summary 清空会话记忆
// @Description 清空当前会话的全部历史轮次
// @Tags 问答
// @Produce json
// @Success 200 {object} Response "清空成功"
// @Router /api/v1/memory [delete]
func (h *QueryHandler) HandleClearMemory(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.ClearMemory(r.Context()); err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"cleared": true})
}
