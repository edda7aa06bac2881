package api

import "time"

// =============================================================================
// 文档上传类型
// =============================================================================

// UploadResponse 表示文件上传结果。
// @Description 文件上传响应结构
type UploadResponse struct {
	// 成功入库的文件 ID
	UploadedIDs []string `json:"uploaded_ids"`
	// 入库的分块总数
	ChunkCount int `json:"chunk_count"`
}

// FileInfo 表示一个已入库文件的元信息。
// @Description 文件元信息结构
type FileInfo struct {
	// 文件 ID
	ID string `json:"id" example:"4f2a9c1e"`
	// 原始文件名
	Filename string `json:"filename" example:"handbook.pdf"`
	// 是否参与检索
	Active bool `json:"active" example:"true"`
	// 分块数量
	ChunkCount int `json:"chunk_count" example:"12"`
	// 入库时间
	CreatedAt time.Time `json:"created_at"`
}

// SetActiveRequest 表示文件可见性切换请求。
// @Description 文件可见性切换请求结构
type SetActiveRequest struct {
	// 目标可见性
	Active bool `json:"active"`
}

// =============================================================================
// 查询类型
// =============================================================================

// QueryRequest 表示一次问答请求。
// @Description 问答请求结构
type QueryRequest struct {
	// 用户问题
	Query string `json:"query" binding:"required" example:"What does chapter 2 cover?"`
}

// QueryResponse 表示一次问答的完整结果。
// @Description 问答响应结构
type QueryResponse struct {
	// 生成的回答
	Answer string `json:"answer"`
	// 改写后的检索查询
	Rewritten string `json:"rewritten,omitempty"`
	// 估计的问题难度（1-10）
	Difficulty int `json:"difficulty,omitempty"`
	// 回答引用的文档片段
	Citations []Citation `json:"citations"`
}

// Citation 表示回答引用的一个文档片段。
// @Description 引用片段结构
type Citation struct {
	// 片段内容
	Content string `json:"content"`
	// 来源文件 ID
	FileID string `json:"file_id,omitempty"`
	// 来源文件名
	Filename string `json:"filename,omitempty"`
	// 综合相关性得分
	Score float64 `json:"score"`
}

// VectorSearchRequest 表示一次原始向量检索请求。
// @Description 向量检索请求结构
type VectorSearchRequest struct {
	// 检索文本
	SearchStr string `json:"search_str" binding:"required"`
	// 返回的片段数量，默认 2
	N int `json:"n,omitempty" example:"2"`
}

// VectorSearchResult 表示向量检索命中的一个片段。
// @Description 向量检索结果结构
type VectorSearchResult struct {
	// 片段内容
	Content string `json:"content"`
	// 来源文件名
	Filename string `json:"filename,omitempty"`
	// 与查询的向量距离，越小越相近
	Distance float64 `json:"distance"`
}

// VectorSearchResponse 表示向量检索的完整结果。
// @Description 向量检索响应结构
type VectorSearchResponse struct {
	// 命中的片段列表
	Results []VectorSearchResult `json:"results"`
}

// StreamRequest 表示 WebSocket 流式问答的一帧请求。
// @Description 流式问答请求结构
type StreamRequest struct {
	// 用户问题
	Query string `json:"query"`
}
