package rag

import "time"

// 元数据键。块的归属、展示名与可见性都挂在 Metadata 上，
// 因为索引契约只支持插入/删除/查询，不支持原地更新。
const (
	MetaFileID     = "file_id"
	MetaFilename   = "filename"
	MetaActive     = "is_active"
	MetaChunkIndex = "chunk_index"
	MetaTokenCount = "token_count"
)

// Document 被索引的内容单元（一个文档块）。
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Embedding []float64      `json:"embedding,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// FileID 返回块所属上传文件的标识，缺失时为空串。
func (d Document) FileID() string {
	return metadataString(d.Metadata, MetaFileID)
}

// Filename 返回块所属文件的展示名。
func (d Document) Filename() string {
	return metadataString(d.Metadata, MetaFilename)
}

// IsActive 返回块是否参与检索。标志缺失视为不活跃：
// 客户端过滤需要剔除"falsy 或缺失"的块。
func (d Document) IsActive() bool {
	if d.Metadata == nil {
		return false
	}
	b, ok := d.Metadata[MetaActive].(bool)
	return ok && b
}

// WithActive 返回一份元数据被更新的拷贝，ID 与向量不变。
func (d Document) WithActive(active bool) Document {
	meta := make(map[string]any, len(d.Metadata)+1)
	for k, v := range d.Metadata {
		meta[k] = v
	}
	meta[MetaActive] = active
	d.Metadata = meta
	return d
}

// ScoredCandidate 检索阶段产出的候选块。
// Distance 为原始索引距离，越小越相近。
type ScoredCandidate struct {
	Document Document `json:"document"`
	Distance float64  `json:"distance"`
}

// RankedCandidate 重排序阶段产出的候选块及其分项得分。
type RankedCandidate struct {
	Document        Document `json:"document"`
	SimilarityScore float64  `json:"similarity_score"` // (0,1]
	KeywordScore    float64  `json:"keyword_score"`    // [0,1]
	LengthScore     float64  `json:"length_score"`     // {0.3,0.7,0.8,1.0}
	FinalScore      float64  `json:"final_score"`
	Distance        float64  `json:"distance"` // 诊断用，保留原始距离
}

// FileRecord 上传文件的登记信息。
type FileRecord struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Active     bool      `json:"active"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	s, _ := metadata[key].(string)
	return s
}
