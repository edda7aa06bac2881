package rag

import (
	"strings"

	"go.uber.org/zap"
)

// ChunkingConfig 分块配置。尺寸按字符计，token 数只记入元数据。
type ChunkingConfig struct {
	ChunkSize    int `json:"chunk_size" yaml:"chunk_size"`       // 块大小（字符）
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap"` // 相邻块重叠（字符）
	MinChunkSize int `json:"min_chunk_size" yaml:"min_chunk_size"`
}

// DefaultChunkingConfig 默认分块配置。
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		MinChunkSize: 1,
	}
}

// Chunk 切分产物。
type Chunk struct {
	Content    string `json:"content"`
	Index      int    `json:"index"`
	TokenCount int    `json:"token_count"`
}

// Tokenizer 计数接口，分块器只用它标注块的 token 数。
type Tokenizer interface {
	CountTokens(text string) int
}

// TextSplitter 递归字符分块器。
// 依次尝试段落、换行、句号、空格边界，单个片段过长时降级
// 到下一级分隔符，最后按 rune 硬切。
type TextSplitter struct {
	config    ChunkingConfig
	tokenizer Tokenizer
	logger    *zap.Logger

	separators []string
}

// NewTextSplitter 创建分块器。tokenizer、logger 可为 nil。
func NewTextSplitter(config ChunkingConfig, tokenizer Tokenizer, logger *zap.Logger) *TextSplitter {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 5
	}
	if config.MinChunkSize <= 0 {
		config.MinChunkSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TextSplitter{
		config:     config,
		tokenizer:  tokenizer,
		logger:     logger.With(zap.String("component", "text_splitter")),
		separators: []string{"\n\n", "\n", ". ", "。", " "},
	}
}

// Split 切分文本，空白文本返回空切片。
func (s *TextSplitter) Split(text string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	pieces := s.recursiveSplit(text, s.separators)
	merged := s.mergeWithOverlap(pieces)

	chunks := make([]Chunk, 0, len(merged))
	for _, content := range merged {
		content = strings.TrimSpace(content)
		if len([]rune(content)) < s.config.MinChunkSize {
			continue
		}
		chunks = append(chunks, Chunk{
			Content:    content,
			Index:      len(chunks),
			TokenCount: s.countTokens(content),
		})
	}

	s.logger.Debug("text split completed",
		zap.Int("chunks", len(chunks)),
		zap.Int("chunk_size", s.config.ChunkSize),
		zap.Int("overlap", s.config.ChunkOverlap))

	return chunks
}

// recursiveSplit 把文本切成不超过 ChunkSize 的片段，保留分隔符。
func (s *TextSplitter) recursiveSplit(text string, separators []string) []string {
	if runeLen(text) <= s.config.ChunkSize {
		return []string{text}
	}
	if len(separators) == 0 {
		return s.splitByRunes(text)
	}

	separator := separators[0]
	parts := strings.Split(text, separator)
	if len(parts) == 1 {
		// 此级分隔符不出现，降级。
		return s.recursiveSplit(text, separators[1:])
	}

	out := make([]string, 0, len(parts))
	for i, part := range parts {
		if i < len(parts)-1 {
			part += separator
		}
		if runeLen(part) > s.config.ChunkSize {
			out = append(out, s.recursiveSplit(part, separators[1:])...)
		} else if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (s *TextSplitter) splitByRunes(text string) []string {
	runes := []rune(text)
	out := make([]string, 0, len(runes)/s.config.ChunkSize+1)
	for i := 0; i < len(runes); i += s.config.ChunkSize {
		end := i + s.config.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

// mergeWithOverlap 把片段合并成接近 ChunkSize 的块，
// 相邻块之间携带上一块尾部 ChunkOverlap 个字符。
func (s *TextSplitter) mergeWithOverlap(pieces []string) []string {
	var (
		merged  []string
		current strings.Builder
	)

	flush := func() {
		if current.Len() == 0 {
			return
		}
		merged = append(merged, current.String())

		tail := tailRunes(current.String(), s.config.ChunkOverlap)
		current.Reset()
		current.WriteString(tail)
	}

	for _, piece := range pieces {
		if runeLen(current.String())+runeLen(piece) > s.config.ChunkSize && current.Len() > 0 {
			flush()
		}
		current.WriteString(piece)
	}

	if strings.TrimSpace(current.String()) != "" {
		// 尾块只含重叠内容时丢弃，避免重复块。
		last := current.String()
		if len(merged) == 0 || !strings.HasSuffix(merged[len(merged)-1], last) {
			merged = append(merged, last)
		}
	}
	return merged
}

func (s *TextSplitter) countTokens(text string) int {
	if s.tokenizer == nil {
		// 粗略估算，1 token ≈ 4 字符。
		return runeLen(text) / 4
	}
	return s.tokenizer.CountTokens(text)
}

func runeLen(s string) int {
	return len([]rune(s))
}

func tailRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
