package loader

import (
	"context"
	"unicode/utf8"

	"github.com/BaSui01/ragserve/types"
)

// TextExtractor 纯文本抽取器，要求内容为合法 UTF-8。
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

func (e *TextExtractor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", types.NewError(types.ErrDecodeFailed, "could not decode file contents as UTF-8")
	}
	return Normalize(string(data)), nil
}

func (e *TextExtractor) SupportedTypes() []string {
	return []string{".txt", ".log"}
}

// MarkdownExtractor Markdown 抽取器。标题与代码块标记原样保留，
// 分块器的段落边界逻辑天然兼容 Markdown 结构。
type MarkdownExtractor struct{}

func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{}
}

func (e *MarkdownExtractor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", types.NewError(types.ErrDecodeFailed, "could not decode file contents as UTF-8")
	}
	return Normalize(string(data)), nil
}

func (e *MarkdownExtractor) SupportedTypes() []string {
	return []string{".md", ".markdown"}
}
