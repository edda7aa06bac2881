// Package loader 把上传的文件字节抽取为规整的纯文本。
// 抽取器按扩展名路由，产出统一经过 Normalize 规整，
// 以保留段落边界供下游分块使用。
package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/ragserve/types"
)

// Extractor 单一文件类型的文本抽取器。
type Extractor interface {
	// Extract 把文件字节转为规整文本。
	Extract(ctx context.Context, filename string, data []byte) (string, error)

	// SupportedTypes 返回可处理的扩展名（带点，小写）。
	SupportedTypes() []string
}

// Registry 按扩展名把 Extract 调用路由到对应抽取器。
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
}

// NewRegistry 创建预注册内建抽取器的注册表。
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}

	builtins := []Extractor{
		NewTextExtractor(),
		NewMarkdownExtractor(),
		NewPDFExtractor(),
	}
	for _, e := range builtins {
		for _, ext := range e.SupportedTypes() {
			r.extractors[strings.ToLower(ext)] = e
		}
	}
	return r
}

// Register 注册或替换某扩展名的抽取器，ext 需带前导点。
func (r *Registry) Register(ext string, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[strings.ToLower(ext)] = e
}

// Extract 按文件扩展名路由抽取，并校验产出非空。
// 未知扩展名返回 ErrUnsupportedMedia，空产出返回 ErrEmptyContent。
func (r *Registry) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return "", types.NewError(types.ErrUnsupportedMedia,
			fmt.Sprintf("cannot determine file type for %q (no extension)", filename))
	}

	r.mu.RLock()
	e, ok := r.extractors[ext]
	r.mu.RUnlock()
	if !ok {
		return "", types.NewError(types.ErrUnsupportedMedia,
			fmt.Sprintf("unsupported file type %q", ext))
	}

	text, err := e.Extract(ctx, filename, data)
	if err != nil {
		return "", err
	}
	if len(text) == 0 {
		return "", types.NewError(types.ErrEmptyContent, "file is empty")
	}
	return text, nil
}

// SupportedTypes 返回全部已注册扩展名，升序。
func (r *Registry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.extractors))
	for ext := range r.extractors {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
