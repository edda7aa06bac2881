package loader

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/BaSui01/ragserve/types"
)

// PDFExtractor PDF 抽取器，逐页取纯文本后拼接。
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

func (e *PDFExtractor) Extract(ctx context.Context, filename string, data []byte) (out string, err error) {
	// pdf 库对损坏文件会 panic，统一收敛为解码错误。
	defer func() {
		if rec := recover(); rec != nil {
			out = ""
			err = types.NewError(types.ErrDecodeFailed,
				fmt.Sprintf("could not process PDF file: %v", rec))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", types.NewError(types.ErrDecodeFailed,
			fmt.Sprintf("could not process PDF file: %v", err)).WithCause(err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// 单页失败跳过，尽量保留其余内容。
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	return Normalize(sb.String()), nil
}

func (e *PDFExtractor) SupportedTypes() []string {
	return []string{".pdf"}
}
