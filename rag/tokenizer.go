package rag

import (
	"fmt"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// TiktokenTokenizer 基于 tiktoken 编码表的计数器。
// 编码失败时回退到字符估算并记录警告。
type TiktokenTokenizer struct {
	encoding *tiktoken.Tiktoken
	logger   *zap.Logger
}

// NewTiktokenTokenizer 按编码名创建计数器（如 "cl100k_base"）。
// 首次调用会下载编码数据，离线环境应改用 EstimatorTokenizer。
func NewTiktokenTokenizer(encodingName string, logger *zap.Logger) (*TiktokenTokenizer, error) {
	if encodingName == "" {
		encodingName = "cl100k_base"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("get tiktoken encoding %q: %w", encodingName, err)
	}
	return &TiktokenTokenizer{encoding: enc, logger: logger}, nil
}

func (t *TiktokenTokenizer) CountTokens(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// EstimatorTokenizer 无外部数据的估算计数器。
// CJK 字符按 1 字 1 token 计，其余按 4 字符 1 token 估算。
type EstimatorTokenizer struct{}

func NewEstimatorTokenizer() *EstimatorTokenizer {
	return &EstimatorTokenizer{}
}

func (t *EstimatorTokenizer) CountTokens(text string) int {
	cjk, other := 0, 0
	for _, r := range text {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			cjk++
		} else {
			other++
		}
	}
	count := cjk + (other+3)/4
	if count == 0 && text != "" {
		count = 1
	}
	return count
}
