package rag

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/BaSui01/ragserve/llm"
)

const (
	// DefaultDifficulty 模型输出无法解析时的兜底难度。
	DefaultDifficulty = 3
	minDifficulty     = 1
	maxDifficulty     = 10
)

const difficultySystemPrompt = `You rate how difficult a question is to answer on a scale from 1 to 10, where 1 is a trivial factual lookup and 10 requires synthesizing many sources.
Respond with a single integer between 1 and 10. No explanation, no punctuation, just the number.`

// DifficultyEstimator 估计问题难度，用于决定检索扇出。
// 解析采取宽松降级策略：任何畸形输出都落到 DefaultDifficulty，
// 绝不因此中断请求。
type DifficultyEstimator struct {
	client CompletionClient
	logger *zap.Logger
}

// NewDifficultyEstimator 创建估计器。logger 可为 nil。
func NewDifficultyEstimator(client CompletionClient, logger *zap.Logger) *DifficultyEstimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DifficultyEstimator{
		client: client,
		logger: logger.With(zap.String("component", "difficulty_estimator")),
	}
}

// Estimate 返回 [1,10] 内的难度。模型调用失败同样降级到默认值，
// 难度只是检索规模的提示，不值得让请求失败。
func (e *DifficultyEstimator) Estimate(ctx context.Context, query string) int {
	out, err := e.client.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: difficultySystemPrompt},
		{Role: llm.RoleUser, Content: query},
	})
	if err != nil {
		e.logger.Warn("difficulty estimation call failed, using default",
			zap.Int("default", DefaultDifficulty),
			zap.Error(err))
		return DefaultDifficulty
	}

	score, ok := parseDifficulty(out)
	if !ok {
		e.logger.Warn("difficulty output unparsable, using default",
			zap.String("raw", out),
			zap.Int("default", DefaultDifficulty))
		return DefaultDifficulty
	}

	e.logger.Debug("difficulty estimated", zap.Int("score", score))
	return score
}

// parseDifficulty 从模型输出里提取首个整数并校验范围。
// 容忍 "7"、"7."、"Difficulty: 7" 这类形态；范围外视为解析失败。
func parseDifficulty(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}

	start := -1
	for i, r := range raw {
		if unicode.IsDigit(r) {
			start = i
			break
		}
	}
	if start < 0 {
		return 0, false
	}

	end := start
	for end < len(raw) && raw[end] >= '0' && raw[end] <= '9' {
		end++
	}

	n, err := strconv.Atoi(raw[start:end])
	if err != nil || n < minDifficulty || n > maxDifficulty {
		return 0, false
	}
	return n, true
}
