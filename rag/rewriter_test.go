package rag

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/ragserve/llm"
)

func TestRewriteIncludesHistory(t *testing.T) {
	client := &fakeClient{completeFn: func(ctx context.Context, messages []llm.Message) (string, error) {
		require.Len(t, messages, 2)
		assert.Equal(t, llm.RoleSystem, messages[0].Role)
		assert.Contains(t, messages[1].Content, "conversation history:")
		assert.Contains(t, messages[1].Content, "question: what is a glacier?")
		assert.Contains(t, messages[1].Content, "query: how do they move?")
		return " movement mechanics of glaciers ", nil
	}}

	r := NewQueryRewriter(client, nil)
	history := "question: what is a glacier?\nanswer: a slow-moving mass of ice"
	out, err := r.Rewrite(context.Background(), "how do they move?", history)
	require.NoError(t, err)
	assert.Equal(t, "movement mechanics of glaciers", out)
}

func TestRewriteOmitsEmptyHistory(t *testing.T) {
	client := &fakeClient{completeFn: func(ctx context.Context, messages []llm.Message) (string, error) {
		assert.NotContains(t, messages[1].Content, "conversation history")
		return "glacier formation process", nil
	}}

	r := NewQueryRewriter(client, nil)
	out, err := r.Rewrite(context.Background(), "how do glaciers form?", "")
	require.NoError(t, err)
	assert.Equal(t, "glacier formation process", out)
}

func TestRewriteEmptyOutputFallsBackToRawQuery(t *testing.T) {
	client := &fakeClient{completeFn: func(ctx context.Context, _ []llm.Message) (string, error) {
		return "   ", nil
	}}

	r := NewQueryRewriter(client, nil)
	out, err := r.Rewrite(context.Background(), "original question", "")
	require.NoError(t, err)
	assert.Equal(t, "original question", out)
}

func TestRewritePropagatesModelFailure(t *testing.T) {
	client := &fakeClient{completeFn: func(ctx context.Context, _ []llm.Message) (string, error) {
		return "", fmt.Errorf("boom")
	}}

	r := NewQueryRewriter(client, nil)
	_, err := r.Rewrite(context.Background(), "query", "")
	assert.Error(t, err)
}
