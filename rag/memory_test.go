package rag

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowMemoryFIFOEviction(t *testing.T) {
	ctx := context.Background()
	m := NewWindowMemory(3)

	for i := 1; i <= 4; i++ {
		require.NoError(t, m.Write(ctx, fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)))
	}

	out, err := m.Read(ctx)
	require.NoError(t, err)

	assert.NotContains(t, out, "q1")
	assert.Contains(t, out, "question: q2\nanswer: a2")
	assert.Contains(t, out, "question: q4\nanswer: a4")

	turns := m.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, "q2", turns[0].Question)
	assert.Equal(t, "q4", turns[2].Question)
}

func TestWindowMemoryEmptyReadsEmptyString(t *testing.T) {
	out, err := NewWindowMemory(3).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestWindowMemorySerializationOrder(t *testing.T) {
	ctx := context.Background()
	m := NewWindowMemory(5)
	require.NoError(t, m.Write(ctx, "first", "one"))
	require.NoError(t, m.Write(ctx, "second", "two"))

	out, err := m.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "question: first\nanswer: one\nquestion: second\nanswer: two", out)
}

func TestWindowMemoryClear(t *testing.T) {
	ctx := context.Background()
	m := NewWindowMemory(3)
	require.NoError(t, m.Write(ctx, "q", "a"))
	require.NoError(t, m.Clear(ctx))

	out, err := m.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, m.Turns())
}
