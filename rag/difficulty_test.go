package rag

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/ragserve/llm"
)

func TestParseDifficulty(t *testing.T) {
	cases := []struct {
		raw    string
		want   int
		wantOK bool
	}{
		{"7", 7, true},
		{" 10 ", 10, true},
		{"1", 1, true},
		{"3.", 3, true},
		{"Difficulty: 8", 8, true},
		{"score is 5 out of 10", 5, true},
		{"0", 0, false},
		{"11", 0, false},
		{"-4", 4, true},
		{"", 0, false},
		{"no number here", 0, false},
		{"ten", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseDifficulty(tc.raw)
		assert.Equal(t, tc.wantOK, ok, "raw=%q", tc.raw)
		if tc.wantOK {
			assert.Equal(t, tc.want, got, "raw=%q", tc.raw)
		}
	}
}

func TestEstimateParsesModelOutput(t *testing.T) {
	client := &fakeClient{completeFn: func(ctx context.Context, _ []llm.Message) (string, error) {
		return "7\n", nil
	}}
	est := NewDifficultyEstimator(client, nil)
	assert.Equal(t, 7, est.Estimate(context.Background(), "how do glaciers form?"))
}

func TestEstimateFallsBackOnGarbage(t *testing.T) {
	client := &fakeClient{completeFn: func(ctx context.Context, _ []llm.Message) (string, error) {
		return "that question is quite hard", nil
	}}
	est := NewDifficultyEstimator(client, nil)
	assert.Equal(t, DefaultDifficulty, est.Estimate(context.Background(), "anything"))
}

func TestEstimateFallsBackOnOutOfRange(t *testing.T) {
	client := &fakeClient{completeFn: func(ctx context.Context, _ []llm.Message) (string, error) {
		return "42", nil
	}}
	est := NewDifficultyEstimator(client, nil)
	assert.Equal(t, DefaultDifficulty, est.Estimate(context.Background(), "anything"))
}

func TestEstimateFallsBackOnCallFailure(t *testing.T) {
	client := &fakeClient{completeFn: func(ctx context.Context, _ []llm.Message) (string, error) {
		return "", fmt.Errorf("upstream down")
	}}
	est := NewDifficultyEstimator(client, nil)
	assert.Equal(t, DefaultDifficulty, est.Estimate(context.Background(), "anything"))
}
