package rerank

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeLLM struct {
	responses map[string]string
	err       error
	lastUser  string
}

func (f *fakeLLM) Complete(ctx context.Context, system, user string) (string, error) {
	f.lastUser = user
	if f.err != nil {
		return "", f.err
	}
	for needle, resp := range f.responses {
		if strings.Contains(user, needle) {
			return resp, nil
		}
	}
	return "0", nil
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{"7", 7, false},
		{"7.5", 7.5, false},
		{" 8 ", 8, false},
		{"Score: 6", 6, false},
		{"9/10", 9, false},
		{"15", 10, false},
		{"-3", 0, false},
		{"no number here", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := parseScore(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, "raw %q", tt.raw)
			continue
		}
		assert.NoError(t, err, "raw %q", tt.raw)
		assert.InDelta(t, tt.want, got, 1e-9, "raw %q", tt.raw)
	}
}

func TestKeywordOverlap(t *testing.T) {
	assert.InDelta(t, 1.0, keywordOverlap("redis cache", "a Redis cache layer"), 1e-9)
	assert.InDelta(t, 0.5, keywordOverlap("redis cluster", "plain redis setup"), 1e-9)
	assert.Zero(t, keywordOverlap("kafka", "a redis setup"))
	assert.Zero(t, keywordOverlap("", "anything"))
}

func TestReranker_Rerank(t *testing.T) {
	ctx := context.Background()

	t.Run("Orders by normalized score", func(t *testing.T) {
		llm := &fakeLLM{responses: map[string]string{
			"passage one": "3",
			"passage two": "9",
		}}
		r := New(llm)

		out, err := r.Rerank(ctx, "question", map[string]string{
			"a": "passage one",
			"b": "passage two",
		}, 0)

		assert.NoError(t, err)
		assert.Len(t, out, 2)
		assert.Equal(t, "b", out[0].ID)
		assert.InDelta(t, 0.9, out[0].Score, 1e-9)
		assert.Equal(t, "a", out[1].ID)
		assert.InDelta(t, 0.3, out[1].Score, 1e-9)
	})

	t.Run("Truncates to topK", func(t *testing.T) {
		llm := &fakeLLM{responses: map[string]string{
			"one": "9", "two": "5", "three": "1",
		}}
		r := New(llm)

		out, err := r.Rerank(ctx, "q", map[string]string{
			"a": "one", "b": "two", "c": "three",
		}, 2)

		assert.NoError(t, err)
		assert.Len(t, out, 2)
		assert.Equal(t, "a", out[0].ID)
	})

	t.Run("LLM failure falls back to keyword overlap", func(t *testing.T) {
		llm := &fakeLLM{err: errors.New("model unavailable")}
		r := New(llm)

		out, err := r.Rerank(ctx, "redis cache", map[string]string{
			"hit":  "the redis cache layer",
			"miss": "unrelated text",
		}, 0)

		assert.NoError(t, err)
		assert.Len(t, out, 2)
		assert.Equal(t, "hit", out[0].ID)
		assert.InDelta(t, 1.0, out[0].Score, 1e-9)
		assert.Zero(t, out[1].Score)
	})

	t.Run("Nil LLM still returns scored results", func(t *testing.T) {
		r := New(nil)

		out, err := r.Rerank(ctx, "needle", map[string]string{
			"a": "contains the needle",
		}, 0)

		assert.NoError(t, err)
		assert.Len(t, out, 1)
		assert.InDelta(t, 1.0, out[0].Score, 1e-9)
	})

	t.Run("Long candidate content is truncated in prompt", func(t *testing.T) {
		llm := &fakeLLM{responses: map[string]string{}}
		r := New(llm)

		_, err := r.Rerank(ctx, "q", map[string]string{
			"a": strings.Repeat("x", 5000),
		}, 0)

		assert.NoError(t, err)
		assert.Less(t, len(llm.lastUser), 2000)
	})
}
