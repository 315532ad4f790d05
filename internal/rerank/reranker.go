package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"scholaria/backend/internal/retrieval"
)

const (
	// maxContentChars bounds what each candidate contributes to the prompt.
	maxContentChars = 1500

	scoreScale = 10.0
)

const systemPrompt = "You rate how relevant a passage is to a question. " +
	"Answer with a single number from 0 to 10 and nothing else."

type LLM interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Reranker scores each candidate with the LLM and orders descending. A
// failed LLM call for a candidate falls back to keyword overlap, so a dead
// provider degrades ordering quality instead of blocking the query.
type Reranker struct {
	llm LLM
}

func New(llm LLM) *Reranker {
	return &Reranker{llm: llm}
}

func (r *Reranker) Rerank(ctx context.Context, query string, docs map[string]string, topK int) ([]retrieval.RerankedDoc, error) {
	scored := make([]retrieval.RerankedDoc, 0, len(docs))
	for id, content := range docs {
		score, err := r.scoreWithLLM(ctx, query, content)
		if err != nil {
			slog.WarnContext(ctx, "llm scoring failed, using keyword overlap", "error", err, "candidate", id)
			score = keywordOverlap(query, content)
		}
		scored = append(scored, retrieval.RerankedDoc{ID: id, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func (r *Reranker) scoreWithLLM(ctx context.Context, query, content string) (float64, error) {
	if r.llm == nil {
		return 0, fmt.Errorf("no llm configured")
	}

	prompt := fmt.Sprintf("Question: %s\n\nPassage:\n%s", query, truncate(content, maxContentChars))
	raw, err := r.llm.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return 0, err
	}

	score, err := parseScore(raw)
	if err != nil {
		return 0, err
	}
	return score / scoreScale, nil
}

// parseScore extracts the first number from the response, tolerating
// chatter around it, and clamps to [0, 10].
func parseScore(raw string) (float64, error) {
	cleaned := strings.TrimFunc(raw, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.' && r != '-'
	})
	if i := strings.IndexFunc(cleaned, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.' && r != '-'
	}); i >= 0 {
		cleaned = cleaned[:i]
	}
	if cleaned == "" {
		return 0, fmt.Errorf("no numeric score in %q", raw)
	}

	score, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable score %q: %w", raw, err)
	}
	if score < 0 {
		score = 0
	}
	if score > scoreScale {
		score = scoreScale
	}
	return score, nil
}

// keywordOverlap is the scoring fallback: the fraction of query tokens
// present in the candidate, case-insensitively.
func keywordOverlap(query, content string) float64 {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(content)

	hits := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
