package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Candidate is a transient per-query search result. A document missing from
// one retrieval path contributes 0 for that path's score.
type Candidate struct {
	DocumentID  string  `json:"document_id"`
	ChunkID     string  `json:"chunk_id,omitempty"`
	Content     string  `json:"content"`
	Title       string  `json:"title,omitempty"`
	VectorScore float64 `json:"vector_score"`
	TextScore   float64 `json:"text_score"`
	FusedScore  float64 `json:"fused_score"`
	RerankScore float64 `json:"rerank_score,omitempty"`
}

// Scope restricts retrieval to an owning user and, optionally, a document set.
type Scope struct {
	UserID      string
	DocumentIDs []string
}

type VectorHit struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
	Content    string
	Title      string
	Score      float64
}

type LexicalHit struct {
	DocumentID string
	Title      string
	Content    string
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	SimilaritySearch(ctx context.Context, vector []float32, topK int, threshold float64, filters map[string]interface{}) ([]VectorHit, error)
}

type LexicalSearcher interface {
	SearchLexical(ctx context.Context, query string, scope Scope) ([]LexicalHit, error)
}

// RerankedDoc is one reranker output: the candidate key and its normalized
// [0,1] relevance score.
type RerankedDoc struct {
	ID    string
	Score float64
}

type Reranker interface {
	Rerank(ctx context.Context, query string, docs map[string]string, topK int) ([]RerankedDoc, error)
}

const (
	lexicalTitleScore   = 2.0
	lexicalContentScore = 1.0
)

// Service runs the query path: plan, hybrid vector+lexical retrieval, score
// fusion, rerank. Query-path failures degrade rather than surface: a dead
// vector backend leaves lexical-only results, a dead reranker leaves fused
// ordering.
type Service struct {
	embedder     Embedder
	store        VectorStore
	lexical      LexicalSearcher
	reranker     Reranker
	vectorWeight float64
	textWeight   float64
	logger       *QueryLogger
}

func NewService(e Embedder, vs VectorStore, ls LexicalSearcher, r Reranker, vectorWeight, textWeight float64, l *QueryLogger) *Service {
	return &Service{
		embedder:     e,
		store:        vs,
		lexical:      ls,
		reranker:     r,
		vectorWeight: vectorWeight,
		textWeight:   textWeight,
		logger:       l,
	}
}

func (s *Service) Search(ctx context.Context, query string, scope Scope) ([]Candidate, error) {
	start := time.Now()
	plan := NewPlan(query)

	candidates := s.searchOnce(ctx, query, plan, scope)
	candidates = s.rerank(ctx, query, candidates, plan.TopK)

	if s.logger != nil {
		s.logger.Log(QueryLogEntry{
			Query:      query,
			QueryType:  string(plan.QueryType),
			TopK:       plan.TopK,
			NumResults: len(candidates),
			Duration:   time.Since(start),
		})
	}
	return candidates, nil
}

// MultiSearch fans out query variants concurrently and merges hits by chunk
// identity, keeping the highest fused score seen for each.
func (s *Service) MultiSearch(ctx context.Context, queries []string, scope Scope) ([]Candidate, error) {
	if len(queries) == 0 {
		return nil, nil
	}
	if len(queries) == 1 {
		return s.Search(ctx, queries[0], scope)
	}

	topK := 0
	merged := make(map[string]Candidate)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, q := range queries {
		plan := NewPlan(q)
		if plan.TopK > topK {
			topK = plan.TopK
		}

		wg.Add(1)
		go func(q string, plan Plan) {
			defer wg.Done()
			found := s.searchOnce(ctx, q, plan, scope)

			mu.Lock()
			defer mu.Unlock()
			for _, c := range found {
				key := c.ChunkID
				if key == "" {
					key = c.DocumentID
				}
				if prev, ok := merged[key]; !ok || c.FusedScore > prev.FusedScore {
					merged[key] = c
				}
			}
		}(q, plan)
	}
	wg.Wait()

	candidates := make([]Candidate, 0, len(merged))
	for _, c := range merged {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].FusedScore > candidates[j].FusedScore })
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

// searchOnce runs the vector and lexical paths in parallel and fuses their
// scores per document.
func (s *Service) searchOnce(ctx context.Context, query string, plan Plan, scope Scope) []Candidate {
	var (
		wg          sync.WaitGroup
		vectorHits  []VectorHit
		lexicalHits []LexicalHit
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		vectorHits = s.vectorSearch(ctx, query, plan, scope)
	}()
	go func() {
		defer wg.Done()
		var err error
		lexicalHits, err = s.lexical.SearchLexical(ctx, query, scope)
		if err != nil {
			slog.WarnContext(ctx, "lexical search failed, path contributes no candidates", "error", err)
			lexicalHits = nil
		}
	}()
	wg.Wait()

	byDoc := make(map[string]*Candidate)
	for _, h := range vectorHits {
		c, ok := byDoc[h.DocumentID]
		if !ok || h.Score > c.VectorScore {
			byDoc[h.DocumentID] = &Candidate{
				DocumentID:  h.DocumentID,
				ChunkID:     h.ChunkID,
				Content:     h.Content,
				Title:       h.Title,
				VectorScore: h.Score,
			}
		}
	}
	for _, h := range lexicalHits {
		score := lexicalContentScore
		if strings.EqualFold(strings.TrimSpace(h.Title), strings.TrimSpace(query)) {
			score = lexicalTitleScore
		}
		if c, ok := byDoc[h.DocumentID]; ok {
			if score > c.TextScore {
				c.TextScore = score
			}
			continue
		}
		byDoc[h.DocumentID] = &Candidate{
			DocumentID: h.DocumentID,
			Content:    h.Content,
			Title:      h.Title,
			TextScore:  score,
		}
	}

	candidates := make([]Candidate, 0, len(byDoc))
	for _, c := range byDoc {
		c.FusedScore = c.VectorScore*s.vectorWeight + c.TextScore*s.textWeight
		candidates = append(candidates, *c)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].FusedScore > candidates[j].FusedScore })
	if len(candidates) > plan.TopK {
		candidates = candidates[:plan.TopK]
	}
	return candidates
}

// vectorSearch degrades to nothing rather than failing the whole search;
// retrieval stays available when the vector backend is unhealthy.
func (s *Service) vectorSearch(ctx context.Context, query string, plan Plan, scope Scope) []VectorHit {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		slog.WarnContext(ctx, "query embedding failed, degrading to lexical-only", "error", err)
		return nil
	}

	filters := map[string]interface{}{}
	if scope.UserID != "" {
		filters["userId"] = scope.UserID
	}
	if len(scope.DocumentIDs) > 0 {
		filters["documentId"] = scope.DocumentIDs
	}

	hits, err := s.store.SimilaritySearch(ctx, vector, plan.TopK, plan.SimilarityThreshold, filters)
	if err != nil {
		slog.WarnContext(ctx, "vector search failed, degrading to lexical-only", "error", err)
		return nil
	}
	return hits
}

func (s *Service) rerank(ctx context.Context, query string, candidates []Candidate, topK int) []Candidate {
	if s.reranker == nil || len(candidates) == 0 {
		return candidates
	}

	docs := make(map[string]string, len(candidates))
	byKey := make(map[string]Candidate, len(candidates))
	for _, c := range candidates {
		key := c.ChunkID
		if key == "" {
			key = c.DocumentID
		}
		docs[key] = c.Content
		byKey[key] = c
	}

	ordered, err := s.reranker.Rerank(ctx, query, docs, topK)
	if err != nil {
		slog.WarnContext(ctx, "rerank failed, keeping fused ordering", "error", err)
		return candidates
	}

	reranked := make([]Candidate, 0, len(ordered))
	for _, doc := range ordered {
		if c, ok := byKey[doc.ID]; ok {
			c.RerankScore = doc.Score
			reranked = append(reranked, c)
		}
	}
	return reranked
}
