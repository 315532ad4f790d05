package text

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode"
)

const (
	// embedBatchSize matches the embedding provider's maximum batch size.
	embedBatchSize = 10

	// breakpointThreshold is the adjacent-sentence similarity below which
	// a semantic boundary is placed.
	breakpointThreshold = 0.5

	// charsPerToken is the token→character heuristic used for overlap
	// previews and fallback windows.
	charsPerToken = 4
)

// SentenceEmbedder produces one vector per input text. A failed call may be
// substituted with empty vectors by the caller.
type SentenceEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunker splits document text into retrievable chunks. Section hints from
// the structural extractor take precedence; without them, sentences are
// segmented by embedding similarity. Any unexpected failure degrades to
// fixed-size windows, so Chunk always produces output for non-empty input.
type Chunker struct {
	embedder SentenceEmbedder
}

func NewChunker(e SentenceEmbedder) *Chunker {
	return &Chunker{embedder: e}
}

func (c *Chunker) Chunk(ctx context.Context, content string, sections []Section, targetTokens, overlapTokens int) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	if len(sections) > 0 {
		return chunkSections(content, sections, overlapTokens)
	}

	chunks, err := c.chunkSemantic(ctx, content, overlapTokens)
	if err != nil {
		slog.WarnContext(ctx, "semantic chunking failed, falling back to fixed windows", "error", err)
		return chunkWindows(content, targetTokens, overlapTokens)
	}
	return chunks
}

// chunkSections emits one chunk per section. Each section's span runs to the
// start of the next one, so the spans cover the whole input. Every chunk but
// the last carries a preview of the next section's leading text.
func chunkSections(content string, sections []Section, overlapTokens int) []Chunk {
	runes := []rune(content)

	ordered := make([]Section, len(sections))
	copy(ordered, sections)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	type span struct {
		sec        *Section
		start, end int
	}
	var spans []span

	if len(ordered) == 0 || ordered[0].Start > 0 {
		first := len(runes)
		if len(ordered) > 0 {
			first = clamp(ordered[0].Start, 0, len(runes))
		}
		spans = append(spans, span{start: 0, end: first})
	}
	for i := range ordered {
		start := clamp(ordered[i].Start, 0, len(runes))
		end := len(runes)
		if i+1 < len(ordered) {
			end = clamp(ordered[i+1].Start, start, len(runes))
		}
		spans = append(spans, span{sec: &ordered[i], start: start, end: end})
	}

	overlapChars := overlapTokens * charsPerToken
	chunks := make([]Chunk, 0, len(spans))
	for i, sp := range spans {
		body := string(runes[sp.start:sp.end])

		var b strings.Builder
		title := ""
		level := 0
		if sp.sec != nil {
			title = sp.sec.Title
			level = sp.sec.Level
			if level < 1 {
				level = 1
			}
			b.WriteString(strings.Repeat("#", level))
			b.WriteString(" ")
			b.WriteString(title)
			b.WriteString("\n")
		}
		b.WriteString(body)

		if i+1 < len(spans) {
			next := spans[i+1]
			b.WriteString("\n")
			b.WriteString(preview(runes[next.start:next.end], overlapChars))
		}

		chunks = append(chunks, Chunk{
			Content:      b.String(),
			Index:        i,
			TokenCount:   EstimateTokens(body),
			Kind:         ChunkKindSection,
			SectionTitle: title,
			SectionLevel: level,
			StartOffset:  sp.start,
			EndOffset:    sp.end,
		})
	}
	return chunks
}

func (c *Chunker) chunkSemantic(ctx context.Context, content string, overlapTokens int) (chunks []Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("semantic chunking panicked: %v", r)
		}
	}()

	if c.embedder == nil {
		return nil, fmt.Errorf("no sentence embedder configured")
	}

	runes := []rune(content)
	sentences := splitSentences(runes)

	if len(sentences) <= 1 {
		return []Chunk{{
			Content:     content,
			TokenCount:  EstimateTokens(content),
			Kind:        ChunkKindSemantic,
			StartOffset: 0,
			EndOffset:   len(runes),
		}}, nil
	}

	texts := make([]string, len(sentences))
	for i, s := range sentences {
		texts[i] = strings.TrimSpace(string(runes[s.start:s.end]))
	}

	vectors := c.embedSentences(ctx, texts)

	sims := make([]float64, len(sentences)-1)
	for i := range sims {
		sims[i] = cosine(vectors[i], vectors[i+1])
	}

	boundaries := breakpoints(sims, breakpointThreshold)

	type span struct{ start, end int }
	var spans []span
	prev := 0
	for _, bp := range boundaries {
		spans = append(spans, span{sentences[prev].start, sentences[bp].end})
		prev = bp + 1
	}
	spans = append(spans, span{sentences[prev].start, sentences[len(sentences)-1].end})

	overlapChars := overlapTokens * charsPerToken
	for i, sp := range spans {
		body := string(runes[sp.start:sp.end])
		chunkContent := body
		if i+1 < len(spans) {
			next := spans[i+1]
			chunkContent += "\n" + preview(runes[next.start:next.end], overlapChars)
		}
		chunks = append(chunks, Chunk{
			Content:     chunkContent,
			Index:       i,
			TokenCount:  EstimateTokens(body),
			Kind:        ChunkKindSemantic,
			StartOffset: sp.start,
			EndOffset:   sp.end,
		})
	}
	return chunks, nil
}

// embedSentences embeds in provider-sized batches, issued sequentially to
// respect rate limits. A failed batch yields empty vectors for its sentences
// so that every adjacent pair there reads as a boundary candidate.
func (c *Chunker) embedSentences(ctx context.Context, texts []string) [][]float32 {
	vectors := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := c.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil || len(batch) != end-start {
			slog.WarnContext(ctx, "sentence embedding batch failed, substituting empty vectors",
				"error", err, "batch_start", start, "batch_size", end-start)
			continue
		}
		copy(vectors[start:end], batch)
	}
	return vectors
}

// breakpoints returns the indices i where sims[i] falls below the threshold,
// i.e. a chunk boundary after sentence i.
func breakpoints(sims []float64, threshold float64) []int {
	var out []int
	for i, s := range sims {
		if s < threshold {
			out = append(out, i)
		}
	}
	return out
}

// chunkWindows is the last-resort path: fixed-size character windows with a
// fixed character overlap between consecutive windows.
func chunkWindows(content string, targetTokens, overlapTokens int) []Chunk {
	runes := []rune(content)
	window := targetTokens * charsPerToken
	if window <= 0 {
		window = charsPerToken
	}
	overlap := overlapTokens * charsPerToken
	if overlap >= window {
		overlap = 0
	}
	stride := window - overlap

	var chunks []Chunk
	for start := 0; start < len(runes); start += stride {
		end := start + window
		if end > len(runes) {
			end = len(runes)
		}
		body := string(runes[start:end])
		chunks = append(chunks, Chunk{
			Content:     body,
			Index:       len(chunks),
			TokenCount:  EstimateTokens(body),
			Kind:        ChunkKindFallback,
			StartOffset: start,
			EndOffset:   end,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

type sentenceSpan struct{ start, end int }

// splitSentences segments on sentence-ending punctuation, covering both CJK
// and Latin terminator classes. Spans are contiguous: trailing terminators
// and whitespace belong to the sentence they close.
func splitSentences(runes []rune) []sentenceSpan {
	var spans []sentenceSpan
	start := 0
	i := 0
	for i < len(runes) {
		if !isSentenceEnd(runes[i]) {
			i++
			continue
		}
		for i < len(runes) && isSentenceEnd(runes[i]) {
			i++
		}
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			i++
		}
		spans = append(spans, sentenceSpan{start, i})
		start = i
	}
	if start < len(runes) {
		spans = append(spans, sentenceSpan{start, len(runes)})
	}
	return spans
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', ';', '。', '！', '？', '；', '…':
		return true
	}
	return false
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func preview(runes []rune, maxChars int) string {
	if maxChars <= 0 || len(runes) == 0 {
		return ""
	}
	if len(runes) > maxChars {
		runes = runes[:maxChars]
	}
	return strings.TrimSpace(string(runes))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
