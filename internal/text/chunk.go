package text

import "unicode"

type ChunkKind string

const (
	ChunkKindSection  ChunkKind = "section"
	ChunkKindSemantic ChunkKind = "semantic"
	ChunkKindFallback ChunkKind = "fallback"
)

// Chunk is a retrievable unit of document text. Offsets refer to the
// original input; injected overlap previews are not reflected in them.
type Chunk struct {
	Content      string
	Index        int
	TokenCount   int
	Kind         ChunkKind
	SectionTitle string
	SectionLevel int
	StartOffset  int
	EndOffset    int
}

// Section is a structural hint supplied by the upstream extractor:
// a heading with its nesting level and the rune offset where it starts.
type Section struct {
	Title string
	Level int
	Start int
}

// EstimateTokens approximates token count from rune length. CJK text packs
// roughly one token per 1.5 characters, Latin text one per 4. This is a
// coarse heuristic, not a tokenizer.
func EstimateTokens(s string) int {
	runes := []rune(s)
	if containsCJK(runes) {
		return int(float64(len(runes)) / 1.5)
	}
	return len(runes) / 4
}

func containsCJK(runes []rune) bool {
	for _, r := range runes {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
