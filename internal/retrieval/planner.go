package retrieval

import "strings"

type QueryType string

const (
	QueryTypeFact       QueryType = "fact"
	QueryTypeComparison QueryType = "comparison"
	QueryTypeSummary    QueryType = "summary"
	QueryTypeHowTo      QueryType = "howto"
	QueryTypeWhy        QueryType = "why"
	QueryTypeGeneral    QueryType = "general"
)

// Plan is the per-query retrieval parameter set, derived from the query's
// shape: longer questions get broader context, precision-sensitive types get
// a tighter similarity threshold.
type Plan struct {
	TopK                int
	SimilarityThreshold float64
	QueryType           QueryType
}

// queryPatterns is matched in order, first match wins.
var queryPatterns = []struct {
	qtype    QueryType
	keywords []string
}{
	{QueryTypeFact, []string{"what is", "what are", "define", "definition", "是什么", "什么是", "定义"}},
	{QueryTypeComparison, []string{"compare", "difference", "versus", " vs ", "比较", "区别", "异同"}},
	{QueryTypeSummary, []string{"summarize", "summary", "overview", "总结", "概括", "概述"}},
	{QueryTypeHowTo, []string{"how to", "how do", "how can", "steps", "怎么", "如何", "步骤"}},
	{QueryTypeWhy, []string{"why", "reason", "cause", "为什么", "原因"}},
}

var thresholds = map[QueryType]float64{
	QueryTypeFact:       0.75,
	QueryTypeHowTo:      0.70,
	QueryTypeWhy:        0.68,
	QueryTypeGeneral:    0.65,
	QueryTypeComparison: 0.60,
	QueryTypeSummary:    0.55,
}

// NewPlan classifies the query and picks topK and similarity threshold.
func NewPlan(query string) Plan {
	qtype := classify(query)
	return Plan{
		TopK:                topKForLength(len([]rune(query))),
		SimilarityThreshold: thresholds[qtype],
		QueryType:           qtype,
	}
}

func classify(query string) QueryType {
	lower := strings.ToLower(query)
	for _, p := range queryPatterns {
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				return p.qtype
			}
		}
	}
	return QueryTypeGeneral
}

func topKForLength(length int) int {
	switch {
	case length < 20:
		return 5
	case length < 50:
		return 8
	case length < 100:
		return 12
	default:
		return 15
	}
}
