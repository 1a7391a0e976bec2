// Package research runs the deep research pipeline for legal queries:
// self-query filtering, query reconstruction, parallel statute and precedent
// retrieval with analysis-driven retries, global analysis, and answer
// planning.
package research

import (
	"encoding/json"

	"github.com/lexops/deepresearch/message"
)

// Sufficiency is an analysis verdict on whether retrieved data suffices.
type Sufficiency string

const (
	SufficiencyPass Sufficiency = "pass"
	SufficiencyFail Sufficiency = "fail"
)

// ReasoningObject pairs a streamed reasoning trace with a typed payload.
// Streamed deltas carry one of the two; the final object carries both.
type ReasoningObject[T any] struct {
	Reason string `json:"reason,omitempty"`
	Data   T      `json:"data,omitempty"`
}

// ChatRequest is the common input of the conversational flows.
type ChatRequest struct {
	Model     string            `json:"model,omitempty"`
	History   []message.Message `json:"history"`
	LastQuery string            `json:"lastQuery"`
}

// SelfQueryResponse carries the filters and semantic query extracted from the
// conversation. BaseDate is a YYYYMMDD integer; zero means the flow produced
// none and the pipeline substitutes today.
type SelfQueryResponse struct {
	StatuteFilter   *StatuteFilter   `json:"statuteFilter,omitempty"`
	PrecedentFilter *PrecedentFilter `json:"precedentFilter,omitempty"`
	SemanticQuery   string           `json:"semanticQuery,omitempty"`
	BaseDate        int              `json:"baseDate,omitempty"`
}

// QueryReconstructionResponse is the standalone search query rebuilt from the
// conversation.
type QueryReconstructionResponse struct {
	SearchQuery string `json:"searchQuery"`
}

// QueryExpansionRequest asks for expansions of one query.
type QueryExpansionRequest struct {
	Query string `json:"query"`
}

// QueryExpansionResponse lists the expanded query terms.
type QueryExpansionResponse struct {
	Queries []string `json:"queries"`
}

// OriginInfo records where one retrieval hit came from and how it scored
// there.
type OriginInfo struct {
	Origin string  `json:"origin,omitempty"`
	Query  string  `json:"query,omitempty"`
	Score  float64 `json:"score,omitempty"`
	Rank   int     `json:"rank,omitempty"`
}

// Scored wraps a retrieved item with its fusion and rerank scores. The
// pipeline keeps only Data; scores exist for diagnostics.
type Scored[T any] struct {
	Origins       []OriginInfo `json:"origins,omitempty"`
	FusedScore    float64      `json:"fusedScore,omitempty"`
	FusedRank     int          `json:"fusedRank,omitempty"`
	RerankedScore float64      `json:"rerankedScore,omitempty"`
	RerankedRank  int          `json:"rerankedRank,omitempty"`
	Data          T            `json:"data"`
}

// AnalysisRequest asks an analysis flow to judge documents against a query.
type AnalysisRequest struct {
	Query     string             `json:"query"`
	Documents []message.Document `json:"documents"`
}

// IndexAnalysisResponse is the per-retrieval verdict. SupportedQueries seed
// the next retry when the verdict is fail.
type IndexAnalysisResponse struct {
	Sufficiency      Sufficiency `json:"isDataSufficient"`
	SupportedQueries []string    `json:"supportedQueries"`
}

// GlobalAnalysisResponse is the verdict over all retrieved documents.
type GlobalAnalysisResponse struct {
	Sufficiency Sufficiency `json:"isDataSufficient"`
}

// PlanRequest asks the planning flow for an answer outline. Reason carries
// the global analysis reasoning.
type PlanRequest struct {
	Query     string             `json:"query"`
	Documents []message.Document `json:"documents"`
	Reason    string             `json:"reason,omitempty"`
}

// IntentClassification tells what kind of turn the last user query is.
type IntentClassification struct {
	IsSummary    bool `json:"isSummary"`
	IsTransition bool `json:"isTransition"`
	IsSmalltalk  bool `json:"isSmalltalk"`
	IsSearch     bool `json:"isSearch"`
}

// UnmarshalJSON accepts both camelCase and snake_case keys; classifier
// prompts have produced both.
func (c *IntentClassification) UnmarshalJSON(data []byte) error {
	var raw map[string]bool
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	pick := func(camel, snake string) bool {
		if v, ok := raw[camel]; ok {
			return v
		}
		return raw[snake]
	}
	c.IsSummary = pick("isSummary", "is_summary")
	c.IsTransition = pick("isTransition", "is_transition")
	c.IsSmalltalk = pick("isSmalltalk", "is_smalltalk")
	c.IsSearch = pick("isSearch", "is_search")
	return nil
}

// TitleRequest asks for a conversation title from the first exchange.
type TitleRequest struct {
	Query  string `json:"query"`
	Answer string `json:"answer"`
}

// TitleResponse is the generated title.
type TitleResponse struct {
	Title string `json:"title"`
}

// SystemPromptRequest selects a system prompt by type.
type SystemPromptRequest struct {
	Type string `json:"type"`
}

// ModelInfo describes one available model.
type ModelInfo struct {
	Name string `json:"name"`
	Abbr string `json:"abbr,omitempty"`
}

// ModelsResponse lists the available models.
type ModelsResponse struct {
	Models []ModelInfo `json:"models"`
}
