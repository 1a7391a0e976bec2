package research

import "github.com/lexops/deepresearch/message"

// FlowInfo is the shared shape of one retrieval attempt: its position in the
// result's flow list, the queries it ran, and the index analysis verdict.
// DocumentCount is a pointer so an announce delta omits it rather than
// reporting zero.
type FlowInfo struct {
	Index           int         `json:"index"`
	ExpandedQueries []string    `json:"expandedQueries,omitempty"`
	DocumentCount   *int        `json:"documentCount,omitempty"`
	Reason          string      `json:"reason,omitempty"`
	Sufficiency     Sufficiency `json:"sufficiency,omitempty"`
}

// Flow is one retrieval attempt in a Result. Implementations serialize with a
// "type" discriminator so listeners can tell statute and precedent attempts
// apart.
type Flow interface {
	Info() *FlowInfo
	Documents() []message.Document
}

func countOf[C any](docs []C) *int {
	n := len(docs)
	return &n
}

func toDocuments[C message.Document](docs []C) []message.Document {
	out := make([]message.Document, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out
}
