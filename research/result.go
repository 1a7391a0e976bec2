package research

import (
	"encoding/json"
	"sync"

	"github.com/lexops/deepresearch/message"
)

// Result is the deep research outcome. During streaming, each pipeline step
// emits a partial Result carrying only the fields that step produced;
// retrieval events arrive as single-element flow lists. The accumulated
// Result grows in place and is the final outcome of the run.
//
// Flow appends are safe across the two concurrent retrieval loops; scalar
// fields are written by the pipeline goroutine only.
type Result struct {
	SelfQuery   *SelfQueryResponse `json:"selfQuery,omitempty"`
	SearchQuery string             `json:"searchQuery,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	Sufficiency Sufficiency        `json:"sufficiency,omitempty"`
	Plan        string             `json:"plan,omitempty"`
	// Error is true when the run stopped on an error and the rest of the
	// fields hold whatever had accumulated by then. Nil is omitted from JSON.
	Error *bool `json:"error,omitempty"`

	mu    sync.Mutex
	flows []Flow
}

// AppendFlow adds one finished retrieval attempt.
func (r *Result) AppendFlow(f Flow) {
	r.mu.Lock()
	r.flows = append(r.flows, f)
	r.mu.Unlock()
}

// Flows returns the retrieval attempts in emission order.
func (r *Result) Flows() []Flow {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Flow, len(r.flows))
	copy(out, r.flows)
	return out
}

// AllDocuments returns every retrieved document across all flows,
// de-duplicated by document ID with first-seen order preserved. Documents
// without an ID are skipped.
func (r *Result) AllDocuments() []message.Document {
	seen := map[string]struct{}{}
	var out []message.Document
	for _, flow := range r.Flows() {
		for _, doc := range flow.Documents() {
			id := doc.ID()
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, doc)
		}
	}
	return out
}

func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		SelfQuery      *SelfQueryResponse `json:"selfQuery,omitempty"`
		SearchQuery    string             `json:"searchQuery,omitempty"`
		RetrievalFlows []Flow             `json:"retrievalFlows,omitempty"`
		Reason         string             `json:"reason,omitempty"`
		Sufficiency    Sufficiency        `json:"sufficiency,omitempty"`
		Plan           string             `json:"plan,omitempty"`
		Error          *bool              `json:"error,omitempty"`
	}{
		SelfQuery:      r.SelfQuery,
		SearchQuery:    r.SearchQuery,
		RetrievalFlows: r.Flows(),
		Reason:         r.Reason,
		Sufficiency:    r.Sufficiency,
		Plan:           r.Plan,
		Error:          r.Error,
	})
}

func flowDelta(f Flow) *Result {
	return &Result{flows: []Flow{f}}
}
