package research

import (
	"encoding/json"

	"github.com/lexops/deepresearch/message"
)

// PrecedentChunk is one retrieved court decision fragment.
type PrecedentChunk struct {
	ChunkID    string `json:"id,omitempty"`
	CaseName   string `json:"caseName,omitempty"`
	CaseNumber string `json:"caseNumber,omitempty"`
	Text       string `json:"content,omitempty"`
}

// ID returns the document identity, deriving one from the case number when
// the index did not assign an explicit id.
func (c PrecedentChunk) ID() string {
	if c.ChunkID != "" {
		return c.ChunkID
	}
	if c.CaseNumber != "" {
		return "precedent-" + c.CaseNumber
	}
	return ""
}

func (c PrecedentChunk) Title() string { return c.CaseName }

func (c PrecedentChunk) Content() string { return c.Text }

// URL links to the decision on the supreme court's case law portal.
func (c PrecedentChunk) URL() string {
	if c.CaseNumber == "" {
		return ""
	}
	return "https://glaw.scourt.go.kr/wsjo/panre/sjo100.do?contId=" + c.CaseNumber
}

// PrecedentFilter narrows precedent retrieval.
type PrecedentFilter struct {
	CaseName     string `json:"caseName,omitempty"`
	CaseNumber   string `json:"caseNumber,omitempty"`
	Court        string `json:"court,omitempty"`
	CaseType     string `json:"caseType,omitempty"`
	DecisionDate int    `json:"prncYd,omitempty"`
}

// PrecedentQuery is one query in a precedent retrieval request. Only the
// representative query carries the filter.
type PrecedentQuery struct {
	Query    string           `json:"query"`
	Filter   *PrecedentFilter `json:"filter,omitempty"`
	BaseDate int              `json:"baseDate,omitempty"`
}

// PrecedentRetrieveRequest is the precedent retrieval flow input.
type PrecedentRetrieveRequest struct {
	RepresentQuery string           `json:"representQueryStr"`
	Queries        []PrecedentQuery `json:"queries"`
}

// PrecedentRetrieveResponse is the scored precedent retrieval output.
type PrecedentRetrieveResponse struct {
	Results []Scored[PrecedentChunk] `json:"results"`
}

// PrecedentFlow is one precedent retrieval attempt.
type PrecedentFlow struct {
	FlowInfo
	Docs []PrecedentChunk `json:"documents,omitempty"`
}

func (f *PrecedentFlow) Info() *FlowInfo { return &f.FlowInfo }

func (f *PrecedentFlow) Documents() []message.Document { return toDocuments(f.Docs) }

func (f *PrecedentFlow) MarshalJSON() ([]byte, error) {
	type plain PrecedentFlow
	return json.Marshal(struct {
		Type string `json:"type"`
		*plain
	}{Type: "precedent", plain: (*plain)(f)})
}
