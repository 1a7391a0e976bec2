package research

import (
	"encoding/json"
	"fmt"

	"github.com/lexops/deepresearch/message"
)

// StatuteChunk is one retrieved statute article fragment. Field names follow
// the retrieval index schema.
type StatuteChunk struct {
	MST           int      `json:"mst,omitempty"`
	EffectiveDate int      `json:"efYd,omitempty"`
	Key           int      `json:"key,omitempty"`
	DocID         string   `json:"docId,omitempty"`
	ChunkNo       int      `json:"chunkNo,omitempty"`
	ArticleNo     int      `json:"no,omitempty"`
	BranchNo      int      `json:"brNo,omitempty"`
	ArticleTitle  string   `json:"title,omitempty"`
	RevisionClass string   `json:"rrCls,omitempty"`
	Text          string   `json:"content,omitempty"`
	StatuteID     int      `json:"lsId,omitempty"`
	StatuteName   string   `json:"lsNm,omitempty"`
	AnnounceNo    int      `json:"ancNm,omitempty"`
	AnnounceDate  int      `json:"ancYd,omitempty"`
	Kinds         []string `json:"knd,omitempty"`
	Organizations []string `json:"org,omitempty"`
}

// ID returns the document identity, deriving one from the statute master
// number when the index did not assign an explicit id.
func (c StatuteChunk) ID() string {
	if c.DocID != "" {
		return c.DocID
	}
	if c.MST != 0 {
		return fmt.Sprintf("statute-%d-%d-%d", c.MST, c.EffectiveDate, c.ArticleNo)
	}
	return ""
}

func (c StatuteChunk) Title() string { return c.ArticleTitle }

func (c StatuteChunk) Content() string { return c.Text }

// URL links to the statute on the national law information center, addressed
// by master number and effective date.
func (c StatuteChunk) URL() string {
	if c.MST == 0 {
		return ""
	}
	url := "https://www.law.go.kr/lsSc.do?menuId=1&subMenuId=15&tabMenuId=81&query=" +
		"&dt=20201117&section=&eventId=" +
		fmt.Sprintf("&OC=dnjsdms60&ancYnChk=0&ancYd=&lsiSeq=%d", c.MST)
	if c.EffectiveDate != 0 {
		url += fmt.Sprintf("&efYd=%d", c.EffectiveDate)
	}
	return url
}

// StatuteFilter narrows statute retrieval to specific articles, organs, or
// revision classes.
type StatuteFilter struct {
	ArticleNo     int    `json:"no,omitempty"`
	BranchNo      int    `json:"brNo,omitempty"`
	Title         string `json:"title,omitempty"`
	Organization  string `json:"org,omitempty"`
	Kind          string `json:"knd,omitempty"`
	RevisionClass string `json:"rrCls,omitempty"`
	AnnounceDate  int    `json:"ancYd,omitempty"`
	AnnounceNo    int    `json:"ancNo,omitempty"`
	EffectiveDate int    `json:"efYd,omitempty"`
}

// StatuteQuery is one query in a statute retrieval request. Only the
// representative query carries the filter.
type StatuteQuery struct {
	Query    string         `json:"query"`
	Filter   *StatuteFilter `json:"filter,omitempty"`
	BaseDate int            `json:"baseDate,omitempty"`
}

// StatuteRetrieveRequest is the statute retrieval flow input.
type StatuteRetrieveRequest struct {
	RepresentQuery string         `json:"representQueryStr"`
	Queries        []StatuteQuery `json:"queries"`
}

// StatuteRetrieveResponse is the scored statute retrieval output.
type StatuteRetrieveResponse struct {
	Results []Scored[StatuteChunk] `json:"results"`
}

// StatuteFlow is one statute retrieval attempt.
type StatuteFlow struct {
	FlowInfo
	Docs []StatuteChunk `json:"documents,omitempty"`
}

func (f *StatuteFlow) Info() *FlowInfo { return &f.FlowInfo }

func (f *StatuteFlow) Documents() []message.Document { return toDocuments(f.Docs) }

func (f *StatuteFlow) MarshalJSON() ([]byte, error) {
	type plain StatuteFlow
	return json.Marshal(struct {
		Type string `json:"type"`
		*plain
	}{Type: "statute", plain: (*plain)(f)})
}
