package research

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllDocumentsDedupesAcrossFlows(t *testing.T) {
	r := &Result{}
	r.AppendFlow(&StatuteFlow{
		FlowInfo: FlowInfo{Index: 0},
		Docs: []StatuteChunk{
			{DocID: "s1", Text: "first"},
			{DocID: "s2"},
		},
	})
	r.AppendFlow(&PrecedentFlow{
		FlowInfo: FlowInfo{Index: 1},
		Docs: []PrecedentChunk{
			{ChunkID: "p1"},
			{ChunkID: "s1"},
		},
	})
	r.AppendFlow(&StatuteFlow{
		FlowInfo: FlowInfo{Index: 2},
		Docs: []StatuteChunk{
			{DocID: "s2"},
			{DocID: "s3"},
		},
	})

	docs := r.AllDocuments()
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID()
	}
	assert.Equal(t, []string{"s1", "s2", "p1", "s3"}, ids)
	// First occurrence wins.
	assert.Equal(t, "first", docs[0].Content())
}

func TestAllDocumentsSkipsMissingIDs(t *testing.T) {
	r := &Result{}
	r.AppendFlow(&PrecedentFlow{Docs: []PrecedentChunk{
		{Text: "no identity"},
		{CaseNumber: "2020다1234"},
	}})

	docs := r.AllDocuments()
	require.Len(t, docs, 1)
	assert.Equal(t, "precedent-2020다1234", docs[0].ID())
}

func TestDerivedDocumentIDs(t *testing.T) {
	assert.Equal(t, "doc-7", StatuteChunk{DocID: "doc-7", MST: 1}.ID())
	assert.Equal(t, "statute-11-20240101-3", StatuteChunk{MST: 11, EffectiveDate: 20240101, ArticleNo: 3}.ID())
	assert.Equal(t, "", StatuteChunk{ArticleNo: 3}.ID())

	assert.Equal(t, "chunk-1", PrecedentChunk{ChunkID: "chunk-1", CaseNumber: "x"}.ID())
	assert.Equal(t, "precedent-2019도99", PrecedentChunk{CaseNumber: "2019도99"}.ID())
	assert.Equal(t, "", PrecedentChunk{}.ID())
}

func TestDocumentURLs(t *testing.T) {
	assert.Contains(t, StatuteChunk{MST: 42, EffectiveDate: 20230101}.URL(), "lsiSeq=42")
	assert.Contains(t, StatuteChunk{MST: 42, EffectiveDate: 20230101}.URL(), "efYd=20230101")
	assert.Equal(t, "", StatuteChunk{}.URL())
	assert.Equal(t,
		"https://glaw.scourt.go.kr/wsjo/panre/sjo100.do?contId=2020다1234",
		PrecedentChunk{CaseNumber: "2020다1234"}.URL())
}

func TestResultMarshalTagsFlowTypes(t *testing.T) {
	r := &Result{SearchQuery: "q"}
	r.AppendFlow(&StatuteFlow{FlowInfo: FlowInfo{Index: 0}})
	r.AppendFlow(&PrecedentFlow{FlowInfo: FlowInfo{Index: 1}})

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded struct {
		SearchQuery string `json:"searchQuery"`
		Flows       []struct {
			Type  string `json:"type"`
			Index int    `json:"index"`
		} `json:"retrievalFlows"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "q", decoded.SearchQuery)
	require.Len(t, decoded.Flows, 2)
	assert.Equal(t, "statute", decoded.Flows[0].Type)
	assert.Equal(t, "precedent", decoded.Flows[1].Type)
	assert.Equal(t, 1, decoded.Flows[1].Index)
}

func TestFlowMarshalOmitsCountWhenUnset(t *testing.T) {
	announce, err := json.Marshal(&StatuteFlow{FlowInfo: FlowInfo{Index: 2, ExpandedQueries: []string{"a"}}})
	require.NoError(t, err)
	assert.NotContains(t, string(announce), "documentCount")

	counted, err := json.Marshal(&StatuteFlow{FlowInfo: FlowInfo{Index: 2, DocumentCount: countOf([]StatuteChunk{})}})
	require.NoError(t, err)
	assert.Contains(t, string(counted), `"documentCount":0`)
}
