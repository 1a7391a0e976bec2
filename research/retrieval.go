package research

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/lexops/deepresearch/internal/metrics"
	"github.com/lexops/deepresearch/message"
	"github.com/lexops/deepresearch/workflow"
)

func (p *Processor) statuteRetrieve(ctx context.Context, represent string, queries []string,
	filter *StatuteFilter, baseDate int) ([]StatuteChunk, error) {
	qs := make([]StatuteQuery, 0, len(queries)+1)
	qs = append(qs, StatuteQuery{Query: represent, Filter: filter, BaseDate: baseDate})
	for _, q := range queries {
		qs = append(qs, StatuteQuery{Query: q, BaseDate: baseDate})
	}
	resp, err := workflow.Call[StatuteRetrieveResponse](ctx, p.flows, p.flowPaths().StatuteRetrieve,
		StatuteRetrieveRequest{RepresentQuery: represent, Queries: qs})
	if err != nil {
		return nil, err
	}
	docs := make([]StatuteChunk, 0, len(resp.Results))
	for _, scored := range resp.Results {
		docs = append(docs, scored.Data)
	}
	return docs, nil
}

func (p *Processor) precedentRetrieve(ctx context.Context, represent string, queries []string,
	filter *PrecedentFilter, baseDate int) ([]PrecedentChunk, error) {
	qs := make([]PrecedentQuery, 0, len(queries)+1)
	qs = append(qs, PrecedentQuery{Query: represent, Filter: filter, BaseDate: baseDate})
	for _, q := range queries {
		qs = append(qs, PrecedentQuery{Query: q, BaseDate: baseDate})
	}
	resp, err := workflow.Call[PrecedentRetrieveResponse](ctx, p.flows, p.flowPaths().PrecedentRetrieve,
		PrecedentRetrieveRequest{RepresentQuery: represent, Queries: qs})
	if err != nil {
		return nil, err
	}
	docs := make([]PrecedentChunk, 0, len(resp.Results))
	for _, scored := range resp.Results {
		docs = append(docs, scored.Data)
	}
	return docs, nil
}

// runRetrieval is one search-refine loop. Each attempt announces its queries,
// retrieves, streams the index analysis with flow-scoped partials, and
// appends the finished Flow to the shared result. It stops on a pass verdict,
// on empty follow-up queries, after maxRetry retries, or when the run is no
// longer live. Zero retrieved documents still go through analysis.
func runRetrieval[C message.Document](
	p *Processor,
	ctx context.Context,
	wc *workflow.Context[*Result],
	result *Result,
	flowIndex *atomic.Int32,
	searchQuery string,
	kind string,
	retrieve func(ctx context.Context, queries []string) ([]C, error),
	makeFlow func(info FlowInfo, docs []C) Flow,
) error {
	queries, err := p.queryExpansion(ctx, searchQuery)
	if err != nil {
		return err
	}

	for attempt := 0; attempt <= p.maxRetry && !wc.Cancelled(); attempt++ {
		curIndex := int(flowIndex.Add(1)) - 1
		metrics.RetrievalAttempts.WithLabelValues(kind).Inc()

		wc.EmitNext(flowDelta(makeFlow(FlowInfo{
			Index:           curIndex,
			ExpandedQueries: append([]string(nil), queries...),
		}, nil)))

		if wc.CheckCompleted() != workflow.StageContinue {
			return nil
		}

		docs, err := retrieve(ctx, queries)
		if err != nil {
			return err
		}

		wc.EmitNext(flowDelta(makeFlow(FlowInfo{
			Index:         curIndex,
			DocumentCount: countOf(docs),
		}, docs)))

		if wc.CheckCompleted() != workflow.StageContinue {
			return nil
		}

		analysis, err := p.indexAnalysis(ctx,
			AnalysisRequest{Query: searchQuery, Documents: toDocuments(docs)},
			workflow.ListenerFuncs[*ReasoningObject[IndexAnalysisResponse]]{
				Next: func(item *ReasoningObject[IndexAnalysisResponse]) {
					info := FlowInfo{Index: curIndex}
					if strings.TrimSpace(item.Reason) != "" {
						info.Reason = item.Reason
					}
					if item.Data.Sufficiency != "" {
						info.Sufficiency = item.Data.Sufficiency
					}
					wc.EmitNext(flowDelta(makeFlow(info, nil)))
				},
			}).Get(ctx)
		if err != nil {
			return err
		}

		result.AppendFlow(makeFlow(FlowInfo{
			Index:           curIndex,
			ExpandedQueries: append([]string(nil), queries...),
			DocumentCount:   countOf(docs),
			Reason:          analysis.Reason,
			Sufficiency:     analysis.Data.Sufficiency,
		}, docs))
		wc.SetResult(result)

		if analysis.Data.Sufficiency == SufficiencyPass {
			break
		}
		next := analysis.Data.SupportedQueries
		if len(next) == 0 {
			break
		}
		queries = next
	}
	return nil
}
