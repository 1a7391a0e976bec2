package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lexops/deepresearch/config"
	"github.com/lexops/deepresearch/internal/metrics"
	"github.com/lexops/deepresearch/llm"
	"github.com/lexops/deepresearch/message"
	"github.com/lexops/deepresearch/workflow"
)

const defaultMaxRetry = 2

// Processor drives the deep research pipeline against the workflow service
// and the completion backends it hands out.
type Processor struct {
	flows    *workflow.Client
	llm      *llm.Client
	maxRetry int
	logger   *zap.Logger

	mu    sync.RWMutex
	paths config.FlowPaths
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = l }
}

// WithMaxRetry sets how many times an insufficient retrieval is retried.
func WithMaxRetry(n int) ProcessorOption {
	return func(p *Processor) { p.maxRetry = n }
}

// NewProcessor builds a pipeline processor.
func NewProcessor(flows *workflow.Client, llmClient *llm.Client, paths config.FlowPaths, opts ...ProcessorOption) *Processor {
	p := &Processor{
		flows:    flows,
		llm:      llmClient,
		paths:    paths,
		maxRetry: defaultMaxRetry,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SetFlowPaths swaps the flow path table, typically from a config reload.
// Runs already in flight keep the paths they resolved.
func (p *Processor) SetFlowPaths(paths config.FlowPaths) {
	p.mu.Lock()
	p.paths = paths
	p.mu.Unlock()
}

func (p *Processor) flowPaths() config.FlowPaths {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paths
}

// Models lists the models available to callers.
func (p *Processor) Models(ctx context.Context) (*ModelsResponse, error) {
	return workflow.Call[ModelsResponse](ctx, p.flows, p.flowPaths().Models, struct{}{})
}

// SystemPrompt fetches the system prompt of the given type, e.g.
// "deepresearch".
func (p *Processor) SystemPrompt(ctx context.Context, promptType string) (string, error) {
	res, err := workflow.Call[string](ctx, p.flows, p.flowPaths().SystemPrompt, SystemPromptRequest{Type: promptType})
	if err != nil {
		return "", err
	}
	return *res, nil
}

// GenerateTitle names a conversation from its first exchange.
func (p *Processor) GenerateTitle(ctx context.Context, query, answer string) (string, error) {
	res, err := workflow.Call[TitleResponse](ctx, p.flows, p.flowPaths().TitleGeneration, TitleRequest{Query: query, Answer: answer})
	if err != nil {
		return "", err
	}
	return res.Title, nil
}

// ClassifyIntent classifies the last user query against the conversation.
func (p *Processor) ClassifyIntent(ctx context.Context, history []message.Message, lastQuery string) (*IntentClassification, error) {
	return workflow.Call[IntentClassification](ctx, p.flows, p.flowPaths().IntentClassification,
		ChatRequest{History: history, LastQuery: lastQuery})
}

func (p *Processor) selfQuery(ctx context.Context, req ChatRequest) (*SelfQueryResponse, error) {
	return workflow.Call[SelfQueryResponse](ctx, p.flows, p.flowPaths().SelfQuery, req)
}

func (p *Processor) queryReconstruction(ctx context.Context, req ChatRequest) (*QueryReconstructionResponse, error) {
	return workflow.Call[QueryReconstructionResponse](ctx, p.flows, p.flowPaths().QueryReconstruction, req)
}

func (p *Processor) queryExpansion(ctx context.Context, query string) ([]string, error) {
	res, err := workflow.Call[QueryExpansionResponse](ctx, p.flows, p.flowPaths().QueryExpansion, QueryExpansionRequest{Query: query})
	if err != nil {
		return nil, err
	}
	return res.Queries, nil
}

// streamReasoning runs an analysis flow: the flow returns a completion
// request, which is then streamed. Reasoning deltas are emitted live; the
// accumulated content parses into T when the stream ends.
func streamReasoning[T any](p *Processor, ctx context.Context, path string, req any,
	listener workflow.Listener[*ReasoningObject[T]]) *workflow.Context[*ReasoningObject[T]] {
	wc := workflow.NewContext(listener)
	direct, err := workflow.Call[llm.Request](ctx, p.flows, path, req)
	if err != nil {
		wc.EmitError(err)
		return wc
	}
	var mu sync.Mutex
	var reason, content strings.Builder
	sub := p.llm.Stream(ctx, *direct, llm.Handlers{
		OnChunk: func(chunk *llm.Chunk) {
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil {
				return
			}
			delta := chunk.Choices[0].Delta
			mu.Lock()
			if strings.TrimSpace(delta.Reasoning) != "" {
				reason.WriteString(delta.Reasoning)
				mu.Unlock()
				wc.EmitNext(&ReasoningObject[T]{Reason: delta.Reasoning})
				return
			}
			if strings.TrimSpace(delta.Content) != "" {
				content.WriteString(delta.Content)
			}
			mu.Unlock()
		},
		OnError: wc.EmitError,
		OnComplete: func() {
			mu.Lock()
			body := content.String()
			trace := reason.String()
			mu.Unlock()
			var data T
			if err := json.Unmarshal([]byte(body), &data); err != nil {
				wc.EmitError(fmt.Errorf("parse %s result: %w", path, err))
				return
			}
			out := &ReasoningObject[T]{Data: data}
			wc.EmitNext(out)
			out.Reason = trace
			wc.SetResult(out)
			wc.EmitComplete()
		},
	})
	wc.SetSubscription(sub)
	return wc
}

func (p *Processor) indexAnalysis(ctx context.Context, req AnalysisRequest,
	listener workflow.Listener[*ReasoningObject[IndexAnalysisResponse]]) *workflow.Context[*ReasoningObject[IndexAnalysisResponse]] {
	return streamReasoning[IndexAnalysisResponse](p, ctx, p.flowPaths().IndexAnalysis, req, listener)
}

func (p *Processor) globalAnalysis(ctx context.Context, req AnalysisRequest,
	listener workflow.Listener[*ReasoningObject[GlobalAnalysisResponse]]) *workflow.Context[*ReasoningObject[GlobalAnalysisResponse]] {
	return streamReasoning[GlobalAnalysisResponse](p, ctx, p.flowPaths().GlobalAnalysis, req, listener)
}

// AnalyzeAndPlan streams an answer plan for the query over the given
// documents. Content deltas are the plan text itself; no parsing happens at
// the end.
func (p *Processor) AnalyzeAndPlan(ctx context.Context, req PlanRequest,
	listener workflow.Listener[*ReasoningObject[string]]) *workflow.Context[*ReasoningObject[string]] {
	wc := workflow.NewContext(listener)
	direct, err := workflow.Call[llm.Request](ctx, p.flows, p.flowPaths().AnalyzePlan, req)
	if err != nil {
		wc.EmitError(err)
		return wc
	}
	var mu sync.Mutex
	var reason, plan strings.Builder
	sub := p.llm.Stream(ctx, *direct, llm.Handlers{
		OnChunk: func(chunk *llm.Chunk) {
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil {
				return
			}
			delta := chunk.Choices[0].Delta
			if strings.TrimSpace(delta.Reasoning) != "" {
				mu.Lock()
				reason.WriteString(delta.Reasoning)
				mu.Unlock()
				wc.EmitNext(&ReasoningObject[string]{Reason: delta.Reasoning})
			}
			if strings.TrimSpace(delta.Content) != "" {
				mu.Lock()
				plan.WriteString(delta.Content)
				mu.Unlock()
				wc.EmitNext(&ReasoningObject[string]{Data: delta.Content})
			}
		},
		OnError: wc.EmitError,
		OnComplete: func() {
			mu.Lock()
			out := &ReasoningObject[string]{Reason: reason.String(), Data: plan.String()}
			mu.Unlock()
			wc.SetResult(out)
			wc.EmitComplete()
		},
	})
	wc.SetSubscription(sub)
	return wc
}

func todayBaseDate() int {
	now := time.Now()
	return now.Year()*10000 + int(now.Month())*100 + now.Day()
}

func boolPtr(b bool) *bool { return &b }

// Research runs the deep research pipeline in the background. Each step
// emits a partial Result through the listener as it completes; retrieval
// events arrive as single-element flow lists, one Flow per attempt. Listener
// callbacks may fire from several goroutines.
//
// Cancelling the returned context stops the pipeline cooperatively and
// completes it with whatever had accumulated. A failed step also completes
// the run, with Error set, rather than failing it.
func (p *Processor) Research(ctx context.Context, model string, history []message.Message,
	lastQuery string, listener workflow.Listener[*Result]) *workflow.Context[*Result] {
	wc := workflow.NewContext(listener)
	result := &Result{Error: boolPtr(false)}
	wc.SetResult(result)
	// A cancelled run still returns the partial result.
	wc.SetOnCancel(wc.EmitComplete)

	go p.run(ctx, wc, result, ChatRequest{Model: model, History: history, LastQuery: lastQuery})
	return wc
}

// checkpoint reports whether the pipeline should stop here.
func (p *Processor) checkpoint(wc *workflow.Context[*Result]) bool {
	switch wc.CheckCompleted() {
	case workflow.StageCancelled:
		metrics.PipelineRuns.WithLabelValues("cancelled").Inc()
		p.logger.Debug("deep research cancelled", zap.String("run", wc.ID()))
		return true
	case workflow.StageCompleted:
		return true
	default:
		return false
	}
}

func (p *Processor) run(ctx context.Context, wc *workflow.Context[*Result], result *Result, chatReq ChatRequest) {
	log := p.logger.With(zap.String("run", wc.ID()))

	fail := func(err error) {
		if errors.Is(err, workflow.ErrCancelled) {
			p.checkpoint(wc)
			return
		}
		log.Error("deep research failed", zap.Error(err))
		metrics.PipelineRuns.WithLabelValues("error").Inc()
		result.Error = boolPtr(true)
		wc.SetResult(result)
		wc.EmitComplete()
	}

	if p.checkpoint(wc) {
		return
	}

	sq, err := p.selfQuery(ctx, chatReq)
	if err != nil {
		fail(err)
		return
	}
	if sq.BaseDate == 0 {
		sq.BaseDate = todayBaseDate()
	}
	wc.EmitNext(&Result{SelfQuery: sq})
	result.SelfQuery = sq
	wc.SetResult(result)

	if p.checkpoint(wc) {
		return
	}

	qr, err := p.queryReconstruction(ctx, chatReq)
	if err != nil {
		fail(err)
		return
	}
	searchQuery := qr.SearchQuery
	wc.EmitNext(&Result{SearchQuery: searchQuery})
	result.SearchQuery = searchQuery
	wc.SetResult(result)

	if p.checkpoint(wc) {
		return
	}

	// Statute and precedent retrieval run concurrently, interleaving their
	// attempts into one flow index sequence. A failure in one loop surfaces
	// only after both have finished.
	var flowIndex atomic.Int32
	var wg sync.WaitGroup
	var loopErrs [2]error
	wg.Add(2)
	go func() {
		defer wg.Done()
		loopErrs[0] = runRetrieval(p, ctx, wc, result, &flowIndex, searchQuery, "statute",
			func(ctx context.Context, queries []string) ([]StatuteChunk, error) {
				return p.statuteRetrieve(ctx, searchQuery, queries, sq.StatuteFilter, sq.BaseDate)
			},
			func(info FlowInfo, docs []StatuteChunk) Flow {
				return &StatuteFlow{FlowInfo: info, Docs: docs}
			})
	}()
	go func() {
		defer wg.Done()
		loopErrs[1] = runRetrieval(p, ctx, wc, result, &flowIndex, searchQuery, "precedent",
			func(ctx context.Context, queries []string) ([]PrecedentChunk, error) {
				return p.precedentRetrieve(ctx, searchQuery, queries, sq.PrecedentFilter, sq.BaseDate)
			},
			func(info FlowInfo, docs []PrecedentChunk) Flow {
				return &PrecedentFlow{FlowInfo: info, Docs: docs}
			})
	}()
	wg.Wait()
	if err := errors.Join(loopErrs[0], loopErrs[1]); err != nil {
		fail(err)
		return
	}

	if p.checkpoint(wc) {
		return
	}

	allDocs := result.AllDocuments()
	log.Info("retrieval finished",
		zap.Int("flows", len(result.Flows())),
		zap.Int("documents", len(allDocs)))

	var gaMu sync.Mutex
	var gaReason strings.Builder
	var gaSufficiency Sufficiency
	ga, err := p.globalAnalysis(ctx, AnalysisRequest{Query: searchQuery, Documents: allDocs},
		workflow.ListenerFuncs[*ReasoningObject[GlobalAnalysisResponse]]{
			Next: func(item *ReasoningObject[GlobalAnalysisResponse]) {
				delta := &Result{}
				gaMu.Lock()
				if strings.TrimSpace(item.Reason) != "" {
					delta.Reason = item.Reason
					gaReason.WriteString(item.Reason)
				}
				if item.Data.Sufficiency != "" {
					delta.Sufficiency = item.Data.Sufficiency
					gaSufficiency = item.Data.Sufficiency
				}
				gaMu.Unlock()
				wc.EmitNext(delta)
			},
			Error: func(err error) {
				gaMu.Lock()
				result.Reason = gaReason.String()
				result.Sufficiency = gaSufficiency
				gaMu.Unlock()
				result.Error = boolPtr(true)
				wc.SetResult(result)
				wc.EmitComplete()
			},
			Cancel: func() {
				gaMu.Lock()
				result.Reason = gaReason.String()
				result.Sufficiency = gaSufficiency
				gaMu.Unlock()
				wc.SetResult(result)
				wc.Cancel()
			},
		}).Get(ctx)
	if err != nil {
		fail(err)
		return
	}
	result.Reason = ga.Reason
	result.Sufficiency = ga.Data.Sufficiency
	wc.SetResult(result)

	if p.checkpoint(wc) {
		return
	}

	var planMu sync.Mutex
	var planBuf strings.Builder
	plan, err := p.AnalyzeAndPlan(ctx,
		PlanRequest{Query: searchQuery, Documents: allDocs, Reason: ga.Reason},
		workflow.ListenerFuncs[*ReasoningObject[string]]{
			Next: func(item *ReasoningObject[string]) {
				if item.Data == "" {
					return
				}
				wc.EmitNext(&Result{Plan: item.Data})
				planMu.Lock()
				planBuf.WriteString(item.Data)
				planMu.Unlock()
			},
			Error: func(err error) {
				planMu.Lock()
				result.Plan = planBuf.String()
				planMu.Unlock()
				result.Error = boolPtr(true)
				wc.SetResult(result)
				wc.EmitComplete()
			},
			Cancel: func() {
				planMu.Lock()
				result.Plan = planBuf.String()
				planMu.Unlock()
				wc.SetResult(result)
				wc.Cancel()
			},
		}).Get(ctx)
	if err != nil {
		fail(err)
		return
	}
	result.Plan = plan.Data

	metrics.PipelineRuns.WithLabelValues("ok").Inc()
	wc.SetResult(result)
	wc.EmitComplete()
}
