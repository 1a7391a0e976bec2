// Package deepresearch is the orchestration client of the legal research
// assistant. It ties together the workflow service client, the streaming
// completion client, and the research pipeline behind one entry point.
package deepresearch

import (
	"context"

	"go.uber.org/zap"

	"github.com/lexops/deepresearch/config"
	"github.com/lexops/deepresearch/llm"
	"github.com/lexops/deepresearch/message"
	"github.com/lexops/deepresearch/research"
	"github.com/lexops/deepresearch/workflow"
)

// Client is the top-level entry point. It is safe for concurrent use.
type Client struct {
	flows     *workflow.Client
	llm       *llm.Client
	processor *research.Processor
	logger    *zap.Logger
	watcher   *config.Watcher
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger attaches a logger shared by all components.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// New builds a client from an already loaded configuration.
func New(cfg *config.Config, opts ...ClientOption) *Client {
	c := &Client{logger: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}

	flowOpts := []workflow.Option{workflow.WithLogger(c.logger)}
	if cfg.Workflow.RateLimit > 0 {
		flowOpts = append(flowOpts, workflow.WithRateLimit(cfg.Workflow.RateLimit, cfg.Workflow.RateBurst))
	}
	c.flows = workflow.NewClient(cfg.Workflow.BaseURL, cfg.Workflow.Token, flowOpts...)
	c.llm = llm.NewClient(llm.WithLogger(c.logger))
	c.processor = research.NewProcessor(c.flows, c.llm, cfg.Flows,
		research.WithLogger(c.logger),
		research.WithMaxRetry(cfg.Research.MaxRetry))
	return c
}

// NewFromFile loads configuration from path and keeps watching it: flow path
// changes apply to subsequent pipeline runs without a restart. Close releases
// the watch.
func NewFromFile(path string, opts ...ClientOption) (*Client, error) {
	c := &Client{logger: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	w, err := config.NewWatcher(path, c.logger)
	if err != nil {
		return nil, err
	}
	built := New(w.Current(), opts...)
	built.watcher = w
	w.OnChange(func(cfg *config.Config) {
		built.processor.SetFlowPaths(cfg.Flows)
	})
	return built, nil
}

// Close releases the config watch, if any.
func (c *Client) Close() error {
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}

// Research starts a deep research run over the conversation. Partial results
// stream through the listener; the returned context cancels the run and
// resolves with the accumulated result.
func (c *Client) Research(ctx context.Context, model string, history []message.Message,
	lastQuery string, listener workflow.Listener[*research.Result]) *workflow.Context[*research.Result] {
	return c.processor.Research(ctx, model, history, lastQuery, listener)
}

// AnalyzeAndPlan streams an answer plan over the given documents, outside a
// full research run.
func (c *Client) AnalyzeAndPlan(ctx context.Context, req research.PlanRequest,
	listener workflow.Listener[*research.ReasoningObject[string]]) *workflow.Context[*research.ReasoningObject[string]] {
	return c.processor.AnalyzeAndPlan(ctx, req, listener)
}

// Complete streams a chat completion, passing raw chunks through the listener
// and resolving with the assembled message.
func (c *Client) Complete(ctx context.Context, req llm.Request,
	listener workflow.Listener[*llm.Chunk]) *workflow.Context[*llm.Chunk] {
	return c.llm.StreamRawToContext(ctx, req, listener)
}

// CompleteCited streams a chat completion through the citation extractor:
// citation markup never reaches the listener, and the resolved message
// carries the extracted citation ranges.
func (c *Client) CompleteCited(ctx context.Context, req llm.Request,
	listener workflow.Listener[*llm.CitedChunk]) *workflow.Context[*llm.CitedChunk] {
	return c.llm.StreamToContext(ctx, req, listener)
}

// Models lists the models available to callers.
func (c *Client) Models(ctx context.Context) (*research.ModelsResponse, error) {
	return c.processor.Models(ctx)
}

// SystemPrompt fetches the system prompt of the given type.
func (c *Client) SystemPrompt(ctx context.Context, promptType string) (string, error) {
	return c.processor.SystemPrompt(ctx, promptType)
}

// GenerateTitle names a conversation from its first exchange.
func (c *Client) GenerateTitle(ctx context.Context, query, answer string) (string, error) {
	return c.processor.GenerateTitle(ctx, query, answer)
}

// ClassifyIntent classifies the last user query against the conversation.
func (c *Client) ClassifyIntent(ctx context.Context, history []message.Message,
	lastQuery string) (*research.IntentClassification, error) {
	return c.processor.ClassifyIntent(ctx, history, lastQuery)
}
