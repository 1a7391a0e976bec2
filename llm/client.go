package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/lexops/deepresearch/internal/metrics"
	"github.com/lexops/deepresearch/message"
	"github.com/lexops/deepresearch/workflow"
)

// Client streams chat completions from OpenAI-compatible endpoints. The
// endpoint and credentials travel with each Request, so one client serves
// any number of backends.
type Client struct {
	http   *http.Client
	logger *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The default has no
// timeout; streams are bounded by the caller's context instead.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient builds a streaming completion client.
func NewClient(opts ...Option) *Client {
	c := &Client{http: &http.Client{}, logger: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Handlers receives stream events. All callbacks fire on one goroutine;
// exactly one of OnError or OnComplete ends the stream unless it is disposed
// first. Nil callbacks are skipped.
type Handlers struct {
	OnChunk    func(chunk *Chunk)
	OnError    func(err error)
	OnComplete func()
}

// Stream starts a completion stream and returns a handle that aborts it.
// Disposing the subscription silences the handlers; no terminal callback
// follows.
func (c *Client) Stream(ctx context.Context, req Request, h Handlers) workflow.Subscription {
	sctx, cancel := context.WithCancel(ctx)
	go c.run(sctx, req, h)
	return workflow.SubscriptionFunc(cancel)
}

func (c *Client) run(ctx context.Context, req Request, h Handlers) {
	fail := func(err error) {
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("completion stream failed", zap.Error(err))
		if h.OnError != nil {
			h.OnError(err)
		}
	}

	body := req.Body
	body.Stream = true
	payload, err := json.Marshal(body)
	if err != nil {
		fail(err)
		return
	}
	url := strings.TrimRight(req.BaseURL, "/") + "/v1/chat/completions"
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		fail(err)
		return
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "text/event-stream")
	if req.APIKey != "" {
		hreq.Header.Set("Authorization", "Bearer "+req.APIKey)
	}

	resp, err := c.http.Do(hreq)
	if err != nil {
		fail(err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		fail(&workflow.ServerError{Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))})
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			continue
		}
		var chunk Chunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			fail(fmt.Errorf("decode stream chunk: %w", err))
			return
		}
		if ctx.Err() != nil {
			return
		}
		if h.OnChunk != nil {
			h.OnChunk(&chunk)
		}
	}
	if err := scanner.Err(); err != nil {
		fail(err)
		return
	}
	if ctx.Err() != nil {
		return
	}
	if h.OnComplete != nil {
		h.OnComplete()
	}
}

type streamMeta struct {
	id     string
	model  string
	finish string
	usage  *Usage
}

func (m *streamMeta) absorb(id, model string, usage *Usage) {
	if id != "" {
		m.id = id
	}
	if model != "" {
		m.model = model
	}
	if usage != nil {
		m.usage = usage
	}
}

func (m *streamMeta) reason(fallback string) string {
	if fallback == FinishReasonStop && m.finish != "" {
		return m.finish
	}
	return fallback
}

// StreamRawToContext streams a completion, passing chunks through untouched
// while assembling them. The context resolves with a completion whose single
// choice carries the whole assistant message. A stream error fails the
// context; cancellation completes it with the partial assembly and finish
// reason "cancelled".
func (c *Client) StreamRawToContext(ctx context.Context, req Request, listener workflow.Listener[*Chunk]) *workflow.Context[*Chunk] {
	wc := workflow.NewContext(listener)
	var mu sync.Mutex
	asm := NewAssembler()
	meta := &streamMeta{}

	final := func(fallback string) *Chunk {
		mu.Lock()
		defer mu.Unlock()
		msg := asm.Final()
		return &Chunk{
			ID:     meta.id,
			Object: "chat.completion",
			Model:  meta.model,
			Choices: []Choice[message.ResponseMessage]{
				{Message: &msg, FinishReason: meta.reason(fallback)},
			},
			Usage: meta.usage,
		}
	}

	wc.SetOnCancel(func() {
		metrics.CompletionStreams.WithLabelValues("cancelled").Inc()
		wc.SetResult(final(FinishReasonCancelled))
		wc.EmitComplete()
	})

	sub := c.Stream(ctx, req, Handlers{
		OnChunk: func(chunk *Chunk) {
			mu.Lock()
			meta.absorb(chunk.ID, chunk.Model, chunk.Usage)
			for _, choice := range chunk.Choices {
				if choice.Delta != nil {
					asm.ProcessDelta(*choice.Delta)
				}
				if choice.FinishReason != "" {
					meta.finish = choice.FinishReason
				}
			}
			mu.Unlock()
			wc.EmitNext(chunk)
		},
		OnError: func(err error) {
			metrics.CompletionStreams.WithLabelValues("error").Inc()
			wc.EmitError(err)
		},
		OnComplete: func() {
			metrics.CompletionStreams.WithLabelValues("ok").Inc()
			wc.SetResult(final(FinishReasonStop))
			wc.EmitComplete()
		},
	})
	wc.SetSubscription(sub)
	return wc
}

// StreamToContext streams a completion through the cited assembler: citation
// markup is stripped from emitted deltas and surfaced as Citation values, and
// the context resolves with the assembled cited message. Unlike the raw
// variant, a stream error does not fail the context; it completes with the
// partial assembly and finish reason "error". Cancellation completes with
// finish reason "cancelled".
func (c *Client) StreamToContext(ctx context.Context, req Request, listener workflow.Listener[*CitedChunk]) *workflow.Context[*CitedChunk] {
	wc := workflow.NewContext(listener)
	var mu sync.Mutex
	asm := NewCitedAssembler()
	meta := &streamMeta{}
	flushed := false

	final := func(fallback string) *CitedChunk {
		mu.Lock()
		defer mu.Unlock()
		if !flushed {
			asm.Flush()
			flushed = true
		}
		msg := asm.Final()
		return &CitedChunk{
			ID:     meta.id,
			Object: "chat.completion",
			Model:  meta.model,
			Choices: []Choice[message.CitedMessage]{
				{Message: &msg, FinishReason: meta.reason(fallback)},
			},
			Usage: meta.usage,
		}
	}

	wc.SetOnCancel(func() {
		metrics.CompletionStreams.WithLabelValues("cancelled").Inc()
		wc.SetResult(final(FinishReasonCancelled))
		wc.EmitComplete()
	})

	sub := c.Stream(ctx, req, Handlers{
		OnChunk: func(chunk *Chunk) {
			mu.Lock()
			meta.absorb(chunk.ID, chunk.Model, chunk.Usage)
			var choices []Choice[message.CitedMessage]
			for _, choice := range chunk.Choices {
				var delta *message.CitedMessage
				emit := false
				if choice.Delta != nil {
					if d, ok := asm.ProcessDelta(*choice.Delta); ok {
						delta = &d
						emit = true
					}
				}
				if choice.FinishReason != "" {
					meta.finish = choice.FinishReason
					// A finish reason is emitted even without a delta.
					emit = true
				}
				if emit {
					choices = append(choices, Choice[message.CitedMessage]{
						Index:        choice.Index,
						Delta:        delta,
						FinishReason: choice.FinishReason,
					})
				}
			}
			out := &CitedChunk{ID: chunk.ID, Object: chunk.Object, Created: chunk.Created,
				Model: chunk.Model, Choices: choices, Usage: chunk.Usage}
			mu.Unlock()
			if len(choices) > 0 {
				wc.EmitNext(out)
			}
		},
		OnError: func(err error) {
			metrics.CompletionStreams.WithLabelValues("error").Inc()
			c.logger.Warn("cited stream completing with partial result", zap.Error(err))
			wc.SetResult(final(FinishReasonError))
			wc.EmitComplete()
		},
		OnComplete: func() {
			metrics.CompletionStreams.WithLabelValues("ok").Inc()
			mu.Lock()
			tail, ok := asm.Flush()
			flushed = true
			mu.Unlock()
			if ok {
				wc.EmitNext(&CitedChunk{Choices: []Choice[message.CitedMessage]{{Delta: &tail}}})
			}
			wc.SetResult(final(FinishReasonStop))
			wc.EmitComplete()
		},
	})
	wc.SetSubscription(sub)
	return wc
}
