package workflow

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lexops/deepresearch/internal/metrics"
)

// Response is the envelope every flow endpoint answers with. A nil Result is
// an error signalled in-band through Code and Message.
type Response[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Result  *T     `json:"result"`
}

// Client calls the remote workflow service that hosts the retrieval and
// analysis flows.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRateLimit caps outbound calls at rps requests per second with the given
// burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient builds a client for the service at baseURL authenticating with
// the given bearer token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 120 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) post(ctx context.Context, path string, body any, accept string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := c.baseURL + "/api/flow/" + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.http.Do(req)
}

func decodeEnvelope[T any](path string, r io.Reader) (*T, error) {
	var env Response[T]
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, clientErr(fmt.Errorf("decode %s response: %w", path, err))
	}
	if env.Result == nil {
		return nil, &ServerError{Code: env.Code, Message: env.Message}
	}
	return env.Result, nil
}

// Call executes the flow at path with the given request body and returns the
// envelope's result. A nil result or non-2xx status becomes a ServerError;
// transport and decoding failures wrap into ClientError.
func Call[T any](ctx context.Context, c *Client, path string, body any) (*T, error) {
	start := time.Now()
	resp, err := c.post(ctx, path, body, "application/json")
	if err != nil {
		metrics.FlowCalls.WithLabelValues(path, "transport_error").Inc()
		return nil, clientErr(err)
	}
	defer resp.Body.Close()
	metrics.FlowLatency.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.FlowCalls.WithLabelValues(path, "http_error").Inc()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ServerError{Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	result, err := decodeEnvelope[T](path, resp.Body)
	if err != nil {
		metrics.FlowCalls.WithLabelValues(path, "error").Inc()
		c.logger.Warn("flow call failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	metrics.FlowCalls.WithLabelValues(path, "ok").Inc()
	return result, nil
}

// CallStream executes the streaming variant of the flow at path. Each data
// line is an envelope validated like a unary response and handed to fn in
// arrival order. A non-nil error from fn aborts the stream and is returned.
func CallStream[T any](ctx context.Context, c *Client, path string, body any, fn func(*T) error) error {
	resp, err := c.post(ctx, path+"/stream", body, "text/event-stream")
	if err != nil {
		metrics.FlowCalls.WithLabelValues(path, "transport_error").Inc()
		return clientErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.FlowCalls.WithLabelValues(path, "http_error").Inc()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ServerError{Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// Comment and event-name lines carry no envelope.
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		result, err := decodeEnvelope[T](path, strings.NewReader(line))
		if err != nil {
			metrics.FlowCalls.WithLabelValues(path, "error").Inc()
			return err
		}
		if err := fn(result); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		metrics.FlowCalls.WithLabelValues(path, "transport_error").Inc()
		return clientErr(err)
	}
	metrics.FlowCalls.WithLabelValues(path, "ok").Inc()
	return nil
}
