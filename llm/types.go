// Package llm talks directly to OpenAI-compatible completion endpoints and
// assembles their streamed deltas into whole messages.
package llm

import (
	"encoding/json"

	"github.com/lexops/deepresearch/message"
)

// ToolSpec describes a callable function advertised to the model.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Tool wraps a ToolSpec in the OpenAI tool envelope.
type Tool struct {
	Type     string   `json:"type"`
	Function ToolSpec `json:"function"`
}

// ResponseFormat selects the output format, e.g. {"type":"json_object"}.
type ResponseFormat struct {
	Type string `json:"type"`
}

// CompletionRequest is the chat completion request body.
type CompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []message.Message `json:"messages"`
	Temperature    *float64          `json:"temperature,omitempty"`
	TopP           *float64          `json:"top_p,omitempty"`
	MaxTokens      *int              `json:"max_tokens,omitempty"`
	Stop           []string          `json:"stop,omitempty"`
	Tools          []Tool            `json:"tools,omitempty"`
	ResponseFormat *ResponseFormat   `json:"response_format,omitempty"`
	Stream         bool              `json:"stream,omitempty"`
}

// Request carries everything needed to reach a completion endpoint. Flow
// endpoints hand these back so the caller streams from the model directly.
type Request struct {
	BaseURL string            `json:"baseUrl"`
	APIKey  string            `json:"apiKey"`
	Body    CompletionRequest `json:"body"`
}

// Usage is the token accounting block of a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is one completion choice, streamed (Delta) or whole (Message).
type Choice[M any] struct {
	Index        int    `json:"index"`
	Delta        *M     `json:"delta,omitempty"`
	Message      *M     `json:"message,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// UnmarshalJSON accepts both "finish_reason" and "finishReason".
func (c *Choice[M]) UnmarshalJSON(data []byte) error {
	var raw struct {
		Index         int    `json:"index"`
		Delta         *M     `json:"delta"`
		Message       *M     `json:"message"`
		FinishReason  string `json:"finish_reason"`
		FinishReason2 string `json:"finishReason"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Index = raw.Index
	c.Delta = raw.Delta
	c.Message = raw.Message
	c.FinishReason = raw.FinishReason
	if c.FinishReason == "" {
		c.FinishReason = raw.FinishReason2
	}
	return nil
}

// Completion is a chat completion response or stream chunk.
type Completion[M any] struct {
	ID      string      `json:"id,omitempty"`
	Object  string      `json:"object,omitempty"`
	Created int64       `json:"created,omitempty"`
	Model   string      `json:"model,omitempty"`
	Choices []Choice[M] `json:"choices"`
	Usage   *Usage      `json:"usage,omitempty"`
}

// Chunk is a completion over plain assistant messages.
type Chunk = Completion[message.ResponseMessage]

// CitedChunk is a completion over citation-carrying messages.
type CitedChunk = Completion[message.CitedMessage]

// Terminal finish reasons this package synthesizes.
const (
	FinishReasonStop      = "stop"
	FinishReasonError     = "error"
	FinishReasonCancelled = "cancelled"
)
