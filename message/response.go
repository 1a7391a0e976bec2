package message

import (
	"encoding/json"
	"sort"
	"strings"
)

// ToolFunction is the function part of a tool call. Arguments is a JSON text
// that arrives in fragments during streaming.
type ToolFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ToolCall is one tool invocation, or one streamed fragment of it. Index is a
// pointer because a fragment without an index cannot be merged.
type ToolCall struct {
	Index    *int          `json:"index,omitempty"`
	ID       string        `json:"id,omitempty"`
	Type     string        `json:"type,omitempty"`
	Function *ToolFunction `json:"function,omitempty"`
}

// ResponseMessage is an assistant message, either a streamed delta or a fully
// assembled one.
type ResponseMessage struct {
	Role      string     `json:"role,omitempty"`
	Content   string     `json:"content,omitempty"`
	Reasoning string     `json:"reasoning,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// UnmarshalJSON accepts both "reasoning" and "reasoning_content" for the
// reasoning field, as served by different OpenAI-compatible backends.
func (m *ResponseMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role             string     `json:"role"`
		Content          string     `json:"content"`
		Reasoning        string     `json:"reasoning"`
		ReasoningContent string     `json:"reasoning_content"`
		ToolCalls        []ToolCall `json:"tool_calls"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Content = raw.Content
	m.Reasoning = raw.Reasoning
	if m.Reasoning == "" {
		m.Reasoning = raw.ReasoningContent
	}
	m.ToolCalls = raw.ToolCalls
	return nil
}

// ToMessage drops reasoning and tool calls, keeping only the visible text.
func (m ResponseMessage) ToMessage() Message {
	return Message{Role: m.Role, Content: m.Content}
}

// Citation attributes the half-open character range [Start,End) of the
// accumulated message content to one referenced document.
type Citation struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Start int    `json:"startIndex"`
	End   int    `json:"endIndex"`
}

// CitedMessage is a ResponseMessage whose content carries inline citations
// extracted from the tag stream.
type CitedMessage struct {
	ResponseMessage
	Citations []Citation `json:"citations,omitempty"`
}

// TaggedContent reconstructs the content with <citation id="…">…</citation>
// wrapped around each cited range. Ranges are sorted by start offset and are
// assumed non-overlapping; an overlapping range is skipped.
func (m CitedMessage) TaggedContent() string {
	if m.Content == "" {
		return ""
	}
	if len(m.Citations) == 0 {
		return m.Content
	}
	sorted := make([]Citation, len(m.Citations))
	copy(sorted, m.Citations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var sb strings.Builder
	lastEnd := 0
	for _, c := range sorted {
		if c.Start < lastEnd || c.End > len(m.Content) || c.Start > c.End {
			continue
		}
		sb.WriteString(m.Content[lastEnd:c.Start])
		sb.WriteString(`<citation id="`)
		sb.WriteString(c.ID)
		sb.WriteString(`">`)
		sb.WriteString(m.Content[c.Start:c.End])
		sb.WriteString("</citation>")
		lastEnd = c.End
	}
	sb.WriteString(m.Content[lastEnd:])
	return sb.String()
}

// ToMessage renders the tagged form so downstream turns keep the citations.
func (m CitedMessage) ToMessage() Message {
	return Message{Role: m.Role, Content: m.TaggedContent()}
}
