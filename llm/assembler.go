package llm

import (
	"sort"
	"strings"

	"github.com/lexops/deepresearch/message"
)

type toolState struct {
	id   string
	typ  string
	name string
	args strings.Builder
}

// assembly accumulates streamed delta fragments into one message. Content
// handling differs between the plain and cited variants, so content lives
// with them; everything else is shared here.
type assembly struct {
	role      string
	reasoning strings.Builder
	tools     map[int]*toolState
}

func (a *assembly) add(d message.ResponseMessage) {
	if a.role == "" && d.Role != "" {
		a.role = d.Role
	}
	a.reasoning.WriteString(d.Reasoning)
	for _, tc := range d.ToolCalls {
		if tc.Index == nil {
			continue
		}
		if a.tools == nil {
			a.tools = map[int]*toolState{}
		}
		st, ok := a.tools[*tc.Index]
		if !ok {
			st = &toolState{}
			a.tools[*tc.Index] = st
		}
		if st.id == "" {
			st.id = tc.ID
		}
		if st.typ == "" {
			st.typ = tc.Type
		}
		if tc.Function != nil {
			if st.name == "" {
				st.name = tc.Function.Name
			}
			st.args.WriteString(tc.Function.Arguments)
		}
	}
}

func (a *assembly) message(content string) message.ResponseMessage {
	m := message.ResponseMessage{
		Role:      "assistant",
		Content:   content,
		Reasoning: a.reasoning.String(),
	}
	if len(a.tools) > 0 {
		indexes := make([]int, 0, len(a.tools))
		for i := range a.tools {
			indexes = append(indexes, i)
		}
		sort.Ints(indexes)
		for _, i := range indexes {
			i := i
			st := a.tools[i]
			m.ToolCalls = append(m.ToolCalls, message.ToolCall{
				Index:    &i,
				ID:       st.id,
				Type:     st.typ,
				Function: &message.ToolFunction{Name: st.name, Arguments: st.args.String()},
			})
		}
	}
	return m
}

// Assembler accumulates plain deltas. Not safe for concurrent use.
type Assembler struct {
	a       assembly
	content strings.Builder
}

// NewAssembler returns an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// ProcessDelta folds one delta into the accumulated message and echoes it
// back. The second return is false when the delta carried nothing.
func (m *Assembler) ProcessDelta(d message.ResponseMessage) (message.ResponseMessage, bool) {
	m.a.add(d)
	m.content.WriteString(d.Content)
	ok := d.Role != "" || d.Content != "" || d.Reasoning != "" || len(d.ToolCalls) > 0
	return d, ok
}

// Final builds the assembled assistant message.
func (m *Assembler) Final() message.ResponseMessage {
	return m.a.message(m.content.String())
}
