package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexops/deepresearch/message"
)

func intp(i int) *int { return &i }

func TestAssemblerAccumulatesContentAndReasoning(t *testing.T) {
	asm := NewAssembler()
	deltas := []message.ResponseMessage{
		{Role: "assistant"},
		{Reasoning: "thinking "},
		{Reasoning: "hard"},
		{Content: "Hello"},
		{Content: ", world"},
	}
	for _, d := range deltas {
		asm.ProcessDelta(d)
	}
	got := asm.Final()
	assert.Equal(t, "assistant", got.Role)
	assert.Equal(t, "Hello, world", got.Content)
	assert.Equal(t, "thinking hard", got.Reasoning)
	assert.Empty(t, got.ToolCalls)
}

func TestAssemblerMergesToolCallFragments(t *testing.T) {
	asm := NewAssembler()
	deltas := []message.ResponseMessage{
		{ToolCalls: []message.ToolCall{{
			Index: intp(0), ID: "call_1", Type: "function",
			Function: &message.ToolFunction{Name: "lookup", Arguments: `{"a"`},
		}}},
		{ToolCalls: []message.ToolCall{{
			Index:    intp(0),
			Function: &message.ToolFunction{Arguments: `:1}`},
		}}},
		{ToolCalls: []message.ToolCall{{
			Index: intp(1), ID: "call_2", Type: "function",
			Function: &message.ToolFunction{Name: "fetch", Arguments: `{}`},
		}}},
	}
	for _, d := range deltas {
		asm.ProcessDelta(d)
	}
	got := asm.Final()
	require.Len(t, got.ToolCalls, 2)
	first := got.ToolCalls[0]
	assert.Equal(t, "call_1", first.ID)
	assert.Equal(t, "lookup", first.Function.Name)
	assert.Equal(t, `{"a":1}`, first.Function.Arguments)
	second := got.ToolCalls[1]
	assert.Equal(t, "call_2", second.ID)
	assert.Equal(t, 1, *second.Index)
}

func TestAssemblerFirstIdentityWins(t *testing.T) {
	asm := NewAssembler()
	asm.ProcessDelta(message.ResponseMessage{ToolCalls: []message.ToolCall{{
		Index: intp(0), ID: "call_1",
		Function: &message.ToolFunction{Name: "lookup"},
	}}})
	asm.ProcessDelta(message.ResponseMessage{ToolCalls: []message.ToolCall{{
		Index: intp(0), ID: "call_other",
		Function: &message.ToolFunction{Name: "other"},
	}}})
	got := asm.Final()
	require.Len(t, got.ToolCalls, 1)
	assert.Equal(t, "call_1", got.ToolCalls[0].ID)
	assert.Equal(t, "lookup", got.ToolCalls[0].Function.Name)
}

func TestAssemblerEmptyDeltaNotEchoed(t *testing.T) {
	asm := NewAssembler()
	_, ok := asm.ProcessDelta(message.ResponseMessage{})
	assert.False(t, ok)
	_, ok = asm.ProcessDelta(message.ResponseMessage{Content: "x"})
	assert.True(t, ok)
}

func TestAssemblerFinalRoleIsAssistant(t *testing.T) {
	asm := NewAssembler()
	asm.ProcessDelta(message.ResponseMessage{Content: "hi"})
	assert.Equal(t, "assistant", asm.Final().Role)
}
