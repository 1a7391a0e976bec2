package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexops/deepresearch/message"
)

func feed(asm *CitedAssembler, fragments ...string) (visible string, emitted []message.Citation) {
	for _, f := range fragments {
		d, ok := asm.ProcessDelta(message.ResponseMessage{Content: f})
		if ok {
			visible += d.Content
			emitted = append(emitted, d.Citations...)
		}
	}
	d, ok := asm.Flush()
	if ok {
		visible += d.Content
		emitted = append(emitted, d.Citations...)
	}
	return visible, emitted
}

func TestCitedAssemblerExtractsCitation(t *testing.T) {
	asm := NewCitedAssembler()
	visible, emitted := feed(asm, "A ", "<citation><id>d1</id>", "B", "</citation>", " C")

	assert.Equal(t, "A B C", visible)
	require.Len(t, emitted, 1)
	assert.Equal(t, message.Citation{Index: 0, ID: "d1", Start: 2, End: 3}, emitted[0])

	got := asm.Final()
	assert.Equal(t, "A B C", got.Content)
	require.Len(t, got.Citations, 1)
	assert.Equal(t, "B", got.Content[got.Citations[0].Start:got.Citations[0].End])
}

func TestCitedAssemblerTagSplitAcrossDeltas(t *testing.T) {
	asm := NewCitedAssembler()
	visible, emitted := feed(asm, "x<cita", "tion><id>doc-9</id>cited", "</cita", "tion>y")

	assert.Equal(t, "xcitedy", visible)
	require.Len(t, emitted, 1)
	assert.Equal(t, "doc-9", emitted[0].ID)
	assert.Equal(t, 1, emitted[0].Start)
	assert.Equal(t, 6, emitted[0].End)
}

func TestCitedAssemblerMultipleCitationsIndexed(t *testing.T) {
	asm := NewCitedAssembler()
	_, emitted := feed(asm,
		"<citation><id>a</id>one</citation> and <citation><id>b</id>two</citation>")

	require.Len(t, emitted, 2)
	assert.Equal(t, 0, emitted[0].Index)
	assert.Equal(t, "a", emitted[0].ID)
	assert.Equal(t, 1, emitted[1].Index)
	assert.Equal(t, "b", emitted[1].ID)
	assert.Equal(t, "one and two", asm.Final().Content)
}

func TestCitedAssemblerUnterminatedCitationForceClosed(t *testing.T) {
	asm := NewCitedAssembler()
	visible, emitted := feed(asm, "start <citation><id>d2</id>tail")

	assert.Equal(t, "start tail", visible)
	require.Len(t, emitted, 1)
	assert.Equal(t, "d2", emitted[0].ID)
	assert.Equal(t, 6, emitted[0].Start)
	assert.Equal(t, 10, emitted[0].End)
}

func TestCitedAssemblerAliasTag(t *testing.T) {
	asm := NewCitedAssembler()
	visible, emitted := feed(asm, "<cite><id>d3</id>text</cite>")
	assert.Equal(t, "text", visible)
	require.Len(t, emitted, 1)
	assert.Equal(t, "d3", emitted[0].ID)
}

func TestCitedAssemblerUnknownMarkupPassesThrough(t *testing.T) {
	asm := NewCitedAssembler()
	visible, emitted := feed(asm, "a <b>bold</b> 1<2")
	assert.Equal(t, "a <b>bold</b> 1<2", visible)
	assert.Empty(t, emitted)
}

func TestCitedAssemblerReasoningAndToolsPassThrough(t *testing.T) {
	asm := NewCitedAssembler()
	d, ok := asm.ProcessDelta(message.ResponseMessage{Reasoning: "hmm"})
	require.True(t, ok)
	assert.Equal(t, "hmm", d.Reasoning)
	asm.Flush()
	assert.Equal(t, "hmm", asm.Final().Reasoning)
}

func TestTaggedContentRoundTrip(t *testing.T) {
	asm := NewCitedAssembler()
	feed(asm, "A <citation><id>d1</id>B</citation> C")
	got := asm.Final()
	assert.Equal(t, `A <citation id="d1">B</citation> C`, got.TaggedContent())
}
