package llm

import (
	"strings"

	"github.com/lexops/deepresearch/message"
	"github.com/lexops/deepresearch/tagstream"
)

func citationSchema() *tagstream.Schema {
	s := tagstream.NewSchema()
	s.Define("citation", "cite")
	s.Define("citation/id")
	return s
}

// CitedAssembler accumulates deltas whose content carries citation markup.
// Markup is stripped from the visible text; each closed citation element
// becomes a Citation over the byte range of visible text it wrapped. Not safe
// for concurrent use.
type CitedAssembler struct {
	a       assembly
	content strings.Builder
	scanner *tagstream.Scanner

	inCitation bool
	citeStart  int
	idBuf      strings.Builder
	citations  []message.Citation
}

// NewCitedAssembler returns an empty cited assembler.
func NewCitedAssembler() *CitedAssembler {
	return &CitedAssembler{scanner: tagstream.NewScanner(citationSchema())}
}

func (m *CitedAssembler) apply(tokens []tagstream.Token) (visible string, completed []message.Citation) {
	var vis strings.Builder
	for _, tok := range tokens {
		switch tok.Kind {
		case tagstream.Content:
			switch tok.Path {
			case "", "/citation":
				vis.WriteString(tok.Text)
				m.content.WriteString(tok.Text)
			case "/citation/id":
				m.idBuf.WriteString(tok.Text)
			}
		case tagstream.Open:
			switch tok.Path {
			case "/citation":
				m.inCitation = true
				m.citeStart = m.content.Len()
				m.idBuf.Reset()
			case "/citation/id":
				m.idBuf.Reset()
			}
		case tagstream.Close:
			if tok.Path == "/citation" {
				completed = append(completed, m.closeCitation())
			}
		}
	}
	return vis.String(), completed
}

func (m *CitedAssembler) closeCitation() message.Citation {
	c := message.Citation{
		Index: len(m.citations),
		ID:    m.idBuf.String(),
		Start: m.citeStart,
		End:   m.content.Len(),
	}
	m.citations = append(m.citations, c)
	m.inCitation = false
	return c
}

// ProcessDelta folds one delta in and returns the visible delta: the content
// with markup removed plus any citations completed by this fragment. The
// second return is false when nothing visible came out.
func (m *CitedAssembler) ProcessDelta(d message.ResponseMessage) (message.CitedMessage, bool) {
	m.a.add(d)
	visible, completed := m.apply(m.scanner.Feed(d.Content))
	out := message.CitedMessage{
		ResponseMessage: message.ResponseMessage{
			Role:      d.Role,
			Content:   visible,
			Reasoning: d.Reasoning,
			ToolCalls: d.ToolCalls,
		},
		Citations: completed,
	}
	ok := d.Role != "" || visible != "" || d.Reasoning != "" ||
		len(d.ToolCalls) > 0 || len(completed) > 0
	return out, ok
}

// Flush drains buffered markup. A citation element left unterminated is
// force-closed at the current end of visible text.
func (m *CitedAssembler) Flush() (message.CitedMessage, bool) {
	visible, completed := m.apply(m.scanner.Flush())
	if m.inCitation {
		completed = append(completed, m.closeCitation())
	}
	out := message.CitedMessage{
		ResponseMessage: message.ResponseMessage{Content: visible},
		Citations:       completed,
	}
	return out, visible != "" || len(completed) > 0
}

// Final builds the assembled message with its ordered citations. Call Flush
// first so trailing buffered markup is accounted for.
func (m *CitedAssembler) Final() message.CitedMessage {
	return message.CitedMessage{
		ResponseMessage: m.a.message(m.content.String()),
		Citations:       m.citations,
	}
}
