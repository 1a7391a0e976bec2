package research

import (
	"strings"

	"github.com/lexops/deepresearch/message"
)

// ResearchedMessage is a conversation turn carrying a finished research
// result, so a follow-up completion sees what was retrieved and planned.
type ResearchedMessage struct {
	Role string `json:"role,omitempty"`
	// Editor is the HTML content of the active editor, if any.
	Editor    string             `json:"editor,omitempty"`
	Content   string             `json:"content,omitempty"`
	Documents []message.Document `json:"documents,omitempty"`
	Result    *Result            `json:"researchResult,omitempty"`
}

// ToMessage merges the parts into one prompt, in order: editor, content,
// attached documents, research result.
func (m ResearchedMessage) ToMessage() message.Message {
	var sb strings.Builder
	appendBlock := func(text string) {
		if text == "" {
			return
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}

	if m.Editor != "" {
		appendBlock("<editor>\n" + m.Editor + "\n</editor>")
	}
	appendBlock(m.Content)
	appendBlock(message.SerializeDocuments(m.Documents))
	appendBlock(m.serializeResult())

	return message.Message{Role: m.Role, Content: sb.String()}
}

// serializeResult renders the research result as a <research-result> prompt
// block: the retrieved documents, the analysis reason, and the answer plan.
func (m ResearchedMessage) serializeResult() string {
	if m.Result == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("<research-result>\n")
	if docs := m.Result.AllDocuments(); len(docs) > 0 {
		sb.WriteString("<retrieved-documents>\n")
		for _, d := range docs {
			sb.WriteString(message.PromptForm(d))
			sb.WriteString("\n")
		}
		sb.WriteString("</retrieved-documents>\n")
	}
	if m.Result.Reason != "" {
		sb.WriteString("<reason>" + m.Result.Reason + "</reason>\n")
	}
	if m.Result.Plan != "" {
		sb.WriteString("<plan>" + m.Result.Plan + "</plan>\n")
	}
	sb.WriteString("</research-result>")
	return sb.String()
}
