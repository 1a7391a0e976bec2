// Package message defines the chat message and document types shared by the
// workflow and completion clients.
package message

import "strings"

// Message is a plain chat-completion message as accepted by an
// OpenAI-compatible endpoint.
type Message struct {
	ToolCallID string `json:"tool_call_id,omitempty"`
	Role       string `json:"role,omitempty"`
	Content    string `json:"content,omitempty"`
}

// Messageable is anything that can be flattened into a plain Message before
// it is sent to a completions endpoint.
type Messageable interface {
	ToMessage() Message
}

// ToMessage returns the message unchanged so []Message can be used wherever
// Messageables are expected.
func (m Message) ToMessage() Message { return m }

// AttachedMessage is a conversation turn that carries retrieved documents
// alongside its text. The documents are serialized into the message content
// in prompt form.
type AttachedMessage struct {
	Role      string     `json:"role,omitempty"`
	Content   string     `json:"content,omitempty"`
	Documents []Document `json:"documents,omitempty"`
}

// ToMessage merges the content and the serialized documents block.
func (m AttachedMessage) ToMessage() Message {
	docs := SerializeDocuments(m.Documents)
	var content string
	switch {
	case docs == "":
		content = m.Content
	case m.Content == "":
		content = docs
	default:
		content = m.Content + "\n\n" + docs
	}
	return Message{Role: m.Role, Content: content}
}

// SerializeDocuments renders documents as a <documents> prompt block, or ""
// when there are none.
func SerializeDocuments(docs []Document) string {
	if len(docs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("<documents>\n")
	for _, d := range docs {
		sb.WriteString(PromptForm(d))
		sb.WriteString("\n")
	}
	sb.WriteString("</documents>")
	return sb.String()
}
