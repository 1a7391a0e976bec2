package message

import "strings"

// Document is the capability interface shared by every retrievable payload
// shape. Implementations with no natural URL return "".
type Document interface {
	ID() string
	Title() string
	Content() string
	URL() string
}

// PromptForm renders one document in the serialized form expected by the
// analysis and plan prompts.
func PromptForm(d Document) string {
	var sb strings.Builder
	sb.WriteString(`<document id="`)
	sb.WriteString(d.ID())
	sb.WriteString("\">\n")
	if t := d.Title(); strings.TrimSpace(t) != "" {
		sb.WriteString("<title>")
		sb.WriteString(t)
		sb.WriteString("</title>\n")
	}
	sb.WriteString("<content>")
	sb.WriteString(d.Content())
	sb.WriteString("</content>\n")
	sb.WriteString("</document>")
	return sb.String()
}

// SimpleDocument is the generic document shape used when a payload carries no
// source-specific fields.
type SimpleDocument struct {
	DocID   string `json:"id,omitempty"`
	Name    string `json:"title,omitempty"`
	Text    string `json:"content,omitempty"`
	Link    string `json:"url,omitempty"`
}

func (d SimpleDocument) ID() string      { return d.DocID }
func (d SimpleDocument) Title() string   { return d.Name }
func (d SimpleDocument) Content() string { return d.Text }
func (d SimpleDocument) URL() string     { return d.Link }
