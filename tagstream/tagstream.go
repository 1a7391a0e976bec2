// Package tagstream incrementally parses lightweight XML-like markup out of a
// text stream that arrives in arbitrary fragments. Only elements declared in a
// Schema are treated as markup; everything else, including malformed or
// unknown tags, passes through untouched as content.
package tagstream

import "strings"

// Kind classifies a Token.
type Kind int

const (
	// Open marks the start of a declared element.
	Open Kind = iota
	// Close marks the end of a declared element.
	Close
	// Content carries literal text.
	Content
)

// Token is one parse event. Path is the slash-joined canonical element path,
// e.g. "/citation/id" for the id element and its Open/Close tokens. Content
// tokens carry the path of their enclosing element, "" at the root, and the
// text in Text.
type Token struct {
	Kind Kind
	Path string
	Text string
}

type node struct {
	name     string
	children map[string]*node
}

// Schema declares the elements a Scanner recognizes. Elements form a tree;
// a tag is only recognized where the schema allows it to nest.
type Schema struct {
	root *node
}

// NewSchema returns an empty schema.
func NewSchema() *Schema {
	return &Schema{root: &node{children: map[string]*node{}}}
}

// Define declares an element at the given slash-separated path, for example
// "citation" or "citation/id". Aliases are alternative tag names that resolve
// to the same element; paths in emitted tokens always use the canonical name.
// Parent elements must be defined before their children.
func (s *Schema) Define(path string, aliases ...string) *Schema {
	parts := strings.Split(path, "/")
	cur := s.root
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur.children[p]
		if !ok || next.name != p {
			panic("tagstream: undefined parent element " + p)
		}
		cur = next
	}
	name := parts[len(parts)-1]
	n := &node{name: name, children: map[string]*node{}}
	cur.children[name] = n
	for _, a := range aliases {
		cur.children[a] = n
	}
	return s
}

const maxTagLen = 32

// Scanner parses a fragment stream against a schema. It is not safe for
// concurrent use.
type Scanner struct {
	schema  *Schema
	stack   []*node
	pending []byte
	text    strings.Builder
}

// NewScanner returns a scanner for the given schema.
func NewScanner(schema *Schema) *Scanner {
	return &Scanner{schema: schema}
}

func (s *Scanner) path() string {
	if len(s.stack) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, n := range s.stack {
		sb.WriteByte('/')
		sb.WriteString(n.name)
	}
	return sb.String()
}

func (s *Scanner) top() *node {
	if len(s.stack) == 0 {
		return s.schema.root
	}
	return s.stack[len(s.stack)-1]
}

func (s *Scanner) flushText(out []Token) []Token {
	if s.text.Len() == 0 {
		return out
	}
	out = append(out, Token{Kind: Content, Path: s.path(), Text: s.text.String()})
	s.text.Reset()
	return out
}

func tagChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' ||
		b >= '0' && b <= '9' || b == '_' || b == '-'
}

// Feed consumes one fragment and returns the tokens it completes. A tag split
// across fragments stays buffered until its closing '>' arrives or the buffer
// stops looking like a tag, at which point it is released as content.
func (s *Scanner) Feed(chunk string) []Token {
	var out []Token
	for i := 0; i < len(chunk); i++ {
		b := chunk[i]
		if len(s.pending) > 0 {
			switch {
			case b == '>':
				out = s.completeTag(out)
			case b == '/' && len(s.pending) == 1, tagChar(b):
				s.pending = append(s.pending, b)
				if len(s.pending) > maxTagLen {
					s.releasePending()
				}
			default:
				// Not a tag after all.
				s.releasePending()
				i--
			}
			continue
		}
		if b == '<' {
			s.pending = append(s.pending, '<')
			continue
		}
		s.text.WriteByte(b)
	}
	return s.flushText(out)
}

func (s *Scanner) releasePending() {
	s.text.Write(s.pending)
	s.pending = s.pending[:0]
}

func (s *Scanner) completeTag(out []Token) []Token {
	name := string(s.pending[1:])
	closing := strings.HasPrefix(name, "/")
	if closing {
		name = name[1:]
	}
	if closing {
		if len(s.stack) > 0 {
			parent := s.schema.root
			if len(s.stack) > 1 {
				parent = s.stack[len(s.stack)-2]
			}
			if n, ok := parent.children[name]; ok && n == s.top() {
				out = s.flushText(out)
				path := s.path()
				s.stack = s.stack[:len(s.stack)-1]
				s.pending = s.pending[:0]
				return append(out, Token{Kind: Close, Path: path})
			}
		}
	} else if n, ok := s.top().children[name]; ok {
		out = s.flushText(out)
		s.stack = append(s.stack, n)
		s.pending = s.pending[:0]
		return append(out, Token{Kind: Open, Path: s.path()})
	}
	// Unknown tag, keep it as literal text.
	s.pending = append(s.pending, '>')
	s.releasePending()
	return out
}

// Flush releases any buffered partial tag as content and returns the final
// tokens. Elements left open are not closed; the caller decides how to treat
// an unterminated element.
func (s *Scanner) Flush() []Token {
	s.releasePending()
	return s.flushText(nil)
}
