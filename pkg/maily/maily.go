// Package maily handles the Maily rich-text email document format: parsing,
// rewriting variables into Liquid and rendering previews.
package maily

import (
	"encoding/json"
	"strings"
)

// NodeType is the closed set of node types the pipeline understands. Unknown
// types are kept and walked like any container node.
type NodeType string

const (
	NodeTypeDoc            NodeType = "doc"
	NodeTypeParagraph      NodeType = "paragraph"
	NodeTypeHeading        NodeType = "heading"
	NodeTypeText           NodeType = "text"
	NodeTypeHardBreak      NodeType = "hardBreak"
	NodeTypeVariable       NodeType = "variable"
	NodeTypeFor            NodeType = "for"
	NodeTypeButton         NodeType = "button"
	NodeTypeImage          NodeType = "image"
	NodeTypeHorizontalRule NodeType = "horizontalRule"
	NodeTypeSection        NodeType = "section"
	NodeTypeSpacer         NodeType = "spacer"
)

// Mark is an inline formatting mark on a text node.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Node is a Maily document node.
type Node struct {
	Type    NodeType       `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []*Node        `json:"content,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
	Text    string         `json:"text,omitempty"`
}

// Parse decodes value as a Maily document. It reports false for anything that
// is not a JSON object whose root node is a doc.
func Parse(value string) (*Node, bool) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}

	var doc Node

	err := json.Unmarshal([]byte(trimmed), &doc)
	if err != nil || doc.Type != NodeTypeDoc {
		return nil, false
	}

	return &doc, true
}

// Serialize encodes the document back to its JSON string form.
func Serialize(doc *Node) (string, error) {
	out, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}

	return string(out), nil
}

// Clone returns a deep copy of the node tree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}

	clone := &Node{
		Type: n.Type,
		Text: n.Text,
	}

	if n.Attrs != nil {
		clone.Attrs = cloneAttrs(n.Attrs)
	}

	if n.Marks != nil {
		clone.Marks = make([]Mark, len(n.Marks))
		for i, mark := range n.Marks {
			clone.Marks[i] = Mark{Type: mark.Type}
			if mark.Attrs != nil {
				clone.Marks[i].Attrs = cloneAttrs(mark.Attrs)
			}
		}
	}

	if n.Content != nil {
		clone.Content = make([]*Node, len(n.Content))
		for i, child := range n.Content {
			clone.Content[i] = child.Clone()
		}
	}

	return clone
}

func cloneAttrs(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for key, value := range attrs {
		out[key] = cloneAttrValue(value)
	}

	return out
}

func cloneAttrValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneAttrs(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneAttrValue(item)
		}

		return out
	default:
		return value
	}
}

// StringAttr returns the string attribute key, or "".
func (n *Node) StringAttr(key string) string {
	if n.Attrs == nil {
		return ""
	}

	value, _ := n.Attrs[key].(string)

	return value
}

// BoolAttr returns the boolean attribute key, or false.
func (n *Node) BoolAttr(key string) bool {
	if n.Attrs == nil {
		return false
	}

	value, _ := n.Attrs[key].(bool)

	return value
}
