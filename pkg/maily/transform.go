package maily

import "strings"

// Attribute keys that hold variable references on button and image nodes.
const (
	attrID            = "id"
	attrEach          = "each"
	attrShowIfKey     = "showIfKey"
	attrURL           = "url"
	attrIsURLVariable = "isUrlVariable"
	attrSrc           = "src"
	attrIsSrcVariable = "isSrcVariable"
)

type loopFrame struct {
	raw         string
	transformed string
}

type loopStack []loopFrame

// resolve rewrites name against the innermost enclosing loop whose variable
// prefixes it. Names outside any matching loop are returned unchanged.
func (s loopStack) resolve(name string) (string, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		frame := s[i]

		if name == frame.raw {
			return frame.transformed + "[0]", true
		}

		if rest, ok := strings.CutPrefix(name, frame.raw+"."); ok {
			return frame.transformed + "[0]." + rest, true
		}
	}

	return name, false
}

func (s loopStack) push(each string) loopStack {
	transformed, _ := s.resolve(each)

	next := make(loopStack, len(s), len(s)+1)
	copy(next, s)

	return append(next, loopFrame{raw: each, transformed: transformed})
}

// TransformToLiquid returns a copy of doc where every variable reference is
// written as a Liquid output tag. Variables inside a for node that refer to
// the loop item are rewritten to the first element of the collection.
// The input document is never modified.
func TransformToLiquid(doc *Node) *Node {
	clone := doc.Clone()
	transformNode(clone, nil)

	return clone
}

func transformNode(node *Node, loops loopStack) {
	if node == nil {
		return
	}

	switch node.Type {
	case NodeTypeVariable:
		if id := node.StringAttr(attrID); id != "" {
			node.Attrs[attrID] = toLiquid(id, loops)
		}
	case NodeTypeFor:
		if each := node.StringAttr(attrEach); each != "" {
			loops = loops.push(unwrap(each))
		}
	case NodeTypeButton:
		if node.BoolAttr(attrIsURLVariable) {
			rewriteAttr(node, attrURL, loops)
		}
	case NodeTypeImage:
		if node.BoolAttr(attrIsSrcVariable) {
			rewriteAttr(node, attrSrc, loops)
		}
	}

	if node.StringAttr(attrShowIfKey) != "" {
		rewriteAttr(node, attrShowIfKey, loops)
	}

	for _, child := range node.Content {
		transformNode(child, loops)
	}
}

func rewriteAttr(node *Node, key string, loops loopStack) {
	if value := node.StringAttr(key); value != "" {
		node.Attrs[key] = toLiquid(value, loops)
	}
}

func toLiquid(id string, loops loopStack) string {
	if isWrapped(id) {
		return id
	}

	resolved, _ := loops.resolve(strings.TrimSpace(id))

	return "{{" + resolved + "}}"
}

func isWrapped(value string) bool {
	trimmed := strings.TrimSpace(value)

	return strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}")
}

func unwrap(value string) string {
	trimmed := strings.TrimSpace(value)
	if isWrapped(trimmed) {
		trimmed = strings.TrimSpace(trimmed[2 : len(trimmed)-2])
	}

	return trimmed
}

// Variable is a variable reference found in a document.
type Variable struct {
	// Name is the reference as it resolves in Liquid ("payload.items[0].name").
	Name string
	// Raw is the reference as written in the document ("item.name").
	Raw string
	// InLoop is set when Name was rewritten from a loop item.
	InLoop bool
}

// CollectVariables lists the variable references of doc in document order.
// Loop collections (for node "each") are included as regular references.
func CollectVariables(doc *Node) []Variable {
	var variables []Variable

	walk(doc, nil, func(node *Node, loops loopStack) {
		collect := func(raw string) {
			raw = unwrap(raw)
			if raw == "" {
				return
			}

			name, inLoop := loops.resolve(raw)
			variables = append(variables, Variable{Name: name, Raw: raw, InLoop: inLoop})
		}

		switch node.Type {
		case NodeTypeVariable:
			collect(node.StringAttr(attrID))
		case NodeTypeFor:
			collect(node.StringAttr(attrEach))
		case NodeTypeButton:
			if node.BoolAttr(attrIsURLVariable) {
				collect(node.StringAttr(attrURL))
			}
		case NodeTypeImage:
			if node.BoolAttr(attrIsSrcVariable) {
				collect(node.StringAttr(attrSrc))
			}
		}

		if key := node.StringAttr(attrShowIfKey); key != "" {
			collect(key)
		}
	})

	return variables
}

// Texts returns the text content and plain string attributes of doc, so
// inline {{ }} placeholders typed as text can be extracted too.
func Texts(doc *Node) []string {
	var texts []string

	walk(doc, nil, func(node *Node, _ loopStack) {
		if node.Text != "" {
			texts = append(texts, node.Text)
		}

		switch node.Type {
		case NodeTypeButton:
			if !node.BoolAttr(attrIsURLVariable) && node.StringAttr(attrURL) != "" {
				texts = append(texts, node.StringAttr(attrURL))
			}

			if label := node.StringAttr("text"); label != "" {
				texts = append(texts, label)
			}
		case NodeTypeImage:
			if !node.BoolAttr(attrIsSrcVariable) && node.StringAttr(attrSrc) != "" {
				texts = append(texts, node.StringAttr(attrSrc))
			}
		}
	})

	return texts
}

// RemoveVariables returns a copy of doc without the references whose resolved
// name matches drop. Variable nodes and for nodes iterating a dropped
// collection are removed; dropped button urls, image sources and showIfKey
// conditions are cleared from their node. The input document is never
// modified.
func RemoveVariables(doc *Node, drop func(name string) bool) *Node {
	clone := doc.Clone()
	removeIn(clone, nil, drop)

	return clone
}

func removeIn(node *Node, loops loopStack, drop func(string) bool) {
	if node == nil {
		return
	}

	if node.Type == NodeTypeFor {
		if each := node.StringAttr(attrEach); each != "" {
			loops = loops.push(unwrap(each))
		}
	}

	kept := node.Content[:0]

	for _, child := range node.Content {
		if child == nil {
			kept = append(kept, child)

			continue
		}

		dropped := func(key string) bool {
			value := unwrap(child.StringAttr(key))
			if value == "" {
				return false
			}

			name, _ := loops.resolve(value)

			return drop(name)
		}

		switch {
		case child.Type == NodeTypeVariable && dropped(attrID):
			continue
		case child.Type == NodeTypeFor && dropped(attrEach):
			continue
		case child.Type == NodeTypeButton && child.BoolAttr(attrIsURLVariable) && dropped(attrURL):
			child.Attrs[attrURL] = ""
			child.Attrs[attrIsURLVariable] = false
		case child.Type == NodeTypeImage && child.BoolAttr(attrIsSrcVariable) && dropped(attrSrc):
			child.Attrs[attrSrc] = ""
			child.Attrs[attrIsSrcVariable] = false
		}

		if dropped(attrShowIfKey) {
			delete(child.Attrs, attrShowIfKey)
		}

		removeIn(child, loops, drop)
		kept = append(kept, child)
	}

	if node.Content != nil {
		node.Content = kept
	}
}

func walk(node *Node, loops loopStack, visit func(*Node, loopStack)) {
	if node == nil {
		return
	}

	visit(node, loops)

	if node.Type == NodeTypeFor {
		if each := node.StringAttr(attrEach); each != "" {
			loops = loops.push(unwrap(each))
		}
	}

	for _, child := range node.Content {
		walk(child, loops, visit)
	}
}

// MapTexts returns a copy of doc with fn applied to the same text content
// Texts returns. The input document is never modified.
func MapTexts(doc *Node, fn func(string) string) *Node {
	clone := doc.Clone()

	walk(clone, nil, func(node *Node, _ loopStack) {
		if node.Text != "" {
			node.Text = fn(node.Text)
		}

		switch node.Type {
		case NodeTypeButton:
			if !node.BoolAttr(attrIsURLVariable) && node.StringAttr(attrURL) != "" {
				node.Attrs[attrURL] = fn(node.StringAttr(attrURL))
			}

			if label := node.StringAttr("text"); label != "" {
				node.Attrs["text"] = fn(label)
			}
		case NodeTypeImage:
			if !node.BoolAttr(attrIsSrcVariable) && node.StringAttr(attrSrc) != "" {
				node.Attrs[attrSrc] = fn(node.StringAttr(attrSrc))
			}
		}
	})

	return clone
}
