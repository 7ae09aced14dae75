package maily

import (
	"fmt"
	"html"
	"strings"
)

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// RenderHTML renders a Liquid-transformed document to an HTML fragment. Liquid
// tags are kept as is so the output can be rendered against a payload. A for
// node renders its content once, for the first item of the collection.
func RenderHTML(doc *Node) string {
	var b strings.Builder

	renderNode(&b, doc)

	return b.String()
}

func renderNode(b *strings.Builder, node *Node) {
	if node == nil {
		return
	}

	switch node.Type {
	case NodeTypeDoc, NodeTypeFor:
		renderChildren(b, node)
	case NodeTypeParagraph:
		wrap(b, "p", node)
	case NodeTypeHeading:
		level := 1
		if l, ok := node.Attrs["level"].(float64); ok && l >= 1 && l <= 6 {
			level = int(l)
		}

		wrap(b, fmt.Sprintf("h%d", level), node)
	case NodeTypeSection:
		wrap(b, "div", node)
	case NodeTypeText:
		renderText(b, node)
	case NodeTypeHardBreak:
		b.WriteString("<br>")
	case NodeTypeHorizontalRule:
		b.WriteString("<hr>")
	case NodeTypeSpacer:
		b.WriteString(`<div style="height:16px"></div>`)
	case NodeTypeVariable:
		b.WriteString(node.StringAttr(attrID))
	case NodeTypeButton:
		fmt.Fprintf(b, `<a href="%s">%s</a>`,
			html.EscapeString(node.StringAttr(attrURL)), textEscaper.Replace(node.StringAttr("text")))
	case NodeTypeImage:
		fmt.Fprintf(b, `<img src="%s" alt="%s">`,
			html.EscapeString(node.StringAttr(attrSrc)), html.EscapeString(node.StringAttr("alt")))
	default:
		renderChildren(b, node)
	}
}

func wrap(b *strings.Builder, tag string, node *Node) {
	b.WriteString("<" + tag + ">")
	renderChildren(b, node)
	b.WriteString("</" + tag + ">")
}

func renderChildren(b *strings.Builder, node *Node) {
	for _, child := range node.Content {
		renderNode(b, child)
	}
}

func renderText(b *strings.Builder, node *Node) {
	text := textEscaper.Replace(node.Text)

	for i := len(node.Marks) - 1; i >= 0; i-- {
		mark := node.Marks[i]

		switch mark.Type {
		case "bold":
			text = "<strong>" + text + "</strong>"
		case "italic":
			text = "<em>" + text + "</em>"
		case "underline":
			text = "<u>" + text + "</u>"
		case "strike":
			text = "<s>" + text + "</s>"
		case "code":
			text = "<code>" + text + "</code>"
		case "link":
			href, _ := mark.Attrs["href"].(string)
			text = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(href), text)
		}
	}

	b.WriteString(text)
}
