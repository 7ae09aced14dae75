package maily

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loopDocument = `{
  "type": "doc",
  "content": [
    {"type": "paragraph", "content": [
      {"type": "text", "text": "Hi "},
      {"type": "variable", "attrs": {"id": "subscriber.firstName"}}
    ]},
    {"type": "for", "attrs": {"each": "payload.comments"}, "content": [
      {"type": "paragraph", "content": [
        {"type": "variable", "attrs": {"id": "payload.comments.author"}},
        {"type": "for", "attrs": {"each": "payload.comments.replies"}, "content": [
          {"type": "variable", "attrs": {"id": "payload.comments.replies.text"}},
          {"type": "variable", "attrs": {"id": "payload.comments.title"}}
        ]}
      ]}
    ]},
    {"type": "paragraph", "content": [
      {"type": "variable", "attrs": {"id": "payload.comments.orphan"}}
    ]}
  ]
}`

func mustParse(t *testing.T, raw string) *Node {
	t.Helper()

	doc, ok := Parse(raw)
	require.True(t, ok)

	return doc
}

func variableIDs(node *Node) []string {
	var ids []string

	walk(node, nil, func(n *Node, _ loopStack) {
		if n.Type == NodeTypeVariable {
			ids = append(ids, n.StringAttr(attrID))
		}
	})

	return ids
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
		ok    bool
	}{
		{"document", `{"type":"doc","content":[]}`, true},
		{"plain text", "Hello {{payload.name}}", false},
		{"other json", `{"type":"paragraph"}`, false},
		{"broken json", `{"type":"doc"`, false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, ok := Parse(tt.value)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestTransformToLiquid_RewritesVariablesAndLoops(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, loopDocument)

	transformed := TransformToLiquid(doc)

	assert.Equal(t, []string{
		"{{subscriber.firstName}}",
		"{{payload.comments[0].author}}",
		"{{payload.comments[0].replies[0].text}}",
		"{{payload.comments[0].title}}",
		"{{payload.comments.orphan}}",
	}, variableIDs(transformed))

	loop := transformed.Content[1]
	assert.Equal(t, "payload.comments", loop.StringAttr(attrEach))
}

func TestTransformToLiquid_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, loopDocument)

	before, err := Serialize(doc)
	require.NoError(t, err)

	_ = TransformToLiquid(doc)

	after, err := Serialize(doc)
	require.NoError(t, err)
	assert.JSONEq(t, before, after)
}

func TestTransformToLiquid_Idempotent(t *testing.T) {
	t.Parallel()

	once := TransformToLiquid(mustParse(t, loopDocument))
	twice := TransformToLiquid(once)

	assert.Equal(t, variableIDs(once), variableIDs(twice))
}

func TestTransformToLiquid_ButtonAndImageVariables(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `{"type":"doc","content":[
		{"type":"button","attrs":{"text":"Open","url":"payload.link","isUrlVariable":true}},
		{"type":"button","attrs":{"text":"Static","url":"https://example.org","isUrlVariable":false}},
		{"type":"image","attrs":{"src":"payload.logo","isSrcVariable":true,"showIfKey":"payload.showLogo"}}
	]}`)

	transformed := TransformToLiquid(doc)

	assert.Equal(t, "{{payload.link}}", transformed.Content[0].StringAttr(attrURL))
	assert.Equal(t, "https://example.org", transformed.Content[1].StringAttr(attrURL))
	assert.Equal(t, "{{payload.logo}}", transformed.Content[2].StringAttr(attrSrc))
	assert.Equal(t, "{{payload.showLogo}}", transformed.Content[2].StringAttr(attrShowIfKey))
}

func TestCollectVariables(t *testing.T) {
	t.Parallel()

	variables := CollectVariables(mustParse(t, loopDocument))

	byName := map[string]Variable{}
	for _, variable := range variables {
		byName[variable.Name] = variable
	}

	assert.False(t, byName["subscriber.firstName"].InLoop)
	assert.False(t, byName["payload.comments"].InLoop)
	assert.True(t, byName["payload.comments[0].author"].InLoop)
	assert.Equal(t, "payload.comments.author", byName["payload.comments[0].author"].Raw)
	assert.True(t, byName["payload.comments[0].replies"].InLoop)
	assert.True(t, byName["payload.comments[0].replies[0].text"].InLoop)
	assert.False(t, byName["payload.comments.orphan"].InLoop)
}

func TestRemoveVariables(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, loopDocument)

	cleaned := RemoveVariables(doc, func(name string) bool {
		return name == "payload.comments[0].author" || name == "payload.comments.orphan"
	})

	assert.Equal(t, []string{
		"subscriber.firstName",
		"payload.comments.replies.text",
		"payload.comments.title",
	}, variableIDs(cleaned))
	assert.Len(t, variableIDs(doc), 5)
}

func TestRemoveVariables_AttributesAndLoops(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `{"type":"doc","content":[
		{"type":"button","attrs":{"text":"Open","url":"payload.link","isUrlVariable":true,"showIfKey":"payload.show"}},
		{"type":"image","attrs":{"src":"payload.logo","isSrcVariable":true}},
		{"type":"for","attrs":{"each":"payload.secret"},"content":[
			{"type":"variable","attrs":{"id":"payload.secret.name"}}
		]},
		{"type":"paragraph","content":[{"type":"variable","attrs":{"id":"payload.kept"}}]}
	]}`)

	dropped := map[string]bool{"payload.link": true, "payload.logo": true, "payload.show": true, "payload.secret": true}

	cleaned := RemoveVariables(doc, func(name string) bool { return dropped[name] })

	require.Len(t, cleaned.Content, 3)

	button := cleaned.Content[0]
	assert.Empty(t, button.StringAttr(attrURL))
	assert.False(t, button.BoolAttr(attrIsURLVariable))
	assert.NotContains(t, button.Attrs, attrShowIfKey)
	assert.Equal(t, "Open", button.StringAttr("text"))

	image := cleaned.Content[1]
	assert.Empty(t, image.StringAttr(attrSrc))
	assert.False(t, image.BoolAttr(attrIsSrcVariable))

	assert.Equal(t, []string{"payload.kept"}, variableIDs(cleaned))
	for _, variable := range CollectVariables(cleaned) {
		assert.False(t, dropped[variable.Name], variable.Name)
	}

	assert.Equal(t, "payload.link", doc.Content[0].StringAttr(attrURL))
	assert.Len(t, doc.Content, 4)
}

func TestTexts(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `{"type":"doc","content":[
		{"type":"paragraph","content":[{"type":"text","text":"Total {{ payload.total }}"}]},
		{"type":"button","attrs":{"text":"Pay {{payload.amount}}","url":"https://pay.example.com/{{payload.id}}"}}
	]}`)

	assert.Equal(t, []string{
		"Total {{ payload.total }}",
		"https://pay.example.com/{{payload.id}}",
		"Pay {{payload.amount}}",
	}, Texts(doc))
}

func TestRenderHTML(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `{"type":"doc","content":[
		{"type":"heading","attrs":{"level":2},"content":[{"type":"text","text":"Title"}]},
		{"type":"paragraph","content":[
			{"type":"text","text":"Hi <b>","marks":[{"type":"bold"}]},
			{"type":"hardBreak"},
			{"type":"variable","attrs":{"id":"payload.name"}}
		]},
		{"type":"horizontalRule"},
		{"type":"button","attrs":{"text":"Go","url":"https://example.com?a=1&b=2"}}
	]}`)

	out := RenderHTML(TransformToLiquid(doc))

	assert.Equal(t,
		`<h2>Title</h2><p><strong>Hi &lt;b&gt;</strong><br>{{payload.name}}</p><hr>`+
			`<a href="https://example.com?a=1&amp;b=2">Go</a>`,
		out)
}

func TestMapTexts(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `{"type":"doc","content":[
		{"type":"paragraph","content":[{"type":"text","text":"a {{bad.x}}"}]},
		{"type":"button","attrs":{"text":"b {{bad.x}}","url":"payload.url","isUrlVariable":true}}
	]}`)

	mapped := MapTexts(doc, func(s string) string { return s + "!" })

	assert.Equal(t, "a {{bad.x}}!", mapped.Content[0].Content[0].Text)
	assert.Equal(t, "b {{bad.x}}!", mapped.Content[1].StringAttr("text"))
	assert.Equal(t, "payload.url", mapped.Content[1].StringAttr(attrURL))
	assert.Equal(t, "a {{bad.x}}", doc.Content[0].Content[0].Text)
}
