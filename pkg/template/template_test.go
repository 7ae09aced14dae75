package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLiquidTemplateVariables_NoPlaceholders(t *testing.T) {
	t.Parallel()

	for _, tpl := range []string{"", "plain text", "{ not a tag }", "{% comment %}x{% endcomment %}"} {
		result := ExtractLiquidTemplateVariables(tpl)
		assert.Empty(t, result.ValidVariables, tpl)
		assert.Empty(t, result.InvalidVariables, tpl)
	}
}

func TestExtractLiquidTemplateVariables_BareNamesAreInvalid(t *testing.T) {
	t.Parallel()

	result := ExtractLiquidTemplateVariables("{{name}} {{ age }}")

	assert.Empty(t, result.ValidVariables)
	require.Len(t, result.InvalidVariables, 2)
	assert.Equal(t, "name", result.InvalidVariables[0].Name)
	assert.Equal(t, "age", result.InvalidVariables[1].Name)
	assert.Empty(t, result.InvalidVariables[0].Message)
}

func TestExtractLiquidTemplateVariables_Deduplicates(t *testing.T) {
	t.Parallel()

	result := ExtractLiquidTemplateVariables("{{a.b}} {{a.b}} {{ a.b }}")

	require.Len(t, result.ValidVariables, 1)
	assert.Equal(t, "a.b", result.ValidVariables[0].Name)
	assert.Empty(t, result.InvalidVariables)
}

func TestExtractLiquidTemplateVariables_DottedPaths(t *testing.T) {
	t.Parallel()

	result := ExtractLiquidTemplateVariables(
		`Hello {{ subscriber.firstName }}, {{ payload.user.profile.name | upcase }} {{ payload.items[0].title }}`,
	)

	names := make([]string, 0, len(result.ValidVariables))
	for _, variable := range result.ValidVariables {
		names = append(names, variable.Name)
	}

	assert.Equal(t, []string{"subscriber.firstName", "payload.user.profile.name", "payload.items[0].title"}, names)
}

func TestExtractLiquidTemplateVariables_ParseError(t *testing.T) {
	t.Parallel()

	result := ExtractLiquidTemplateVariables("Hi {{ invalid..syntax }} and {{ payload.ok }}")

	require.Len(t, result.InvalidVariables, 1)
	assert.Equal(t, "invalid..syntax", result.InvalidVariables[0].Name)
	assert.NotEmpty(t, result.InvalidVariables[0].Message)
	assert.Equal(t, "{{ invalid..syntax }}", result.InvalidVariables[0].Context)

	require.Len(t, result.ValidVariables, 1)
	assert.Equal(t, "payload.ok", result.ValidVariables[0].Name)
}

func TestVariablePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expression string
		want       string
	}{
		{"payload.name", "payload.name"},
		{" payload.name | default: 'x' ", "payload.name"},
		{`payload["first name"]`, "payload.first name"},
		{"steps.digest.events[0].payload.id", "steps.digest.events[0].payload.id"},
		{"payload.items[i].name", "payload.items"},
		{"'literal'", ""},
		{"42", ""},
		{"name", "name"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, VariablePath(tt.expression), tt.expression)
	}
}

func TestParseVariable_Rest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expression string
		path       string
		rest       string
	}{
		{"payload.name", "payload.name", ""},
		{"payload.name | upcase", "payload.name", ""},
		{"- payload.name -", "payload.name", ""},
		{"payload.name )", "payload.name", ")"},
		{"payload.name extra | upcase", "payload.name", "extra"},
		{"payload.items[i].name", "payload.items", "[i].name"},
		{"'literal'", "", "'literal'"},
	}

	for _, tt := range tests {
		path, rest := ParseVariable(tt.expression)
		assert.Equal(t, tt.path, path, tt.expression)
		assert.Equal(t, tt.rest, rest, tt.expression)
	}
}

func TestCheckOutputTag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		expression string
		wantErr    error
		wantAnyErr bool
	}{
		{name: "plain variable", expression: " payload.name "},
		{name: "known filters", expression: `payload.name | upcase | append: "!"`},
		{name: "default filter", expression: `payload.name | default: "x"`},
		{name: "whitespace control", expression: "- payload.name -"},
		{name: "loop index", expression: "payload.items[i].name"},
		{name: "literal", expression: "'hello'"},
		{name: "dangling pipe", expression: "payload.name |", wantAnyErr: true},
		{name: "filter without argument", expression: "payload.name | upcase:", wantAnyErr: true},
		{name: "double dot", expression: "payload..name", wantAnyErr: true},
		{name: "unknown filter", expression: "payload.name | nosuchfilter", wantErr: ErrUndefinedFilter},
		{name: "unknown filter after known one", expression: "payload.name | upcase | shout", wantErr: ErrUndefinedFilter},
		{name: "text after variable", expression: "payload.name extra", wantAnyErr: true},
		{name: "comparison", expression: "payload.name == 1", wantErr: ErrUnexpectedExpression},
		{name: "alternative", expression: "payload.name or payload.city", wantErr: ErrUnexpectedExpression},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := CheckOutputTag(tt.expression)

			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.wantAnyErr:
				require.Error(t, err)
			default:
				require.NoError(t, err)
			}
		})
	}
}

func TestExtractLiquidTemplateVariables_UnknownFilter(t *testing.T) {
	t.Parallel()

	result := ExtractLiquidTemplateVariables("{{ payload.name | nosuchfilter }} {{ payload.city | upcase }}")

	require.Len(t, result.InvalidVariables, 1)
	assert.Equal(t, "payload.name | nosuchfilter", result.InvalidVariables[0].Name)
	assert.Contains(t, result.InvalidVariables[0].Message, "nosuchfilter")

	require.Len(t, result.ValidVariables, 1)
	assert.Equal(t, "payload.city", result.ValidVariables[0].Name)
}

func TestRenderer_Render(t *testing.T) {
	t.Parallel()

	renderer := NewRenderer()

	out, err := renderer.Render("Hello {{ payload.name }}!", map[string]any{
		"payload": map[string]any{"name": "John"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello John!", out)

	out, err = renderer.Render("Hello {{ payload.missing }}!", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "Hello !", out)

	out, err = renderer.Render("no templating", nil)
	require.NoError(t, err)
	assert.Equal(t, "no templating", out)

	_, err = renderer.Render("{{ invalid..syntax }}", nil)
	assert.Error(t, err)
}

func TestRenderer_RenderValue(t *testing.T) {
	t.Parallel()

	renderer := NewRenderer()
	bindings := map[string]any{"payload": map[string]any{"amount": 5, "flag": true, "name": "Ann"}}

	value, err := renderer.RenderValue("{{ payload.amount }}", bindings)
	require.NoError(t, err)
	assert.Equal(t, 5.0, value)

	value, err = renderer.RenderValue("{{ payload.flag }}", bindings)
	require.NoError(t, err)
	assert.Equal(t, true, value)

	value, err = renderer.RenderValue("{{ payload.name }}", bindings)
	require.NoError(t, err)
	assert.Equal(t, "Ann", value)
}
