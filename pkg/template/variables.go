package template

import (
	"regexp"
	"strings"

	"github.com/osteele/liquid"
)

// Variable is a variable reference found in a Liquid template.
type Variable struct {
	Name    string `json:"name"`
	Context string `json:"context,omitempty"` // Raw output tag the variable came from
	Message string `json:"message,omitempty"` // Parser error, empty for un-namespaced names
}

// Variables partitions the references of a template.
type Variables struct {
	ValidVariables   []Variable `json:"validVariables"`
	InvalidVariables []Variable `json:"invalidVariables"`
}

var (
	outputTagPattern = regexp.MustCompile(`(?s)\{\{(.*?)\}\}`)
	parseEngine      = liquid.NewEngine()
)

// ExtractLiquidTemplateVariables parses every {{ ... }} output tag of tpl on
// its own and returns the dotted variable paths it references.
//
// A tag that fails CheckOutputTag yields an invalid variable carrying the
// error. A tag whose path has no namespace ("{{ name }}") is invalid as well,
// without an error message. Valid variables are de-duplicated by name.
func ExtractLiquidTemplateVariables(tpl string) Variables {
	result := Variables{
		ValidVariables:   []Variable{},
		InvalidVariables: []Variable{},
	}

	if tpl == "" {
		return result
	}

	seen := map[string]bool{}

	for _, match := range outputTagPattern.FindAllStringSubmatch(tpl, -1) {
		raw, inner := match[0], match[1]

		if err := CheckOutputTag(inner); err != nil {
			result.InvalidVariables = append(result.InvalidVariables, Variable{
				Name:    strings.TrimSpace(inner),
				Context: raw,
				Message: err.Error(),
			})

			continue
		}

		path := VariablePath(inner)
		if path == "" {
			continue
		}

		if !strings.Contains(path, ".") {
			result.InvalidVariables = append(result.InvalidVariables, Variable{
				Name:    path,
				Context: raw,
			})

			continue
		}

		if seen[path] {
			continue
		}

		seen[path] = true

		result.ValidVariables = append(result.ValidVariables, Variable{
			Name:    path,
			Context: raw,
		})
	}

	return result
}

// VariablePath returns the dotted path of the leading variable of a Liquid
// output expression, ignoring filters. The walk stops at the first segment
// that is not an identifier or a literal index. Literals yield "".
func VariablePath(expression string) string {
	path, _ := ParseVariable(expression)

	return path
}

// ParseVariable is VariablePath that also returns the text left between the
// path and the first filter, trimmed. Whitespace control dashes are ignored.
func ParseVariable(expression string) (string, string) {
	expr := strings.TrimSpace(strings.Trim(strings.TrimSpace(expression), "-"))
	if idx := strings.Index(expr, "|"); idx >= 0 {
		expr = strings.TrimSpace(expr[:idx])
	}

	pos := 0
	identifier := func() string {
		start := pos
		for pos < len(expr) && isIdentifierChar(expr[pos], pos == start) {
			pos++
		}

		return expr[start:pos]
	}

	first := identifier()
	if first == "" {
		return "", expr
	}

	var path strings.Builder

	path.WriteString(first)

	rest := func(at int) (string, string) {
		return path.String(), strings.TrimSpace(expr[at:])
	}

	for pos < len(expr) {
		segmentStart := pos

		switch expr[pos] {
		case '.':
			pos++

			name := identifier()
			if name == "" {
				return rest(segmentStart)
			}

			path.WriteString("." + name)
		case '[':
			end := strings.IndexByte(expr[pos:], ']')
			if end < 0 {
				return rest(segmentStart)
			}

			index := strings.TrimSpace(expr[pos+1 : pos+end])

			switch {
			case isDigits(index):
				path.WriteString("[" + index + "]")
			case isQuoted(index):
				path.WriteString("." + index[1:len(index)-1])
			default:
				return rest(segmentStart)
			}

			pos += end + 1
		default:
			return rest(segmentStart)
		}
	}

	return path.String(), ""
}

func isIdentifierChar(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case first:
		return false
	default:
		return c == '-' || (c >= '0' && c <= '9')
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}

	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}

func isQuoted(s string) bool {
	return len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0]
}
