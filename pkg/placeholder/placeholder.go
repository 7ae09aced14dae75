// Package placeholder extracts {{ }} style variable references from step
// control values and records the inline defaults they carry.
package placeholder

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dukex/notiflow/pkg/controlvalue"
	"github.com/dukex/notiflow/pkg/template"
)

// ErrPayloadDefaultsEngineFailure is returned when a control value that is not
// a primitive reaches the flat text extractor.
var ErrPayloadDefaultsEngineFailure = errors.New("payload defaults engine failure")

// EngineFailureError describes the value that could not be processed.
type EngineFailureError struct {
	Kind controlvalue.Kind
}

func (e *EngineFailureError) Error() string {
	return fmt.Sprintf("%s: value of kind %s is not a primitive", ErrPayloadDefaultsEngineFailure, e.Kind)
}

func (e *EngineFailureError) Unwrap() error {
	return ErrPayloadDefaultsEngineFailure
}

// UnsupportedPrefixes lists namespaces that are silently ignored.
var UnsupportedPrefixes = []string{"actor"}

// Aggregation holds the placeholders found in a single control value.
type Aggregation struct {
	// RegularPlaceholdersToDefaultValue maps placeholder paths to their default.
	RegularPlaceholdersToDefaultValue map[string]string `json:"regularPlaceholdersToDefaultValue"`
	// NestedForPlaceholders maps placeholders rewritten from a loop item to the
	// first element of the iterated collection ("payload.items[0].name").
	NestedForPlaceholders map[string]string `json:"nestedForPlaceholders"`
	// Matches keeps the raw template text of every placeholder, by path.
	Matches map[string][]string `json:"-"`
	// Invalid lists the output tags Liquid cannot use, in order of appearance.
	Invalid []InvalidPlaceholder `json:"invalid,omitempty"`
}

// InvalidPlaceholder is an output tag rejected by template.CheckOutputTag.
type InvalidPlaceholder struct {
	Expression string `json:"expression"`
	Raw        string `json:"raw,omitempty"` // Empty for Maily variable nodes
	Message    string `json:"message"`
}

// NewAggregation returns an empty aggregation.
func NewAggregation() Aggregation {
	return Aggregation{
		RegularPlaceholdersToDefaultValue: map[string]string{},
		NestedForPlaceholders:             map[string]string{},
		Matches:                           map[string][]string{},
	}
}

// IsEmpty reports whether no placeholder, valid or not, was found.
func (a Aggregation) IsEmpty() bool {
	return len(a.RegularPlaceholdersToDefaultValue) == 0 && len(a.NestedForPlaceholders) == 0 && len(a.Invalid) == 0
}

// All returns every placeholder path with its default, loop placeholders included.
func (a Aggregation) All() map[string]string {
	all := make(map[string]string, len(a.RegularPlaceholdersToDefaultValue)+len(a.NestedForPlaceholders))
	for key, value := range a.RegularPlaceholdersToDefaultValue {
		all[key] = value
	}

	for key, value := range a.NestedForPlaceholders {
		all[key] = value
	}

	return all
}

// Add records a placeholder. Loop placeholders go to NestedForPlaceholders.
func (a Aggregation) Add(path, defaultValue, raw string, inLoop bool) {
	if inLoop {
		a.NestedForPlaceholders[path] = defaultValue
	} else {
		a.RegularPlaceholdersToDefaultValue[path] = defaultValue
	}

	if raw != "" {
		a.Matches[path] = appendUnique(a.Matches[path], raw)
	}
}

// AddInvalid records an output tag that failed to parse.
func (a *Aggregation) AddInvalid(expression, raw string, err error) {
	a.Invalid = append(a.Invalid, InvalidPlaceholder{Expression: expression, Raw: raw, Message: err.Error()})
}

// Merge copies every placeholder of other into a.
func (a *Aggregation) Merge(other Aggregation) {
	for key, value := range other.RegularPlaceholdersToDefaultValue {
		a.RegularPlaceholdersToDefaultValue[key] = value
	}

	for key, value := range other.NestedForPlaceholders {
		a.NestedForPlaceholders[key] = value
	}

	for key, raws := range other.Matches {
		for _, raw := range raws {
			a.Matches[key] = appendUnique(a.Matches[key], raw)
		}
	}

	a.Invalid = append(a.Invalid, other.Invalid...)
}

func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}

	return append(list, value)
}

// tokenPattern matches, in order of precedence: a Liquid for tag, an endfor
// tag, and the three placeholder bracket styles {{{x}}}, {{x}} and {#x#}.
var tokenPattern = regexp.MustCompile(
	`\{%-?\s*for\s+([A-Za-z_][\w-]*)\s+in\s+([^\s%]+)[^%]*?-?%\}` +
		`|\{%-?\s*endfor\s*-?%\}` +
		`|\{\{\{(.*?)\}\}\}|\{\{(.*?)\}\}|\{#(.*?)#\}`,
)

var defaultFilterPattern = regexp.MustCompile(`^\s*default\s*:\s*(.+?)\s*$`)

type loop struct {
	variable   string
	collection string
}

// Extract scans a primitive control value for placeholders.
//
// Nil, numbers and booleans yield an empty aggregation. Objects and arrays are
// rejected with an EngineFailureError; they have to be resolved before.
func Extract(value any) (Aggregation, error) {
	aggregation := NewAggregation()

	switch kind := controlvalue.KindOf(value); kind {
	case controlvalue.KindNull, controlvalue.KindNumber, controlvalue.KindBool:
		return aggregation, nil
	case controlvalue.KindString:
		extractString(&aggregation, value.(string))

		return aggregation, nil
	default:
		return aggregation, &EngineFailureError{Kind: kind}
	}
}

func extractString(aggregation *Aggregation, text string) {
	var loops []loop

	for _, match := range tokenPattern.FindAllStringSubmatch(text, -1) {
		switch {
		case match[1] != "":
			collection, _ := resolveLoopVariable(template.VariablePath(match[2]), loops)
			loops = append(loops, loop{variable: match[1], collection: collection})

			continue
		case strings.HasPrefix(match[0], "{%"):
			if len(loops) > 0 {
				loops = loops[:len(loops)-1]
			}

			continue
		}

		inner := firstNonEmpty(match[3], match[4], match[5])

		// {# #} placeholders are not Liquid.
		if match[5] == "" && inner != "" {
			if err := template.CheckOutputTag(inner); err != nil {
				aggregation.AddInvalid(inner, match[0], err)

				continue
			}
		}

		key, defaultValue, ok := ParseExpression(inner)
		if !ok {
			continue
		}

		path, inLoop := resolveLoopVariable(key, loops)
		if IsUnsupported(path) {
			continue
		}

		if defaultValue == "" {
			defaultValue = "{{" + path + "}}"
		}

		aggregation.Add(path, defaultValue, match[0], inLoop)
	}
}

// ParseExpression splits a placeholder expression into its canonical variable
// path and the literal of an inline default filter. Literal expressions are
// rejected.
func ParseExpression(expression string) (string, string, bool) {
	parts := strings.Split(expression, "|")

	key := template.VariablePath(parts[0])
	if key == "" {
		return "", "", false
	}

	var defaultValue string

	for _, filter := range parts[1:] {
		if m := defaultFilterPattern.FindStringSubmatch(filter); m != nil {
			defaultValue = unquote(m[1])
		}
	}

	return key, defaultValue, true
}

func resolveLoopVariable(key string, loops []loop) (string, bool) {
	for i := len(loops) - 1; i >= 0; i-- {
		current := loops[i]
		if current.collection == "" {
			continue
		}

		if key == current.variable {
			return current.collection + "[0]", true
		}

		if rest, ok := strings.CutPrefix(key, current.variable+"."); ok {
			return current.collection + "[0]." + rest, true
		}
	}

	return key, false
}

// IsUnsupported reports whether path belongs to an ignored namespace.
func IsUnsupported(path string) bool {
	for _, prefix := range UnsupportedPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+".") || strings.HasPrefix(path, prefix+"[") {
			return true
		}
	}

	return false
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}

	return ""
}

func unquote(value string) string {
	if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
		return value[1 : len(value)-1]
	}

	return value
}
