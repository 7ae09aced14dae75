package placeholder

import (
	"strings"

	"github.com/dukex/notiflow/pkg/maily"
	"github.com/dukex/notiflow/pkg/template"
)

// ExtractControlValue extracts the placeholders of a single control value.
// String values holding a Maily document are read as rich text first; any
// other string falls back to flat text extraction.
func ExtractControlValue(value any) (Aggregation, error) {
	text, ok := value.(string)
	if !ok {
		return Extract(value)
	}

	doc, ok := maily.Parse(text)
	if !ok {
		return Extract(text)
	}

	return ExtractDocument(doc), nil
}

// ExtractDocument extracts the placeholders of a Maily document: variable
// nodes, variable attributes, and {{ }} tags typed as plain text.
func ExtractDocument(doc *maily.Node) Aggregation {
	aggregation := NewAggregation()

	for _, variable := range maily.CollectVariables(doc) {
		if err := template.CheckOutputTag(variable.Name); err != nil {
			aggregation.AddInvalid(variable.Name, "", err)

			continue
		}

		key, defaultValue, ok := ParseExpression(variable.Name)
		if !ok || IsUnsupported(key) {
			continue
		}

		if defaultValue == "" {
			defaultValue = "{{" + key + "}}"
		}

		aggregation.Add(key, defaultValue, "", variable.InLoop)
	}

	texts, _ := Extract(strings.Join(maily.Texts(doc), "\n"))
	aggregation.Merge(texts)

	return aggregation
}
