package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dukex/notiflow/pkg/controlvalue"
	"github.com/dukex/notiflow/pkg/models"
)

const rootContext = "(root)"

// Validation error types reported by gojsonschema.
const (
	ErrorTypeRequired             = "required"
	ErrorTypeInvalidType          = "invalid_type"
	ErrorTypeAdditionalProperties = "additional_property_not_allowed"
)

// ValidationError is a single schema violation.
type ValidationError struct {
	Path    string // Dotted path of the offending value, or of the missing property
	Type    string
	Message string
}

// ContainsPath reports whether the dotted path is declared by s. Indexed
// segments descend into array items. Objects that allow additional
// properties accept any path below them.
func ContainsPath(s *models.JSONSchema, path string) bool {
	current := s

	for _, segment := range controlvalue.SplitPath(path) {
		if current == nil {
			return false
		}

		if current.Type == "array" {
			if _, err := strconv.Atoi(segment); err != nil {
				return false
			}

			current = current.Items

			continue
		}

		next, ok := current.Properties[segment]
		if !ok {
			return current.Type == "object" && current.AllowsAdditionalProperties()
		}

		current = next
	}

	return current != nil
}

// Validate checks document against s.
func Validate(s *models.JSONSchema, document any) ([]ValidationError, error) {
	schemaLoader := gojsonschema.NewGoLoader(s)
	documentLoader := gojsonschema.NewGoLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("failed to validate against schema: %w", err)
	}

	if result.Valid() {
		return nil, nil
	}

	errs := make([]ValidationError, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		errs = append(errs, ValidationError{
			Path:    errorPath(resultErr),
			Type:    resultErr.Type(),
			Message: resultErr.Description(),
		})
	}

	return errs, nil
}

func errorPath(resultErr gojsonschema.ResultError) string {
	field := resultErr.Field()
	if field == rootContext {
		field = ""
	}

	if resultErr.Type() != ErrorTypeRequired && resultErr.Type() != ErrorTypeAdditionalProperties {
		return field
	}

	property, _ := resultErr.Details()["property"].(string)
	if property == "" {
		return field
	}

	if field == "" {
		return property
	}

	return strings.Join([]string{field, property}, ".")
}
