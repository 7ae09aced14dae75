package schema

import (
	"github.com/dukex/notiflow/pkg/models"
)

// Delay and digest time units, shortest first.
var TimeUnits = []any{"seconds", "minutes", "hours", "days", "weeks", "months"}

func str() *models.JSONSchema {
	return &models.JSONSchema{Type: "string"}
}

func object(required []string, properties map[string]*models.JSONSchema) *models.JSONSchema {
	return &models.JSONSchema{
		Type:                 "object",
		Properties:           properties,
		Required:             required,
		AdditionalProperties: models.Bool(false),
	}
}

func action() *models.JSONSchema {
	return object([]string{"label"}, map[string]*models.JSONSchema{
		"label":    str(),
		"redirect": redirect(),
	})
}

func redirect() *models.JSONSchema {
	return object([]string{"url"}, map[string]*models.JSONSchema{
		"url": str(),
		"target": {
			Type: "string",
			Enum: []any{"_self", "_blank", "_parent", "_top", "_unfencedTop"},
		},
	})
}

// ControlSchemaFor returns the built-in control schema of a step type.
func ControlSchemaFor(t models.StepType) *models.JSONSchema {
	switch t {
	case models.StepTypeEmail:
		return object([]string{"subject", "body"}, map[string]*models.JSONSchema{
			"subject": {Type: "string", MinLength: models.Int(1)},
			"body":    {Type: "string", Default: ""},
			"editorType": {
				Type:    "string",
				Enum:    []any{"block", "html"},
				Default: "block",
			},
		})
	case models.StepTypeInApp:
		return object([]string{"body"}, map[string]*models.JSONSchema{
			"subject":         str(),
			"body":            {Type: "string", MinLength: models.Int(1)},
			"avatar":          str(),
			"primaryAction":   action(),
			"secondaryAction": action(),
			"redirect":        redirect(),
		})
	case models.StepTypeSMS, models.StepTypeChat:
		return object([]string{"body"}, map[string]*models.JSONSchema{
			"body": {Type: "string", MinLength: models.Int(1)},
		})
	case models.StepTypePush:
		return object([]string{"subject", "body"}, map[string]*models.JSONSchema{
			"subject": {Type: "string", MinLength: models.Int(1)},
			"body":    {Type: "string", MinLength: models.Int(1)},
		})
	case models.StepTypeDelay:
		return object([]string{"type", "amount", "unit"}, map[string]*models.JSONSchema{
			"type":   {Type: "string", Enum: []any{"regular"}, Default: "regular"},
			"amount": {Type: "number", Minimum: float(1)},
			"unit":   {Type: "string", Enum: TimeUnits},
		})
	case models.StepTypeDigest:
		return object(nil, map[string]*models.JSONSchema{
			"amount":    {Type: "number", Minimum: float(1)},
			"unit":      {Type: "string", Enum: TimeUnits},
			"digestKey": str(),
			"cron":      str(),
		})
	case models.StepTypeThrottle:
		return object([]string{"amount", "unit", "threshold"}, map[string]*models.JSONSchema{
			"amount":    {Type: "number", Minimum: float(1)},
			"unit":      {Type: "string", Enum: TimeUnits},
			"threshold": {Type: "number", Minimum: float(1), Default: 1},
		})
	default:
		return &models.JSONSchema{Type: "object", Properties: map[string]*models.JSONSchema{}}
	}
}

// ResolveControlSchema returns the step's own control schema, or the
// built-in one of its type.
func ResolveControlSchema(step *models.Step) *models.JSONSchema {
	if step.ControlSchema != nil {
		return step.ControlSchema
	}

	return ControlSchemaFor(step.Type)
}

// ExtractDefaultValues returns the nested object of the defaults declared in s.
// Objects without any default below them are left out.
func ExtractDefaultValues(s *models.JSONSchema) map[string]any {
	defaults := map[string]any{}
	if s == nil {
		return defaults
	}

	for name, property := range s.Properties {
		if property == nil {
			continue
		}

		if property.Default != nil {
			defaults[name] = property.Default

			continue
		}

		if property.Type == "object" {
			nested := ExtractDefaultValues(property)
			if len(nested) > 0 {
				defaults[name] = nested
			}
		}
	}

	return defaults
}

func float(f float64) *float64 {
	return &f
}
