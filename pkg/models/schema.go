package models

// JSONSchema is the subset of JSON Schema used for control and variable schemas.
type JSONSchema struct {
	Type                 string                 `json:"type,omitempty"`
	Title                string                 `json:"title,omitempty"`
	Description          string                 `json:"description,omitempty"`
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	AdditionalProperties *bool                  `json:"additionalProperties,omitempty"`
	Items                *JSONSchema            `json:"items,omitempty"`
	Enum                 []any                  `json:"enum,omitempty"`
	Default              any                    `json:"default,omitempty"`
	Format               string                 `json:"format,omitempty"`
	MinLength            *int                   `json:"minLength,omitempty"`
	MaxLength            *int                   `json:"maxLength,omitempty"`
	Minimum              *float64               `json:"minimum,omitempty"`
	Pattern              string                 `json:"pattern,omitempty"`
}

// AllowsAdditionalProperties reports whether unknown properties are permitted.
// A missing additionalProperties keyword allows them, as in JSON Schema.
func (s *JSONSchema) AllowsAdditionalProperties() bool {
	return s.AdditionalProperties == nil || *s.AdditionalProperties
}

// IsRequired reports whether name is listed in the required properties.
func (s *JSONSchema) IsRequired(name string) bool {
	for _, required := range s.Required {
		if required == name {
			return true
		}
	}

	return false
}

// Bool returns a pointer to b, for optional schema keywords.
func Bool(b bool) *bool {
	return &b
}

// Int returns a pointer to i, for optional schema keywords.
func Int(i int) *int {
	return &i
}
