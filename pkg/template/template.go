// Package template provides Liquid parsing and rendering for step control values.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/osteele/liquid"
)

// Renderer renders Liquid templates. Undefined variables render as empty strings.
type Renderer struct {
	engine *liquid.Engine
}

// NewRenderer creates a Renderer with the standard Liquid filters.
func NewRenderer() *Renderer {
	return &Renderer{engine: liquid.NewEngine()}
}

// Render renders tpl against bindings and returns the output string.
func (r *Renderer) Render(tpl string, bindings map[string]any) (string, error) {
	if !strings.Contains(tpl, "{{") && !strings.Contains(tpl, "{%") {
		return tpl, nil
	}

	out, err := r.engine.ParseAndRenderString(tpl, bindings)
	if err != nil {
		return "", fmt.Errorf("failed to render template '%s': %w", tpl, err)
	}

	return out, nil
}

// RenderValue renders tpl and converts the output to a JSON value, number or
// boolean when it looks like one, falling back to the string.
func (r *Renderer) RenderValue(tpl string, bindings map[string]any) (any, error) {
	out, err := r.Render(tpl, bindings)
	if err != nil {
		return nil, err
	}

	result := strings.TrimSpace(out)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return out, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return out, nil
}
