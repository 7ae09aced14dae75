package schema

import (
	"strconv"
	"strings"

	"github.com/dukex/notiflow/pkg/controlvalue"
	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/placeholder"
)

const payloadNamespace = "payload"

// BuildPayloadSchema infers a payload schema from the payload.* placeholders
// referenced by the given control values. Leaves are strings, indexed
// segments become arrays of objects.
func BuildPayloadSchema(controls ...map[string]any) (*models.JSONSchema, error) {
	payload := closedObject()

	for _, values := range controls {
		flat := controlvalue.Flatten(values)

		for _, key := range controlvalue.SortedKeys(flat) {
			aggregation, err := placeholder.ExtractControlValue(flat[key])
			if err != nil {
				return nil, err
			}

			for _, path := range controlvalue.SortedKeys(aggregation.All()) {
				segments := controlvalue.SplitPath(path)
				if len(segments) < 2 || segments[0] != payloadNamespace {
					continue
				}

				addPath(payload, segments[1:])
			}
		}
	}

	return payload, nil
}

func addPath(node *models.JSONSchema, segments []string) {
	if len(segments) == 0 {
		return
	}

	head, rest := segments[0], segments[1:]

	if node.Type == "array" {
		if node.Items == nil {
			node.Items = &models.JSONSchema{Type: "string"}
		}

		if len(rest) > 0 && node.Items.Type != "object" {
			node.Items = closedObject()
		}

		addPath(node.Items, rest)

		return
	}

	if node.Type != "object" {
		return
	}

	child, ok := node.Properties[head]

	switch {
	case len(rest) == 0:
		if !ok {
			node.Properties[head] = &models.JSONSchema{Type: "string"}
		}

		return
	case isIndex(rest[0]):
		if !ok || child.Type != "array" {
			child = &models.JSONSchema{Type: "array"}
			node.Properties[head] = child
		}
	default:
		if !ok || child.Type != "object" {
			child = closedObject()
			node.Properties[head] = child
		}
	}

	addPath(child, rest)
}

func isIndex(segment string) bool {
	_, err := strconv.Atoi(strings.TrimSpace(segment))

	return err == nil
}
