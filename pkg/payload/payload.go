// Package payload synthesizes preview payloads from the placeholders a step's
// control values reference.
package payload

import (
	"fmt"

	"github.com/dukex/notiflow/pkg/controlvalue"
	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/placeholder"
)

// Command is the input of BuildDefaultPayload.
type Command struct {
	ControlValues map[string]any
	// PayloadValues is the caller supplied preview payload, namespaced
	// ({"payload": {...}, "subscriber": {...}}).
	PayloadValues map[string]any
}

// Result is the synthesized payload with the issues found while building it.
type Result struct {
	PreviewPayload map[string]any
	Issues         models.ContentIssues
}

// BuildDefaultPayload extracts the placeholders of every control value and
// builds the default payload they need.
func BuildDefaultPayload(cmd Command) (Result, error) {
	aggregations, err := ExtractAll(cmd.ControlValues)
	if err != nil {
		return Result{}, err
	}

	return FromAggregations(aggregations, cmd.PayloadValues), nil
}

// ExtractAll flattens control values and extracts the placeholders of every
// leaf, keyed by dotted control path.
func ExtractAll(controlValues map[string]any) (map[string]placeholder.Aggregation, error) {
	flat := controlvalue.Flatten(controlValues)
	aggregations := make(map[string]placeholder.Aggregation, len(flat))

	for _, key := range controlvalue.SortedKeys(flat) {
		aggregation, err := placeholder.ExtractControlValue(flat[key])
		if err != nil {
			return nil, fmt.Errorf("failed to extract placeholders of %q: %w", key, err)
		}

		aggregations[key] = aggregation
	}

	return aggregations, nil
}

// FromAggregations writes the defaults of every control key into a single
// object, in sorted key order, so later keys win on conflicting paths and
// arrays merge item by item. Every synthesized path absent from
// payloadValues, whatever its namespace, yields a MISSING_VARIABLE_IN_PAYLOAD
// issue on each control key that references it.
func FromAggregations(aggregations map[string]placeholder.Aggregation, payloadValues map[string]any) Result {
	result := Result{
		PreviewPayload: map[string]any{},
		Issues:         models.ContentIssues{},
	}

	for _, key := range controlvalue.SortedKeys(aggregations) {
		placeholders := aggregations[key].All()
		if len(placeholders) == 0 {
			continue
		}

		for _, path := range controlvalue.SortedKeys(placeholders) {
			controlvalue.SetPath(result.PreviewPayload, path, placeholders[path])

			if _, ok := controlvalue.GetPath(payloadValues, path); !ok {
				result.Issues.Add(key, models.ContentIssue{
					IssueType:    models.IssueTypeMissingVariableInPayload,
					Message:      fmt.Sprintf("Variable %s is missing in payload", path),
					VariableName: path,
				})
			}
		}
	}

	return result
}
