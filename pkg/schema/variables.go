// Package schema builds the JSON schemas used to validate step control values:
// the variable schema of a step, the inferred payload schema and the built-in
// control schema of every step type.
package schema

import (
	"errors"
	"fmt"

	"github.com/dukex/notiflow/pkg/models"
)

var ErrStepNotFound = errors.New("step not found in workflow")

// BuildVariableSchema returns the schema of the variables a step may
// reference: subscriber fields, the payload, and the outputs of the steps that
// come strictly before it. Every object level is closed to unknown properties.
// A nil payloadSchema falls back to the workflow payload schema.
func BuildVariableSchema(wf *models.Workflow, stepID string, payloadSchema *models.JSONSchema) (*models.JSONSchema, error) {
	index := wf.StepIndex(stepID)
	if index < 0 {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, stepID)
	}

	if payloadSchema == nil {
		payloadSchema = wf.PayloadSchema
	}

	steps := closedObject()
	for _, previous := range wf.Steps[:index] {
		steps.Properties[previous.StepID] = OutputSchemaFor(previous.Type, payloadSchema)
	}

	variables := closedObject()
	variables.Properties["subscriber"] = SubscriberSchema()
	variables.Properties["steps"] = steps
	variables.Properties["payload"] = closePayload(payloadSchema)

	return variables, nil
}

// SubscriberSchema is the fixed shape of the subscriber namespace.
func SubscriberSchema() *models.JSONSchema {
	subscriber := closedObject()
	for _, name := range []string{"subscriberId", "firstName", "lastName", "email", "phone", "avatar", "locale"} {
		subscriber.Properties[name] = &models.JSONSchema{Type: "string"}
	}

	subscriber.Properties["isOnline"] = &models.JSONSchema{Type: "boolean"}
	subscriber.Properties["lastOnlineAt"] = &models.JSONSchema{Type: "string", Format: "date-time"}

	return subscriber
}

// OutputSchemaFor returns the output a step of type t exposes to later steps.
func OutputSchemaFor(t models.StepType, payloadSchema *models.JSONSchema) *models.JSONSchema {
	output := closedObject()

	switch t {
	case models.StepTypeDigest:
		event := closedObject()
		event.Properties["id"] = &models.JSONSchema{Type: "string"}
		event.Properties["time"] = &models.JSONSchema{Type: "string"}
		event.Properties["payload"] = closePayload(payloadSchema)
		event.Required = []string{"id", "time", "payload"}

		output.Properties["events"] = &models.JSONSchema{Type: "array", Items: event}
		output.Properties["eventCount"] = &models.JSONSchema{Type: "number"}
	case models.StepTypeInApp:
		output.Properties["seen"] = &models.JSONSchema{Type: "boolean"}
		output.Properties["read"] = &models.JSONSchema{Type: "boolean"}
		output.Properties["lastSeenDate"] = &models.JSONSchema{Type: "string", Format: "date-time"}
		output.Properties["lastReadDate"] = &models.JSONSchema{Type: "string", Format: "date-time"}
	}

	return output
}

func closedObject() *models.JSONSchema {
	return &models.JSONSchema{
		Type:                 "object",
		Properties:           map[string]*models.JSONSchema{},
		AdditionalProperties: models.Bool(false),
	}
}

// closePayload copies the payload schema and closes every object level that
// does not state additionalProperties explicitly.
func closePayload(payload *models.JSONSchema) *models.JSONSchema {
	if payload == nil {
		return closedObject()
	}

	closed := Clone(payload)
	closeObjects(closed)

	return closed
}

func closeObjects(s *models.JSONSchema) {
	if s == nil {
		return
	}

	if s.Type == "object" || s.Properties != nil {
		if s.AdditionalProperties == nil {
			s.AdditionalProperties = models.Bool(false)
		}

		if s.Properties == nil {
			s.Properties = map[string]*models.JSONSchema{}
		}
	}

	for _, property := range s.Properties {
		closeObjects(property)
	}

	closeObjects(s.Items)
}

// Clone returns a deep copy of s.
func Clone(s *models.JSONSchema) *models.JSONSchema {
	if s == nil {
		return nil
	}

	clone := *s

	if s.Properties != nil {
		clone.Properties = make(map[string]*models.JSONSchema, len(s.Properties))
		for name, property := range s.Properties {
			clone.Properties[name] = Clone(property)
		}
	}

	if s.Required != nil {
		clone.Required = append([]string(nil), s.Required...)
	}

	if s.Enum != nil {
		clone.Enum = append([]any(nil), s.Enum...)
	}

	clone.Items = Clone(s.Items)

	return &clone
}
