// Package content prepares step control values for preview and persistence:
// it merges schema defaults, strips illegal content and reports every
// problem as a content issue keyed by control path.
package content

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/notiflow/pkg/controlvalue"
	"github.com/dukex/notiflow/pkg/maily"
	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/otelhelper"
	"github.com/dukex/notiflow/pkg/payload"
	"github.com/dukex/notiflow/pkg/placeholder"
	"github.com/dukex/notiflow/pkg/schema"
	"github.com/dukex/notiflow/pkg/template"
)

// InvalidURLPlaceholder replaces URLs that are neither absolute, relative nor templated.
const InvalidURLPlaceholder = "https://example.com/invalid-url"

// Command is the input of PrepareAndValidate.
type Command struct {
	ControlValues     map[string]any
	ControlDataSchema *models.JSONSchema
	VariableSchema    *models.JSONSchema
	// PreviewPayload is the caller supplied payload; its values win over
	// synthesized defaults.
	PreviewPayload map[string]any
	StepType       models.StepType
	Tier           models.Tier
}

// ValidatedContent is the result of PrepareAndValidate.
type ValidatedContent struct {
	FinalPayload       map[string]any       `json:"finalPayload"`
	FinalControlValues map[string]any       `json:"finalControlValues"`
	Issues             models.ContentIssues `json:"issues"`
}

// Validator runs the control value validation pipeline.
type Validator struct {
	logger *slog.Logger
	tracer trace.Tracer
	tier   TierRestrictionsValidator
}

// NewValidator creates a Validator.
func NewValidator(logger *slog.Logger, tracer trace.Tracer, tier TierRestrictionsValidator) *Validator {
	return &Validator{
		logger: logger.With("module", "content"),
		tracer: tracer,
		tier:   tier,
	}
}

// PrepareAndValidate sanitizes cmd.ControlValues and reports their issues.
//
// It never fails on malformed user content. The only error it returns is
// placeholder.ErrPayloadDefaultsEngineFailure for a value that cannot be
// scanned, and schema evaluation errors.
func (v *Validator) PrepareAndValidate(ctx context.Context, cmd Command) (ValidatedContent, error) {
	ctx, span := otelhelper.StartSpan(ctx, v.tracer, "content.prepare_and_validate",
		attribute.String(otelhelper.StepTypeKey, string(cmd.StepType)),
		attribute.String(otelhelper.TierKey, string(cmd.Tier)),
	)
	defer span.End()

	result, err := v.prepareAndValidate(ctx, cmd)
	if err != nil {
		otelhelper.SetError(span, err)

		return ValidatedContent{}, err
	}

	otelhelper.RecordIssues(span, len(result.Issues))

	return result, nil
}

func (v *Validator) prepareAndValidate(ctx context.Context, cmd Command) (ValidatedContent, error) {
	aggregations, err := payload.ExtractAll(cmd.ControlValues)
	if err != nil {
		return ValidatedContent{}, err
	}

	valid, illegal := partition(aggregations, cmd.VariableSchema)

	defaults := payload.FromAggregations(valid, cmd.PreviewPayload)

	finalPayload, err := controlvalue.Merge(defaults.PreviewPayload, cmd.PreviewPayload)
	if err != nil {
		return ValidatedContent{}, err
	}

	userValues := v.removeEmptyStrings(ctx, controlvalue.CloneMap(cmd.ControlValues), "")

	controls, err := controlvalue.Merge(schema.ExtractDefaultValues(cmd.ControlDataSchema), userValues)
	if err != nil {
		return ValidatedContent{}, err
	}

	flat := controlvalue.Flatten(controls)
	illegalIssues := v.stripIllegalPlaceholders(ctx, flat, illegal)
	urlIssues := v.sanitizeURLs(ctx, flat)
	finalControls := controlvalue.Unflatten(flat)

	schemaIssues, err := v.enforceSchema(cmd.ControlDataSchema, finalControls)
	if err != nil {
		return ValidatedContent{}, err
	}

	tierIssues := models.ContentIssues{}
	if v.tier != nil {
		tierIssues = v.tier.Validate(ctx, cmd.StepType, cmd.Tier, finalControls)
	}

	issues, err := models.MergeIssues(defaults.Issues, illegalIssues, urlIssues, schemaIssues, tierIssues)
	if err != nil {
		return ValidatedContent{}, err
	}

	return ValidatedContent{
		FinalPayload:       finalPayload,
		FinalControlValues: finalControls,
		Issues:             issues,
	}, nil
}

type illegalPlaceholder struct {
	path    string
	matches []string
	message string // Liquid error; empty when the schema does not declare path
}

// partition splits every control key's placeholders into the ones the
// variable schema declares and the illegal ones. A nil schema accepts all.
// Tags Liquid rejected are always illegal.
func partition(aggregations map[string]placeholder.Aggregation, variables *models.JSONSchema) (map[string]placeholder.Aggregation, map[string][]illegalPlaceholder) {
	valid := make(map[string]placeholder.Aggregation, len(aggregations))
	illegal := map[string][]illegalPlaceholder{}

	for key, aggregation := range aggregations {
		accepted := placeholder.NewAggregation()

		split := func(placeholders map[string]string, inLoop bool) {
			for _, path := range controlvalue.SortedKeys(placeholders) {
				if variables == nil || schema.ContainsPath(variables, path) {
					accepted.Add(path, placeholders[path], "", inLoop)

					continue
				}

				illegal[key] = append(illegal[key], illegalPlaceholder{path: path, matches: aggregation.Matches[path]})
			}
		}

		split(aggregation.RegularPlaceholdersToDefaultValue, false)
		split(aggregation.NestedForPlaceholders, true)

		for _, invalid := range aggregation.Invalid {
			p := illegalPlaceholder{path: invalid.Expression, message: invalid.Message}
			if invalid.Raw != "" {
				p.matches = []string{invalid.Raw}
			}

			illegal[key] = append(illegal[key], p)
		}

		valid[key] = accepted
	}

	return valid, illegal
}

func (v *Validator) removeEmptyStrings(ctx context.Context, values map[string]any, prefix string) map[string]any {
	for key, value := range values {
		path := joinPath(prefix, key)

		switch typed := value.(type) {
		case string:
			if typed == "" {
				v.logger.DebugContext(ctx, "dropping empty control value", "key", path)
				delete(values, key)
			}
		case map[string]any:
			values[key] = v.removeEmptyStrings(ctx, typed, path)
		case []any:
			values[key] = v.removeEmptyItems(ctx, typed, path)
		}
	}

	return values
}

func (v *Validator) removeEmptyItems(ctx context.Context, items []any, prefix string) []any {
	kept := make([]any, 0, len(items))

	for i, item := range items {
		path := fmt.Sprintf("%s.%d", prefix, i)

		switch typed := item.(type) {
		case string:
			if typed == "" {
				v.logger.DebugContext(ctx, "dropping empty control value", "key", path)

				continue
			}
		case map[string]any:
			item = v.removeEmptyStrings(ctx, typed, path)
		case []any:
			item = v.removeEmptyItems(ctx, typed, path)
		}

		kept = append(kept, item)
	}

	return kept
}

func (v *Validator) stripIllegalPlaceholders(ctx context.Context, flat map[string]any, illegal map[string][]illegalPlaceholder) models.ContentIssues {
	issues := models.ContentIssues{}

	for _, key := range controlvalue.SortedKeys(illegal) {
		placeholders := illegal[key]

		for _, p := range placeholders {
			message := fmt.Sprintf("Variable %s is not supported", p.path)
			if p.message != "" {
				message = fmt.Sprintf("Invalid Liquid output tag %s: %s", p.path, p.message)
			}

			issues.Add(key, models.ContentIssue{
				IssueType:    models.IssueTypeIllegalVariable,
				Message:      message,
				VariableName: p.path,
			})
		}

		value, ok := flat[key].(string)
		if !ok {
			continue
		}

		v.logger.DebugContext(ctx, "stripping illegal placeholders", "key", key, "count", len(placeholders))

		stripped := stripPlaceholders(value, placeholders)
		if stripped == "" {
			delete(flat, key)

			continue
		}

		flat[key] = stripped
	}

	return issues
}

func stripPlaceholders(value string, placeholders []illegalPlaceholder) string {
	var raws []string

	paths := map[string]bool{}

	for _, p := range placeholders {
		paths[p.path] = true
		raws = append(raws, p.matches...)
	}

	removeRaw := func(text string) string {
		original := text
		for _, raw := range raws {
			text = regexp.MustCompile(`[ \t]*` + regexp.QuoteMeta(raw)).ReplaceAllString(text, "")
		}

		if text == original {
			return text
		}

		return strings.TrimSpace(text)
	}

	doc, ok := maily.Parse(value)
	if !ok {
		return removeRaw(value)
	}

	cleaned := maily.RemoveVariables(doc, func(name string) bool {
		return paths[name] || paths[template.VariablePath(name)]
	})
	cleaned = maily.MapTexts(cleaned, removeRaw)

	serialized, err := maily.Serialize(cleaned)
	if err != nil {
		return value
	}

	return serialized
}

func (v *Validator) sanitizeURLs(ctx context.Context, flat map[string]any) models.ContentIssues {
	issues := models.ContentIssues{}

	for _, key := range controlvalue.SortedKeys(flat) {
		if !strings.Contains(strings.ToLower(key), "url") {
			continue
		}

		value, ok := flat[key].(string)
		if !ok || IsValidURL(value) {
			continue
		}

		v.logger.DebugContext(ctx, "replacing invalid url", "key", key)

		flat[key] = InvalidURLPlaceholder
		issues.Add(key, models.ContentIssue{
			IssueType: models.IssueTypeInvalidURL,
			Message:   fmt.Sprintf("Invalid URL: %s. It must be an absolute URL or a path starting with /", value),
		})
	}

	return issues
}

// IsValidURL accepts absolute http(s) URLs, paths starting with "/", and
// values holding a Liquid placeholder.
func IsValidURL(value string) bool {
	trimmed := strings.TrimSpace(value)

	switch {
	case strings.Contains(trimmed, "{{"):
		return true
	case strings.HasPrefix(trimmed, "/"):
		return true
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return false
	}

	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// enforceSchema validates controls against the control schema. Missing
// required values are reported and filled with a zero value of their type,
// other violations are reported as type mismatches.
func (v *Validator) enforceSchema(controlSchema *models.JSONSchema, controls map[string]any) (models.ContentIssues, error) {
	issues := models.ContentIssues{}
	if controlSchema == nil {
		return issues, nil
	}

	missing := map[string]bool{}

	// Filling a required object can expose required properties below it.
	for range maxSchemaPasses {
		errs, err := schema.Validate(controlSchema, controls)
		if err != nil {
			return nil, err
		}

		filled := false

		for _, validationErr := range errs {
			if validationErr.Type != schema.ErrorTypeRequired {
				continue
			}

			issues.Add(validationErr.Path, models.ContentIssue{
				IssueType: models.IssueTypeMissingValue,
				Message:   "Value is missing on a required control",
			})

			controlvalue.SetPath(controls, validationErr.Path, zeroValue(propertySchema(controlSchema, validationErr.Path)))
			missing[validationErr.Path] = true
			filled = true
		}

		if !filled {
			for _, validationErr := range errs {
				if validationErr.Type == schema.ErrorTypeAdditionalProperties || validationErr.Path == "" || missing[validationErr.Path] {
					continue
				}

				issues.Add(validationErr.Path, models.ContentIssue{
					IssueType: models.IssueTypeVariableTypeMismatch,
					Message:   validationErr.Message,
				})
			}

			return issues, nil
		}
	}

	return issues, nil
}

const maxSchemaPasses = 8

func propertySchema(s *models.JSONSchema, path string) *models.JSONSchema {
	current := s

	for _, segment := range controlvalue.SplitPath(path) {
		if current == nil {
			return nil
		}

		if current.Type == "array" {
			current = current.Items

			continue
		}

		current = current.Properties[segment]
	}

	return current
}

func zeroValue(s *models.JSONSchema) any {
	if s == nil {
		return ""
	}

	if s.Default != nil {
		return controlvalue.Clone(s.Default)
	}

	switch s.Type {
	case "number", "integer":
		return 0.0
	case "boolean":
		return false
	case "array":
		return []any{}
	case "object":
		object := map[string]any{}
		for _, name := range s.Required {
			object[name] = zeroValue(s.Properties[name])
		}

		return object
	default:
		return ""
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}

	return prefix + "." + key
}
