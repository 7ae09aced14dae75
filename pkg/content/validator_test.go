package content

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/otelhelper"
	"github.com/dukex/notiflow/pkg/placeholder"
	"github.com/dukex/notiflow/pkg/schema"
)

func newTestValidator() *Validator {
	return NewValidator(slog.New(slog.DiscardHandler), otelhelper.NoopTracer(), NewPlanTierValidator())
}

// command builds a single step workflow whose payload schema is inferred
// from the controls, as done for workflows without an explicit schema.
func command(t *testing.T, stepType models.StepType, controls map[string]any) Command {
	t.Helper()

	wf := &models.Workflow{Steps: []*models.Step{{ID: "step-1", StepID: "step", Type: stepType}}}

	payloadSchema, err := schema.BuildPayloadSchema(controls)
	require.NoError(t, err)

	variables, err := schema.BuildVariableSchema(wf, "step-1", payloadSchema)
	require.NoError(t, err)

	return Command{
		ControlValues:     controls,
		ControlDataSchema: schema.ControlSchemaFor(stepType),
		VariableSchema:    variables,
		StepType:          stepType,
		Tier:              models.TierFree,
	}
}

func issueTypes(issues []models.ContentIssue) []models.IssueType {
	types := make([]models.IssueType, 0, len(issues))
	for _, issue := range issues {
		types = append(types, issue.IssueType)
	}

	return types
}

func TestPrepareAndValidate_MissingVariableInPayload(t *testing.T) {
	t.Parallel()

	result, err := newTestValidator().PrepareAndValidate(context.Background(),
		command(t, models.StepTypeSMS, map[string]any{"body": "Hello {{payload.firstName}}"}))
	require.NoError(t, err)

	require.Len(t, result.Issues, 1)
	require.Len(t, result.Issues["body"], 1)
	assert.Equal(t, models.IssueTypeMissingVariableInPayload, result.Issues["body"][0].IssueType)
	assert.Equal(t, "payload.firstName", result.Issues["body"][0].VariableName)

	assert.Equal(t, map[string]any{"payload": map[string]any{"firstName": "{{payload.firstName}}"}}, result.FinalPayload)
	assert.Equal(t, "Hello {{payload.firstName}}", result.FinalControlValues["body"])
}

func TestPrepareAndValidate_UnsupportedNamespaceIsIgnored(t *testing.T) {
	t.Parallel()

	result, err := newTestValidator().PrepareAndValidate(context.Background(),
		command(t, models.StepTypeSMS, map[string]any{"body": "{{actor.id}}"}))
	require.NoError(t, err)

	assert.Empty(t, result.Issues)
	assert.Empty(t, result.FinalPayload)
	assert.Equal(t, "{{actor.id}}", result.FinalControlValues["body"])
}

func TestPrepareAndValidate_InvalidURL(t *testing.T) {
	t.Parallel()

	result, err := newTestValidator().PrepareAndValidate(context.Background(),
		command(t, models.StepTypeCustom, map[string]any{"redirectUrl": "not-a-url"}))
	require.NoError(t, err)

	assert.Equal(t, InvalidURLPlaceholder, result.FinalControlValues["redirectUrl"])
	require.Len(t, result.Issues, 1)
	assert.Equal(t, []models.IssueType{models.IssueTypeInvalidURL}, issueTypes(result.Issues["redirectUrl"]))
}

func TestIsValidURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value string
		want  bool
	}{
		{"https://example.com/path", true},
		{"http://localhost:3000", true},
		{"/relative/path", true},
		{"{{payload.link}}", true},
		{"https://{{payload.domain}}/x", true},
		{"not-a-url", false},
		{"ftp://example.com", false},
		{"https://", false},
		{"mailto:someone@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsValidURL(tt.value))
		})
	}
}

func TestPrepareAndValidate_StripsIllegalVariables(t *testing.T) {
	t.Parallel()

	result, err := newTestValidator().PrepareAndValidate(context.Background(),
		command(t, models.StepTypeSMS, map[string]any{"body": "Hi {{subscriber.data.plan}} there"}))
	require.NoError(t, err)

	assert.Equal(t, "Hi there", result.FinalControlValues["body"])
	require.Len(t, result.Issues["body"], 1)
	assert.Equal(t, models.IssueTypeIllegalVariable, result.Issues["body"][0].IssueType)
	assert.Equal(t, "subscriber.data.plan", result.Issues["body"][0].VariableName)
	assert.NotContains(t, result.FinalPayload, "subscriber")
}

func TestPrepareAndValidate_IllegalOnlyValueBecomesMissing(t *testing.T) {
	t.Parallel()

	result, err := newTestValidator().PrepareAndValidate(context.Background(),
		command(t, models.StepTypeSMS, map[string]any{"body": "{{steps.unknown.value}}"}))
	require.NoError(t, err)

	assert.Equal(t, "", result.FinalControlValues["body"])
	assert.Equal(t,
		[]models.IssueType{models.IssueTypeIllegalVariable, models.IssueTypeMissingValue},
		issueTypes(result.Issues["body"]))
}

func TestPrepareAndValidate_StripsIllegalMailyVariables(t *testing.T) {
	t.Parallel()

	body := `{"type":"doc","content":[{"type":"paragraph","content":[
		{"type":"text","text":"Hi "},
		{"type":"variable","attrs":{"id":"subscriber.firstName"}},
		{"type":"variable","attrs":{"id":"subscriber.data.plan"}}
	]}]}`

	cmd := command(t, models.StepTypeEmail, map[string]any{"subject": "Welcome", "body": body})
	cmd.PreviewPayload = map[string]any{"subscriber": map[string]any{"firstName": "Ann"}}

	result, err := newTestValidator().PrepareAndValidate(context.Background(), cmd)
	require.NoError(t, err)

	finalBody, ok := result.FinalControlValues["body"].(string)
	require.True(t, ok)
	assert.Contains(t, finalBody, "subscriber.firstName")
	assert.NotContains(t, finalBody, "subscriber.data.plan")
	assert.Equal(t, "block", result.FinalControlValues["editorType"])

	require.Len(t, result.Issues, 1)
	assert.Equal(t, []models.IssueType{models.IssueTypeIllegalVariable}, issueTypes(result.Issues["body"]))
}

func TestPrepareAndValidate_RequiredValuesAreAlwaysPresent(t *testing.T) {
	t.Parallel()

	result, err := newTestValidator().PrepareAndValidate(context.Background(),
		command(t, models.StepTypeInApp, map[string]any{"body": ""}))
	require.NoError(t, err)

	assert.Equal(t, "", result.FinalControlValues["body"])
	assert.Equal(t, []models.IssueType{models.IssueTypeMissingValue}, issueTypes(result.Issues["body"]))
	assert.Len(t, result.Issues, 1)
}

func TestPrepareAndValidate_NestedRequiredValues(t *testing.T) {
	t.Parallel()

	result, err := newTestValidator().PrepareAndValidate(context.Background(),
		command(t, models.StepTypeInApp, map[string]any{
			"body": "You have a new message",
			"primaryAction": map[string]any{
				"redirect": map[string]any{"url": "https://example.com"},
			},
		}))
	require.NoError(t, err)

	action := result.FinalControlValues["primaryAction"].(map[string]any)
	assert.Equal(t, "", action["label"])
	assert.Equal(t, []models.IssueType{models.IssueTypeMissingValue}, issueTypes(result.Issues["primaryAction.label"]))
}

func TestPrepareAndValidate_RequiredObjectIsSynthesized(t *testing.T) {
	t.Parallel()

	cmd := command(t, models.StepTypeCustom, map[string]any{})
	cmd.ControlDataSchema = &models.JSONSchema{
		Type:     "object",
		Required: []string{"cta", "count"},
		Properties: map[string]*models.JSONSchema{
			"cta": {
				Type:       "object",
				Required:   []string{"label"},
				Properties: map[string]*models.JSONSchema{"label": {Type: "string"}},
			},
			"count": {Type: "number"},
		},
	}

	result, err := newTestValidator().PrepareAndValidate(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"cta": map[string]any{"label": ""}, "count": 0.0}, result.FinalControlValues)
	assert.Len(t, result.Issues["cta"], 1)
	assert.Len(t, result.Issues["count"], 1)
}

func TestPrepareAndValidate_TypeMismatch(t *testing.T) {
	t.Parallel()

	result, err := newTestValidator().PrepareAndValidate(context.Background(),
		command(t, models.StepTypeDelay, map[string]any{"type": "regular", "amount": "ten", "unit": "days"}))
	require.NoError(t, err)

	require.Len(t, result.Issues, 1)
	assert.Equal(t, []models.IssueType{models.IssueTypeVariableTypeMismatch}, issueTypes(result.Issues["amount"]))
}

func TestPrepareAndValidate_TierLimit(t *testing.T) {
	t.Parallel()

	controls := map[string]any{"type": "regular", "amount": 40.0, "unit": "days"}

	result, err := newTestValidator().PrepareAndValidate(context.Background(), command(t, models.StepTypeDelay, controls))
	require.NoError(t, err)

	assert.Equal(t, []models.IssueType{models.IssueTypeTierLimitExceeded}, issueTypes(result.Issues["amount"]))
	assert.Equal(t, []models.IssueType{models.IssueTypeTierLimitExceeded}, issueTypes(result.Issues["unit"]))

	cmd := command(t, models.StepTypeDelay, controls)
	cmd.Tier = models.TierPro

	result, err = newTestValidator().PrepareAndValidate(context.Background(), cmd)
	require.NoError(t, err)
	assert.Empty(t, result.Issues)
}

func TestPrepareAndValidate_CallerPayloadWins(t *testing.T) {
	t.Parallel()

	cmd := command(t, models.StepTypeSMS, map[string]any{"body": "{{payload.name}} / {{payload.city}}"})
	cmd.PreviewPayload = map[string]any{"payload": map[string]any{"name": "Ann"}}

	result, err := newTestValidator().PrepareAndValidate(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"name": "Ann", "city": "{{payload.city}}"}, result.FinalPayload["payload"])
	require.Len(t, result.Issues["body"], 1)
	assert.Equal(t, "payload.city", result.Issues["body"][0].VariableName)
	assert.Equal(t, map[string]any{"name": "Ann"}, cmd.PreviewPayload["payload"], "input payload must not be modified")
}

func TestPrepareAndValidate_IssueMergeOrder(t *testing.T) {
	t.Parallel()

	cmd := command(t, models.StepTypeCustom, map[string]any{"link": "{{payload.path}} {{subscriber.data.x}}"})

	result, err := newTestValidator().PrepareAndValidate(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t,
		[]models.IssueType{models.IssueTypeMissingVariableInPayload, models.IssueTypeIllegalVariable},
		issueTypes(result.Issues["link"]))
}

func TestPrepareAndValidate_NonPrimitiveFails(t *testing.T) {
	t.Parallel()

	cmd := command(t, models.StepTypeCustom, map[string]any{})
	cmd.ControlValues = map[string]any{"body": struct{ Value string }{"x"}}

	_, err := newTestValidator().PrepareAndValidate(context.Background(), cmd)
	require.Error(t, err)
	assert.True(t, errors.Is(err, placeholder.ErrPayloadDefaultsEngineFailure))
}

func TestPlanTierValidator(t *testing.T) {
	t.Parallel()

	validator := NewPlanTierValidator()

	tests := []struct {
		name     string
		stepType models.StepType
		tier     models.Tier
		controls map[string]any
		exceeded bool
	}{
		{"free within limit", models.StepTypeDelay, models.TierFree, map[string]any{"amount": 30.0, "unit": "days"}, false},
		{"free over limit", models.StepTypeDigest, models.TierFree, map[string]any{"amount": 5.0, "unit": "weeks"}, true},
		{"business one year", models.StepTypeDelay, models.TierBusiness, map[string]any{"amount": 12.0, "unit": "months"}, false},
		{"unknown tier uses free", models.StepTypeDelay, models.Tier("legacy"), map[string]any{"amount": 31.0, "unit": "days"}, true},
		{"other step types", models.StepTypeEmail, models.TierFree, map[string]any{"amount": 900.0, "unit": "days"}, false},
		{"missing unit", models.StepTypeDelay, models.TierFree, map[string]any{"amount": 900.0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			issues := validator.Validate(context.Background(), tt.stepType, tt.tier, tt.controls)
			assert.Equal(t, tt.exceeded, len(issues) > 0)
		})
	}
}

func TestPrepareAndValidate_BrokenLiquidTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"dangling pipe", "Hello {{ payload.name | }}"},
		{"filter without argument", "Hello {{ payload.name | upcase: }}"},
		{"unknown filter", "Hello {{ payload.name | nosuchfilter }}"},
		{"text after variable", "Hello {{ payload.name ) }}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd := command(t, models.StepTypeSMS, map[string]any{"body": tt.body})
			cmd.PreviewPayload = map[string]any{"payload": map[string]any{"name": "Ann"}}

			result, err := newTestValidator().PrepareAndValidate(context.Background(), cmd)
			require.NoError(t, err)

			require.Len(t, result.Issues, 1)
			require.Equal(t, []models.IssueType{models.IssueTypeIllegalVariable}, issueTypes(result.Issues["body"]))
			assert.NotEmpty(t, result.Issues["body"][0].Message)
			assert.Equal(t, "Hello", result.FinalControlValues["body"])
			assert.Equal(t, map[string]any{"payload": map[string]any{"name": "Ann"}}, result.FinalPayload)
		})
	}
}

func TestPrepareAndValidate_KnownFiltersAreAccepted(t *testing.T) {
	t.Parallel()

	cmd := command(t, models.StepTypeSMS, map[string]any{
		"body": `{{ payload.name | upcase | append: "!" }} {{ payload.city | default: "Paris" }}`,
	})
	cmd.PreviewPayload = map[string]any{"payload": map[string]any{"name": "Ann", "city": "Rome"}}

	result, err := newTestValidator().PrepareAndValidate(context.Background(), cmd)
	require.NoError(t, err)

	assert.Empty(t, result.Issues)
}

func TestPrepareAndValidate_BrokenMailyVariable(t *testing.T) {
	t.Parallel()

	body := `{"type":"doc","content":[{"type":"paragraph","content":[
		{"type":"text","text":"Hi "},
		{"type":"variable","attrs":{"id":"payload.name | nosuchfilter"}}
	]}]}`

	cmd := command(t, models.StepTypeEmail, map[string]any{"subject": "Welcome", "body": body})

	result, err := newTestValidator().PrepareAndValidate(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, []models.IssueType{models.IssueTypeIllegalVariable}, issueTypes(result.Issues["body"]))
	assert.Equal(t, "payload.name | nosuchfilter", result.Issues["body"][0].VariableName)
	assert.NotContains(t, result.FinalControlValues["body"], "nosuchfilter")
}

func TestPrepareAndValidate_EmptyStringsInArraysAreDropped(t *testing.T) {
	t.Parallel()

	cmd := command(t, models.StepTypeCustom, map[string]any{
		"tags": []any{"a", "", map[string]any{"label": "", "value": "x"}, []any{"", "b"}},
	})

	result, err := newTestValidator().PrepareAndValidate(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, []any{"a", map[string]any{"value": "x"}, []any{"b"}}, result.FinalControlValues["tags"])
	assert.Empty(t, result.Issues)
}
