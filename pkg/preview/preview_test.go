package preview

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukex/notiflow/pkg/content"
	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/otelhelper"
	"github.com/dukex/notiflow/pkg/schema"
	"github.com/dukex/notiflow/pkg/template"
)

type mockValidator struct {
	mock.Mock
}

func (m *mockValidator) PrepareAndValidate(ctx context.Context, cmd content.Command) (content.ValidatedContent, error) {
	args := m.Called(ctx, cmd)

	return args.Get(0).(content.ValidatedContent), args.Error(1)
}

func newTestPreviewer(validator ContentValidator) *Previewer {
	logger := slog.New(slog.DiscardHandler)
	if validator == nil {
		validator = content.NewValidator(logger, otelhelper.NoopTracer(), content.NewPlanTierValidator())
	}

	return NewPreviewer(validator, template.NewRenderer(), logger)
}

func stepCommand(t *testing.T, stepType models.StepType, controls, payload map[string]any) content.Command {
	t.Helper()

	wf := &models.Workflow{Steps: []*models.Step{{ID: "step-1", StepID: "step", Type: stepType}}}

	payloadSchema, err := schema.BuildPayloadSchema(controls)
	require.NoError(t, err)

	variables, err := schema.BuildVariableSchema(wf, "step", payloadSchema)
	require.NoError(t, err)

	return content.Command{
		ControlValues:     controls,
		ControlDataSchema: schema.ControlSchemaFor(stepType),
		VariableSchema:    variables,
		PreviewPayload:    payload,
		StepType:          stepType,
		Tier:              models.TierFree,
	}
}

func TestGenerate_RendersWithPayload(t *testing.T) {
	t.Parallel()

	cmd := stepCommand(t, models.StepTypeSMS,
		map[string]any{"body": "Hello {{payload.name}}"},
		map[string]any{"payload": map[string]any{"name": "Ann"}},
	)

	result, err := newTestPreviewer(nil).Generate(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, models.StepTypeSMS, result.Result.Type)
	assert.Equal(t, "Hello Ann", result.Result.Preview["body"])
	assert.Equal(t, map[string]any{"payload": map[string]any{"name": "Ann"}}, result.PreviewPayloadExample)
	assert.Empty(t, result.Issues)
}

func TestGenerate_RendersNestedControls(t *testing.T) {
	t.Parallel()

	cmd := stepCommand(t, models.StepTypeInApp,
		map[string]any{
			"body": "New order",
			"primaryAction": map[string]any{
				"label":    "View {{payload.orderId}}",
				"redirect": map[string]any{"url": "/orders/{{payload.orderId}}"},
			},
		},
		map[string]any{"payload": map[string]any{"orderId": "42"}},
	)

	result, err := newTestPreviewer(nil).Generate(context.Background(), cmd)
	require.NoError(t, err)

	action := result.Result.Preview["primaryAction"].(map[string]any)
	assert.Equal(t, "View 42", action["label"])
	assert.Equal(t, "/orders/42", action["redirect"].(map[string]any)["url"])
}

func TestGenerate_MailyBodyIsRenderedAndSanitized(t *testing.T) {
	t.Parallel()

	body := `{"type":"doc","content":[{"type":"paragraph","content":[
		{"type":"text","text":"Hi "},
		{"type":"variable","attrs":{"id":"payload.name"}}
	]}]}`

	cmd := stepCommand(t, models.StepTypeEmail,
		map[string]any{"subject": "Welcome {{payload.name}}", "body": body},
		map[string]any{"payload": map[string]any{"name": "<script>alert(1)</script>Ann"}},
	)

	result, err := newTestPreviewer(nil).Generate(context.Background(), cmd)
	require.NoError(t, err)

	html, ok := result.Result.Preview["body"].(string)
	require.True(t, ok)
	assert.Contains(t, html, "<p>Hi ")
	assert.Contains(t, html, "Ann")
	assert.NotContains(t, html, "<script")
}

func TestGenerate_RenderFailureBecomesIssue(t *testing.T) {
	t.Parallel()

	cmd := stepCommand(t, models.StepTypeSMS, map[string]any{"body": "Hi {% if payload.vip %}VIP"}, nil)

	result, err := newTestPreviewer(nil).Generate(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, "Hi {% if payload.vip %}VIP", result.Result.Preview["body"])
	require.Len(t, result.Issues["body"], 1)
	assert.Equal(t, models.IssueTypeIllegalVariable, result.Issues["body"][0].IssueType)
}

func TestGenerate_ValidatorErrorIsReturned(t *testing.T) {
	t.Parallel()

	validator := &mockValidator{}
	validator.On("PrepareAndValidate", mock.Anything, mock.Anything).
		Return(content.ValidatedContent{}, errors.New("boom"))

	_, err := newTestPreviewer(validator).Generate(context.Background(), content.Command{StepType: models.StepTypeSMS})
	require.EqualError(t, err, "boom")
	validator.AssertExpectations(t)
}
