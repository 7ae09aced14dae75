// Package preview renders the content of a step against a sample payload.
package preview

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/microcosm-cc/bluemonday"

	"github.com/dukex/notiflow/pkg/content"
	"github.com/dukex/notiflow/pkg/controlvalue"
	"github.com/dukex/notiflow/pkg/maily"
	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/template"
)

const bodyKey = "body"

// ContentValidator prepares control values before rendering.
type ContentValidator interface {
	PrepareAndValidate(ctx context.Context, cmd content.Command) (content.ValidatedContent, error)
}

// StepPreview is the rendered content of a step.
type StepPreview struct {
	Type    models.StepType `json:"type"`
	Preview map[string]any  `json:"preview"`
}

// Result is the output of Generate.
type Result struct {
	Result                StepPreview          `json:"result"`
	PreviewPayloadExample map[string]any       `json:"previewPayloadExample"`
	Issues                models.ContentIssues `json:"issues"`
}

// Previewer generates step previews.
type Previewer struct {
	validator ContentValidator
	renderer  *template.Renderer
	sanitizer *bluemonday.Policy
	logger    *slog.Logger
}

// NewPreviewer creates a Previewer.
func NewPreviewer(validator ContentValidator, renderer *template.Renderer, logger *slog.Logger) *Previewer {
	return &Previewer{
		validator: validator,
		renderer:  renderer,
		sanitizer: bluemonday.UGCPolicy(),
		logger:    logger.With("module", "preview"),
	}
}

// Generate validates the step content and renders every string control value
// with the final payload. Values that fail to render are kept unrendered and
// reported as illegal variable issues.
func (p *Previewer) Generate(ctx context.Context, cmd content.Command) (Result, error) {
	validated, err := p.validator.PrepareAndValidate(ctx, cmd)
	if err != nil {
		return Result{}, err
	}

	renderIssues := models.ContentIssues{}
	rendered := map[string]any{}

	r := &render{
		ctx:      ctx,
		bindings: validated.FinalPayload,
		issues:   renderIssues,
		html:     cmd.StepType == models.StepTypeEmail,
	}

	for _, key := range controlvalue.SortedKeys(validated.FinalControlValues) {
		rendered[key] = p.renderValue(r, key, validated.FinalControlValues[key])
	}

	issues, err := models.MergeIssues(validated.Issues, renderIssues)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Result:                StepPreview{Type: cmd.StepType, Preview: rendered},
		PreviewPayloadExample: validated.FinalPayload,
		Issues:                issues,
	}, nil
}

type render struct {
	ctx      context.Context
	bindings map[string]any
	issues   models.ContentIssues
	html     bool // The body control holds HTML
}

func (p *Previewer) renderValue(r *render, path string, value any) any {
	switch typed := value.(type) {
	case string:
		return p.renderString(r, path, typed)
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = p.renderValue(r, path+"."+key, item)
		}

		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = p.renderValue(r, fmt.Sprintf("%s.%d", path, i), item)
		}

		return out
	default:
		return value
	}
}

func (p *Previewer) renderString(r *render, path, value string) string {
	source := value
	isHTML := r.html && path == bodyKey

	if doc, ok := maily.Parse(value); ok {
		source = maily.RenderHTML(maily.TransformToLiquid(doc))
		isHTML = true
	}

	out, err := p.renderer.Render(source, r.bindings)
	if err != nil {
		p.logger.DebugContext(r.ctx, "failed to render control value", "key", path, "error", err)

		r.issues.Add(path, models.ContentIssue{
			IssueType: models.IssueTypeIllegalVariable,
			Message:   err.Error(),
		})

		return value
	}

	if isHTML {
		return p.sanitizer.Sanitize(out)
	}

	return out
}
