package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks span as failed. attrs are attached to the error event.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}

// RecordIssues tags span with the number of content issues found. The span
// status is left untouched.
func RecordIssues(span trace.Span, count int) {
	span.SetAttributes(attribute.Int(IssueCountKey, count))

	if count > 0 {
		span.AddEvent("issues_found", trace.WithAttributes(attribute.Int(IssueCountKey, count)))
	}
}
