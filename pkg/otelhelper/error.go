package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks span as failed with err.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(
		attrs...,
	))
}

// End finishes span, recording *errp when it is set. Meant for defer with a
// named error result.
func End(span trace.Span, errp *error) {
	if errp != nil && *errp != nil {
		SetError(span, *errp)
	}

	span.End()
}
