// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package avd

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// The tracer is resolved per span so a provider installed after package
// init (main, tests) is honoured.
func tracer() trace.Tracer { return otel.Tracer("emuready") }

func StartSpan(ctx context.Context, env Env, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if env.CorrelationID != "" {
		attrs = append(attrs, attribute.String("correlation_id", env.CorrelationID))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

func RecordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
