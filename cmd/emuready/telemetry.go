// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// tracingEnabled reports whether an OTLP endpoint is configured through
// the standard exporter variables.
func tracingEnabled() bool {
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" ||
		os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT") != ""
}

// setupTracing installs an OTLP/HTTP tracer provider when an endpoint is
// configured and returns the function that flushes it. Tracing problems
// never fail the command.
func setupTracing(ctx context.Context, stderr io.Writer) func() {
	if !tracingEnabled() {
		return func() {}
	}
	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "warning: tracing disabled: %v\n", err)
		return func() {}
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", "emuready"),
		attribute.String("service.version", version),
	))
	if err != nil {
		res = resource.Default()
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(stderr, "warning: flushing traces: %v\n", err)
		}
	}
}
