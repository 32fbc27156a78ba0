// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires the OTel SDK for hosts embedding the pipeline.
// The library packages only use the otel API; nothing exports until a host
// calls Setup (or installs its own provider).
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// DefaultServiceName labels spans when the host does not name itself.
const DefaultServiceName = "loom"

// Options configures the trace pipeline.
type Options struct {
	// ServiceName is the service.name resource attribute.
	// Defaults to "loom".
	ServiceName string

	// Endpoint is the OTLP/gRPC collector endpoint (host:port). Empty
	// uses the exporter's default, localhost:4317. Ignored when Stdout
	// is set.
	Endpoint string

	// Stdout switches to the pretty-printing stdout exporter, for
	// development without a collector.
	Stdout bool
}

// Setup installs a global tracer provider and W3C propagation.
//
// Description:
//
//	Builds an OTLP/gRPC or stdout span exporter, wraps it in a batching
//	tracer provider carrying the service resource attributes, and
//	registers it globally together with tracecontext+baggage
//	propagation.
//
// Inputs:
//
//	ctx - Used for exporter construction.
//	opts - Exporter selection and service identity.
//
// Outputs:
//
//	func(context.Context) error - Shutdown hook; flushes and stops the
//	provider. Call it on host exit.
//	error - Non-nil if the exporter cannot be built.
func Setup(ctx context.Context, opts Options) (func(context.Context) error, error) {
	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	exporter, err := newExporter(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("building span exporter: %w", err)
	}

	res := sdkresource.NewSchemaless(
		attribute.String("service.name", serviceName),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, opts Options) (sdktrace.SpanExporter, error) {
	if opts.Stdout {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}

	grpcOpts := []otlptracegrpc.Option{
		// Local collectors run plaintext; hosts needing TLS front the
		// collector with their own ingress.
		otlptracegrpc.WithInsecure(),
	}
	if opts.Endpoint != "" {
		grpcOpts = append(grpcOpts, otlptracegrpc.WithEndpoint(opts.Endpoint))
	}
	return otlptracegrpc.New(ctx, grpcOpts...)
}
