// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry integration and trace-aware
// logging for the guardrail pipeline.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config selects the exporter pair for guardrail telemetry. Exporter is
// "stdout" (the default) or "otlp"; the OTLP fields apply only to the
// latter.
type Config struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

// Telemetry bundles the initialized providers with the pipeline metric
// instruments, so a guarded deployment wires observability in one step.
type Telemetry struct {
	// Metrics holds the check/tripwire/stage instruments consumed by the
	// guardrail pipeline.
	Metrics *PipelineMetrics

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// Init wires the OpenTelemetry SDK for a guarded deployment: the service
// identity under the railguard namespace on every span and metric, the
// configured exporter pair, W3C propagation, and the pipeline instruments.
func Init(serviceName, version string, cfg Config) (*Telemetry, error) {
	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
		semconv.ServiceNamespace("railguard"),
	)

	spanExporter, metricExporter, err := buildExporters(cfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter, sdktrace.WithBatchTimeout(time.Second)),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(time.Minute))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metrics, err := NewPipelineMetrics()
	if err != nil {
		shutdownCtx := context.Background()
		return nil, errors.Join(err, tp.Shutdown(shutdownCtx), mp.Shutdown(shutdownCtx))
	}

	return &Telemetry{
		Metrics:        metrics,
		tracerProvider: tp,
		meterProvider:  mp,
	}, nil
}

// Shutdown flushes pending spans and metrics. Safe on a nil receiver.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return errors.Join(
		t.tracerProvider.Shutdown(ctx),
		t.meterProvider.Shutdown(ctx),
	)
}

func buildExporters(cfg Config) (sdktrace.SpanExporter, sdkmetric.Exporter, error) {
	switch cfg.Exporter {
	case "", "stdout":
		spanExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("stdout trace exporter: %w", err)
		}
		metricExporter, err := stdoutmetric.New()
		if err != nil {
			return nil, nil, fmt.Errorf("stdout metric exporter: %w", err)
		}
		return spanExporter, metricExporter, nil

	case "otlp":
		if cfg.OTLPEndpoint == "" {
			return nil, nil, errors.New("telemetry: otlp exporter requires an endpoint")
		}
		traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
			metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		}
		ctx := context.Background()
		spanExporter, err := otlptracegrpc.New(ctx, traceOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("otlp trace exporter: %w", err)
		}
		metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		return spanExporter, metricExporter, nil

	default:
		return nil, nil, fmt.Errorf("telemetry: unknown exporter %q", cfg.Exporter)
	}
}
