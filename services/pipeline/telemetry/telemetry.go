// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Exporter names accepted by Config.
const (
	ExporterNone       = "none"
	ExporterStdout     = "stdout"
	ExporterOTLP       = "otlp"
	ExporterPrometheus = "prometheus"
)

// Config controls which exporters Init creates.
type Config struct {
	// ServiceName identifies this process in traces and metrics.
	ServiceName string

	// ServiceVersion is reported as service.version.
	ServiceVersion string

	// Environment is reported as deployment.environment.
	Environment string

	// TraceExporter is "otlp", "stdout" or "none".
	TraceExporter string

	// MetricExporter is "prometheus", "stdout" or "none".
	MetricExporter string

	// OTLPEndpoint is the collector's gRPC host:port.
	OTLPEndpoint string

	// OTLPInsecure disables TLS to the collector.
	OTLPInsecure bool

	// SampleRatio is the fraction of root spans recorded. Parent decisions
	// are always honored.
	SampleRatio float64

	// StdoutWriter receives stdout exporter output. Default: os.Stdout.
	StdoutWriter io.Writer
}

// DefaultConfig returns development defaults with tracing off and
// Prometheus metrics on.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "pipelinecheck",
		ServiceVersion: "dev",
		Environment:    "development",
		TraceExporter:  ExporterNone,
		MetricExporter: ExporterPrometheus,
		OTLPEndpoint:   "localhost:4317",
		OTLPInsecure:   true,
		SampleRatio:    1.0,
	}
}

// Providers holds the tracer and meter providers created by Init.
//
// Components should take their tracer and meter from here rather than the
// otel globals so tests can run several instances side by side.
type Providers struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Propagator     propagation.TextMapPropagator

	metricsHandler http.Handler
	shutdownFuncs  []func(context.Context) error
}

// Init builds tracing and metrics providers from cfg.
//
// # Description
//
// Creates the configured exporters, installs the providers and a W3C
// trace-context propagator as otel globals, and returns them. The
// Prometheus exporter registers on a private registry together with the Go
// runtime and process collectors; MetricsHandler serves that registry.
//
// # Inputs
//
//   - ctx: Used while connecting exporters. Must not be nil.
//   - cfg: Exporter selection. Unknown names fail with ErrUnknownExporter.
//
// # Outputs
//
//   - *Providers: Call Shutdown on exit to flush buffered telemetry.
//   - error: Non-nil if any exporter could not be created. Nothing is
//     left running in that case.
//
// # Thread Safety
//
// Call once at startup.
func Init(ctx context.Context, cfg Config) (*Providers, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	p := &Providers{
		Propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	tp, err := p.initTracer(ctx, cfg, res)
	if err != nil {
		_ = p.Shutdown(context.Background())
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	p.TracerProvider = tp

	mp, err := p.initMeter(cfg, res)
	if err != nil {
		_ = p.Shutdown(context.Background())
		return nil, fmt.Errorf("init meter: %w", err)
	}
	p.MeterProvider = mp

	otel.SetTracerProvider(p.TracerProvider)
	otel.SetMeterProvider(p.MeterProvider)
	otel.SetTextMapPropagator(p.Propagator)

	return p, nil
}

// Tracer returns a named tracer from the configured provider.
func (p *Providers) Tracer(name string) trace.Tracer {
	return p.TracerProvider.Tracer(name)
}

// Meter returns a named meter from the configured provider.
func (p *Providers) Meter(name string) metric.Meter {
	return p.MeterProvider.Meter(name)
}

// MetricsHandler returns the /metrics handler, or nil unless the
// Prometheus exporter is in use.
func (p *Providers) MetricsHandler() http.Handler {
	return p.metricsHandler
}

// Shutdown flushes and stops every exporter. All shutdown steps run even
// if earlier ones fail; their errors are joined.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(p.shutdownFuncs) - 1; i >= 0; i-- {
		if err := p.shutdownFuncs[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.shutdownFuncs = nil
	return errors.Join(errs...)
}

func (p *Providers) initTracer(ctx context.Context, cfg Config, res *resource.Resource) (trace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter

	switch cfg.TraceExporter {
	case ExporterNone, "":
		return tracenoop.NewTracerProvider(), nil

	case ExporterOTLP:
		creds := insecure.NewCredentials()
		if !cfg.OTLPInsecure {
			creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
		}
		conn, err := grpc.NewClient(cfg.OTLPEndpoint, grpc.WithTransportCredentials(creds))
		if err != nil {
			return nil, fmt.Errorf("create gRPC client for %s: %w", cfg.OTLPEndpoint, err)
		}
		p.shutdownFuncs = append(p.shutdownFuncs, func(context.Context) error { return conn.Close() })

		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}

	case ExporterStdout:
		var err error
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(stdoutWriter(cfg)))
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, cfg.TraceExporter)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	p.shutdownFuncs = append(p.shutdownFuncs, tp.Shutdown)
	return tp, nil
}

func (p *Providers) initMeter(cfg Config, res *resource.Resource) (metric.MeterProvider, error) {
	switch cfg.MetricExporter {
	case ExporterNone, "":
		return metricnoop.NewMeterProvider(), nil

	case ExporterPrometheus:
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		exporter, err := promexporter.New(promexporter.WithRegisterer(reg))
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		p.metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})

		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		p.shutdownFuncs = append(p.shutdownFuncs, mp.Shutdown)
		return mp, nil

	case ExporterStdout:
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(stdoutWriter(cfg)))
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		)
		p.shutdownFuncs = append(p.shutdownFuncs, mp.Shutdown)
		return mp, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, cfg.MetricExporter)
	}
}

func stdoutWriter(cfg Config) io.Writer {
	if cfg.StdoutWriter != nil {
		return cfg.StdoutWriter
	}
	return os.Stdout
}
