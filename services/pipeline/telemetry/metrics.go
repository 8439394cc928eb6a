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
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Analysis outcomes recorded on pipeline_analyses_total.
const (
	OutcomeDAG      = "dag"
	OutcomeCyclic   = "cyclic"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Metrics holds every instrument pipelinecheck records.
//
// All names carry the "pipeline_" prefix. The methods are no-ops on a nil
// *Metrics, so callers that run without telemetry pass nil.
//
// # Thread Safety
//
// Safe for concurrent use after creation.
type Metrics struct {
	// --- HTTP ---

	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	// --- Analysis ---

	// AnalysesTotal counts analyses by outcome (dag, cyclic, rejected, failed).
	AnalysesTotal metric.Int64Counter

	AnalysisDuration metric.Float64Histogram

	// GraphNodes and GraphEdges record submitted graph sizes.
	GraphNodes metric.Int64Histogram
	GraphEdges metric.Int64Histogram

	// DanglingEdgesTotal counts edges that referenced undeclared nodes.
	DanglingEdgesTotal metric.Int64Counter

	// --- Errors & Config ---

	// ErrorsTotal counts error responses by code.
	ErrorsTotal metric.Int64Counter

	// ConfigReloadsTotal counts config file reloads by result (ok, error).
	ConfigReloadsTotal metric.Int64Counter
}

var sizeBuckets = []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000}

// NewMetrics creates all instruments on meter.
//
// # Inputs
//
//   - meter: Source meter. A no-op meter yields working no-op instruments.
//
// # Outputs
//
//   - *Metrics: Ready for use.
//   - error: Non-nil if any instrument could not be created.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.HTTPRequestsTotal, err = meter.Int64Counter(
		"pipeline_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("create http_requests_total: %w", err)
	}

	if m.HTTPRequestDuration, err = meter.Float64Histogram(
		"pipeline_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1),
	); err != nil {
		return nil, fmt.Errorf("create http_request_duration: %w", err)
	}

	if m.HTTPActiveRequests, err = meter.Int64UpDownCounter(
		"pipeline_http_active_requests",
		metric.WithDescription("Currently active HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("create http_active_requests: %w", err)
	}

	if m.AnalysesTotal, err = meter.Int64Counter(
		"pipeline_analyses_total",
		metric.WithDescription("Pipeline analyses by outcome"),
		metric.WithUnit("{analysis}"),
	); err != nil {
		return nil, fmt.Errorf("create analyses_total: %w", err)
	}

	if m.AnalysisDuration, err = meter.Float64Histogram(
		"pipeline_analysis_duration_seconds",
		metric.WithDescription("Time spent running cycle detection"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1),
	); err != nil {
		return nil, fmt.Errorf("create analysis_duration: %w", err)
	}

	if m.GraphNodes, err = meter.Int64Histogram(
		"pipeline_graph_nodes",
		metric.WithDescription("Nodes per submitted pipeline"),
		metric.WithUnit("{node}"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...),
	); err != nil {
		return nil, fmt.Errorf("create graph_nodes: %w", err)
	}

	if m.GraphEdges, err = meter.Int64Histogram(
		"pipeline_graph_edges",
		metric.WithDescription("Edges per submitted pipeline"),
		metric.WithUnit("{edge}"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...),
	); err != nil {
		return nil, fmt.Errorf("create graph_edges: %w", err)
	}

	if m.DanglingEdgesTotal, err = meter.Int64Counter(
		"pipeline_dangling_edges_total",
		metric.WithDescription("Edges whose source or target was not declared"),
		metric.WithUnit("{edge}"),
	); err != nil {
		return nil, fmt.Errorf("create dangling_edges_total: %w", err)
	}

	if m.ErrorsTotal, err = meter.Int64Counter(
		"pipeline_errors_total",
		metric.WithDescription("Error responses by code"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, fmt.Errorf("create errors_total: %w", err)
	}

	if m.ConfigReloadsTotal, err = meter.Int64Counter(
		"pipeline_config_reloads_total",
		metric.WithDescription("Config file reloads by result"),
		metric.WithUnit("{reload}"),
	); err != nil {
		return nil, fmt.Errorf("create config_reloads_total: %w", err)
	}

	return m, nil
}

// RecordAnalysis records one completed analysis.
func (m *Metrics) RecordAnalysis(ctx context.Context, outcome string, nodes, edges, dangling int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AnalysesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.AnalysisDuration.Record(ctx, elapsed.Seconds())
	m.GraphNodes.Record(ctx, int64(nodes))
	m.GraphEdges.Record(ctx, int64(edges))
	if dangling > 0 {
		m.DanglingEdgesTotal.Add(ctx, int64(dangling))
	}
}

// RecordOutcome counts an analysis that ended before cycle detection ran.
func (m *Metrics) RecordOutcome(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.AnalysesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordError counts one error response.
func (m *Metrics) RecordError(ctx context.Context, code string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// RecordConfigReload counts one config reload attempt.
func (m *Metrics) RecordConfigReload(ctx context.Context, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ConfigReloadsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
