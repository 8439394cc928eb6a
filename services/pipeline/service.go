// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/pipelinecheck/pkg/logging"
	"github.com/AleutianAI/pipelinecheck/services/pipeline/config"
	"github.com/AleutianAI/pipelinecheck/services/pipeline/dag"
	"github.com/AleutianAI/pipelinecheck/services/pipeline/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName is the instrumentation scope for spans created here.
const TracerName = "github.com/AleutianAI/pipelinecheck/services/pipeline"

// Service runs pipeline analyses for every transport.
//
// # Thread Safety
//
// Safe for concurrent use. A Service holds no per-request state.
type Service struct {
	policy  config.DuplicatePolicy
	tracer  trace.Tracer
	metrics *telemetry.Metrics
	logger  *logging.Logger

	// analyze is dag.Analyze outside of tests.
	analyze func([]string, []dag.Edge) dag.Analysis
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithDuplicatePolicy sets how repeated node ids are handled.
func WithDuplicatePolicy(p config.DuplicatePolicy) ServiceOption {
	return func(s *Service) { s.policy = p }
}

// WithTracer sets the tracer used for analysis spans.
func WithTracer(t trace.Tracer) ServiceOption {
	return func(s *Service) { s.tracer = t }
}

// WithMetrics sets the instruments analyses are recorded on.
func WithMetrics(m *telemetry.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(l *logging.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service.
//
// Defaults: reject duplicate ids, no-op tracer, no metrics, default logger.
func NewService(opts ...ServiceOption) *Service {
	s := &Service{
		policy:  config.DuplicateReject,
		tracer:  noop.NewTracerProvider().Tracer(TracerName),
		analyze: dag.Analyze,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	return s
}

// Analyze validates a decoded pipeline and reports whether it is a DAG.
//
// # Description
//
// Extracts node ids and edge endpoints from req, applies the duplicate-id
// policy and runs cycle detection. Counts in the response are the raw list
// lengths. A panic during analysis, or a context that is already done, is
// reported as an internal error rather than crashing the request.
//
// # Inputs
//
//   - ctx: Request context. Checked once before analysis starts.
//   - req: Decoded request. Must have passed schema validation.
//   - detail: Include AnalysisDetail in the response.
//
// # Outputs
//
//   - *PipelineResponse: Non-nil on success.
//   - *RequestError: Non-nil on failure; the response is then nil.
//
// # Examples
//
//	req, rerr := DecodePipeline(body)
//	if rerr == nil {
//	    resp, rerr = svc.Analyze(ctx, req, false)
//	}
//
// # Limitations
//
//   - Cancellation is not observed while cycle detection runs; the
//     algorithm is linear in the input size.
func (s *Service) Analyze(ctx context.Context, req *PipelineRequest, detail bool) (resp *PipelineResponse, rerr *RequestError) {
	ctx, span := s.tracer.Start(ctx, "pipeline.Analyze")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			resp = nil
			rerr = internalError(fmt.Errorf("panic: %v", r))
		}
		if rerr != nil {
			outcome := telemetry.OutcomeRejected
			if rerr.Kind == KindInternal {
				outcome = telemetry.OutcomeFailed
			}
			s.metrics.RecordOutcome(ctx, outcome)
			telemetry.RecordError(span, rerr.Err, attribute.String("error.code", rerr.Code))
		}
	}()

	if req == nil {
		return nil, schemaError(CodeInvalidRequest, ErrInvalidPipeline, "request body is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, internalError(err)
	}

	span.SetAttributes(
		attribute.Int("pipeline.nodes", len(req.Nodes)),
		attribute.Int("pipeline.edges", len(req.Edges)),
	)

	ids := make([]string, len(req.Nodes))
	for i, n := range req.Nodes {
		ids[i] = value(n.ID)
	}
	edges := make([]dag.Edge, len(req.Edges))
	for i, e := range req.Edges {
		edges[i] = dag.Edge{Source: value(e.Source), Target: value(e.Target)}
	}

	start := time.Now()
	a := s.analyze(ids, edges)
	elapsed := time.Since(start)

	if len(a.DuplicateIDs) > 0 && s.policy != config.DuplicateMerge {
		return nil, schemaError(CodeDuplicateNodeID, ErrDuplicateNodeID,
			"duplicate node ids: "+strings.Join(a.DuplicateIDs, ", "))
	}

	resp = &PipelineResponse{
		NumNodes: a.NodeCount,
		NumEdges: a.EdgeCount,
		IsDAG:    a.IsDAG,
	}
	if detail {
		resp.Analysis = buildDetail(a, req.Edges)
	}

	outcome := telemetry.OutcomeDAG
	if !a.IsDAG {
		outcome = telemetry.OutcomeCyclic
	}
	s.metrics.RecordAnalysis(ctx, outcome, a.NodeCount, a.EdgeCount, len(a.DanglingEdges), elapsed)
	span.SetAttributes(
		attribute.Bool("pipeline.is_dag", a.IsDAG),
		attribute.Int("pipeline.dangling_edges", len(a.DanglingEdges)),
	)
	telemetry.SetSpanOK(span)

	s.logger.Slog().DebugContext(ctx, "pipeline analyzed",
		"nodes", a.NodeCount,
		"edges", a.EdgeCount,
		"is_dag", a.IsDAG,
		"dangling_edges", len(a.DanglingEdges),
		"duration_us", elapsed.Microseconds(),
	)
	return resp, nil
}

func buildDetail(a dag.Analysis, edges []Edge) *AnalysisDetail {
	d := &AnalysisDetail{
		TopologicalOrder: nonNil(a.Order),
		CyclicNodes:      nonNil(a.Cyclic),
		DanglingEdges:    make([]string, 0, len(a.DanglingEdges)),
		DuplicateNodeIDs: nonNil(a.DuplicateIDs),
	}
	for _, i := range a.DanglingEdges {
		d.DanglingEdges = append(d.DanglingEdges, value(edges[i].ID))
	}
	return d
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
