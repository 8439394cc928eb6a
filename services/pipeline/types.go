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

// ServiceVersion is reported by GET /health and `pipelinecheck version`.
const ServiceVersion = "1.0.0"

// DefaultEdgeType is applied to edges submitted without a type.
const DefaultEdgeType = "smoothstep"

// =============================================================================
// Request Types
// =============================================================================

// Node is one step of a pipeline as drawn in the editor.
//
// Only ID takes part in analysis. Type, Position and Data are required so
// the payload matches the editor's schema, but their contents are opaque.
//
// Required strings are pointers so that a missing key fails validation while
// an empty string is accepted like any other value.
type Node struct {
	ID       *string            `json:"id" binding:"required"`
	Type     *string            `json:"type" binding:"required"`
	Position map[string]float64 `json:"position" binding:"required"`
	Data     map[string]any     `json:"data" binding:"required"`
}

// Edge connects the output of Source to the input of Target.
//
// An endpoint naming no declared node, the empty string included, makes the
// edge dangling; it is ignored by cycle detection.
type Edge struct {
	ID     *string `json:"id" binding:"required"`
	Source *string `json:"source" binding:"required"`
	Target *string `json:"target" binding:"required"`

	// Type is cosmetic. Defaults to DefaultEdgeType.
	Type string `json:"type,omitempty"`
}

// PipelineRequest is the body of POST /pipelines/parse.
//
// Both lists must be present; either may be empty.
type PipelineRequest struct {
	Nodes []Node `json:"nodes" binding:"required,dive"`
	Edges []Edge `json:"edges" binding:"required,dive"`
}

// applyDefaults fills optional fields the client left out.
func (r *PipelineRequest) applyDefaults() {
	for i := range r.Edges {
		if r.Edges[i].Type == "" {
			r.Edges[i].Type = DefaultEdgeType
		}
	}
}

// =============================================================================
// Response Types
// =============================================================================

// PipelineResponse is the result of a successful analysis.
type PipelineResponse struct {
	NumNodes int  `json:"num_nodes"`
	NumEdges int  `json:"num_edges"`
	IsDAG    bool `json:"is_dag"`

	// Analysis is present only when the caller asked for detail.
	Analysis *AnalysisDetail `json:"analysis,omitempty"`
}

// AnalysisDetail explains the verdict.
//
// All lists are non-nil so they encode as [] rather than null.
type AnalysisDetail struct {
	// TopologicalOrder lists node ids in a valid execution order. When the
	// pipeline has a cycle it holds only the nodes that could be ordered.
	TopologicalOrder []string `json:"topological_order"`

	// CyclicNodes lists nodes on a cycle or downstream of one.
	CyclicNodes []string `json:"cyclic_nodes"`

	// DanglingEdges lists ids of edges that reference undeclared nodes.
	DanglingEdges []string `json:"dangling_edges"`

	// DuplicateNodeIDs lists ids declared more than once.
	DuplicateNodeIDs []string `json:"duplicate_node_ids"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is a human-readable description.
	Error string `json:"error"`

	// Code is a stable machine-readable identifier such as INVALID_REQUEST.
	Code string `json:"code"`

	// Details carries the request id for correlating with server logs.
	Details string `json:"details,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// value dereferences a required string field. Fields are non-nil after
// binding; a nil from a caller building requests by hand reads as "".
func value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
