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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AleutianAI/pipelinecheck/services/pipeline/config"
	"github.com/AleutianAI/pipelinecheck/services/pipeline/dag"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlers_HandlePing(t *testing.T) {
	router := setupTestRouter(NewService(WithLogger(quietLogger())))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"Ping":"Pong"}`, w.Body.String())
}

func TestHandlers_HandleHealth(t *testing.T) {
	router := setupTestRouter(NewService(WithLogger(quietLogger())))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeJSON[HealthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, ServiceVersion, resp.Version)
}

func TestHandlers_HandleParse_Scenarios(t *testing.T) {
	router := setupTestRouter(NewService(WithLogger(quietLogger())))

	tests := []struct {
		name  string
		nodes []string
		edges [][2]string
		want  PipelineResponse
	}{
		{
			name:  "linear chain",
			nodes: []string{"A", "B", "C"},
			edges: [][2]string{{"A", "B"}, {"B", "C"}},
			want:  PipelineResponse{NumNodes: 3, NumEdges: 2, IsDAG: true},
		},
		{
			name:  "cycle",
			nodes: []string{"A", "B", "C"},
			edges: [][2]string{{"A", "B"}, {"B", "C"}, {"C", "A"}},
			want:  PipelineResponse{NumNodes: 3, NumEdges: 3, IsDAG: false},
		},
		{
			name: "empty",
			want: PipelineResponse{NumNodes: 0, NumEdges: 0, IsDAG: true},
		},
		{
			name:  "self loop",
			nodes: []string{"A"},
			edges: [][2]string{{"A", "A"}},
			want:  PipelineResponse{NumNodes: 1, NumEdges: 1, IsDAG: false},
		},
		{
			name:  "dangling edge",
			nodes: []string{"A", "B"},
			edges: [][2]string{{"A", "X"}},
			want:  PipelineResponse{NumNodes: 2, NumEdges: 1, IsDAG: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postParse(router, "", requestBody(t, buildRequest(tt.nodes, tt.edges)))

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, tt.want, decodeJSON[PipelineResponse](t, w))
			assert.NotContains(t, w.Body.String(), "analysis")
		})
	}
}

func TestHandlers_HandleParse_EditorPayload(t *testing.T) {
	router := setupTestRouter(NewService(WithLogger(quietLogger())))

	// Shape sent by the pipeline editor, including extra fields.
	body := `{
		"nodes": [
			{"id": "customInput-1", "type": "customInput", "position": {"x": 100, "y": 200},
			 "data": {"id": "customInput-1", "nodeType": "customInput", "inputName": "input_1"},
			 "width": 200, "height": 80},
			{"id": "llm-1", "type": "llm", "position": {"x": 400, "y": 200}, "data": {}}
		],
		"edges": [
			{"id": "reactflow__edge-customInput-1-llm-1", "source": "customInput-1", "target": "llm-1",
			 "sourceHandle": "customInput-1-value", "targetHandle": "llm-1-prompt",
			 "animated": true, "markerEnd": {"type": "arrow"}}
		]
	}`

	w := postParse(router, "", body)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"num_nodes":2,"num_edges":1,"is_dag":true}`, w.Body.String())
}

func TestHandlers_HandleParse_InvalidRequest(t *testing.T) {
	router := setupTestRouter(NewService(WithLogger(quietLogger())))

	tests := []struct {
		name     string
		query    string
		body     string
		wantCode string
		wantMsg  string
	}{
		{
			name:     "empty body",
			body:     "",
			wantCode: CodeInvalidRequest,
			wantMsg:  "request body is empty",
		},
		{
			name:     "malformed json",
			body:     `{"nodes": [`,
			wantCode: CodeInvalidRequest,
		},
		{
			name:     "missing nodes",
			body:     `{"edges": []}`,
			wantCode: CodeInvalidRequest,
			wantMsg:  "nodes: field required",
		},
		{
			name:     "missing edges",
			body:     `{"nodes": []}`,
			wantCode: CodeInvalidRequest,
			wantMsg:  "edges: field required",
		},
		{
			name:     "node without id",
			body:     `{"nodes": [{"type": "t", "position": {"x": 0, "y": 0}, "data": {}}], "edges": []}`,
			wantCode: CodeInvalidRequest,
			wantMsg:  "nodes[0].id: field required",
		},
		{
			name:     "node without position",
			body:     `{"nodes": [{"id": "A", "type": "t", "data": {}}], "edges": []}`,
			wantCode: CodeInvalidRequest,
			wantMsg:  "nodes[0].position: field required",
		},
		{
			name:     "edge without source",
			body:     `{"nodes": [], "edges": [{"id": "e1", "target": "A"}]}`,
			wantCode: CodeInvalidRequest,
			wantMsg:  "edges[0].source: field required",
		},
		{
			name:     "edge with null source",
			body:     `{"nodes": [], "edges": [{"id": "e1", "source": null, "target": "A"}]}`,
			wantCode: CodeInvalidRequest,
			wantMsg:  "edges[0].source: field required",
		},
		{
			name:     "edge without target",
			body:     `{"nodes": [], "edges": [{"id": "e1", "source": "A"}]}`,
			wantCode: CodeInvalidRequest,
			wantMsg:  "edges[0].target: field required",
		},
		{
			name:     "wrong type for id",
			body:     `{"nodes": [{"id": 7, "type": "t", "position": {}, "data": {}}], "edges": []}`,
			wantCode: CodeInvalidRequest,
			wantMsg:  "expected string",
		},
		{
			name:     "bad detail flag",
			query:    "?detail=maybe",
			body:     `{"nodes": [], "edges": []}`,
			wantCode: CodeInvalidRequest,
			wantMsg:  "detail: must be a boolean",
		},
		{
			name: "duplicate node ids",
			body: `{"nodes": [
				{"id": "A", "type": "t", "position": {}, "data": {}},
				{"id": "A", "type": "t", "position": {}, "data": {}}
			], "edges": []}`,
			wantCode: CodeDuplicateNodeID,
			wantMsg:  "duplicate node ids: A",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postParse(router, tt.query, tt.body)

			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			resp := decodeJSON[ErrorResponse](t, w)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Contains(t, resp.Error, tt.wantMsg)
			assert.Equal(t, w.Header().Get(RequestIDHeader), resp.Details)
			assert.NotContains(t, w.Body.String(), "num_nodes", "no partial results on failure")
		})
	}
}

func TestHandlers_HandleParse_EmptyStringsAreValues(t *testing.T) {
	router := setupTestRouter(NewService(WithLogger(quietLogger())))

	tests := []struct {
		name     string
		body     string
		want     PipelineResponse
		dangling []string
	}{
		{
			name: "empty edge source is dangling",
			body: `{
				"nodes": [{"id": "A", "type": "t", "position": {}, "data": {}}],
				"edges": [{"id": "e1", "source": "", "target": "A"}]
			}`,
			want:     PipelineResponse{NumNodes: 1, NumEdges: 1, IsDAG: true},
			dangling: []string{"e1"},
		},
		{
			name: "empty node id and type",
			body: `{
				"nodes": [{"id": "", "type": "", "position": {}, "data": {}}],
				"edges": []
			}`,
			want:     PipelineResponse{NumNodes: 1, NumEdges: 0, IsDAG: true},
			dangling: []string{},
		},
		{
			name: "empty id closes a self loop",
			body: `{
				"nodes": [{"id": "", "type": "t", "position": {}, "data": {}}],
				"edges": [{"id": "", "source": "", "target": ""}]
			}`,
			want:     PipelineResponse{NumNodes: 1, NumEdges: 1, IsDAG: false},
			dangling: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postParse(router, "?detail=true", tt.body)

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			resp := decodeJSON[PipelineResponse](t, w)
			assert.Equal(t, tt.want.NumNodes, resp.NumNodes)
			assert.Equal(t, tt.want.NumEdges, resp.NumEdges)
			assert.Equal(t, tt.want.IsDAG, resp.IsDAG)
			require.NotNil(t, resp.Analysis)
			assert.Equal(t, tt.dangling, resp.Analysis.DanglingEdges)
		})
	}
}

func TestHandlers_HandleParse_MergeDuplicates(t *testing.T) {
	svc := NewService(WithLogger(quietLogger()), WithDuplicatePolicy(config.DuplicateMerge))
	router := setupTestRouter(svc)
	req := buildRequest([]string{"A", "B", "A"}, [][2]string{{"A", "B"}})

	w := postParse(router, "?detail=true", requestBody(t, req))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeJSON[PipelineResponse](t, w)
	assert.Equal(t, 3, resp.NumNodes)
	assert.True(t, resp.IsDAG)
	require.NotNil(t, resp.Analysis)
	assert.Equal(t, []string{"A"}, resp.Analysis.DuplicateNodeIDs)
}

func TestHandlers_HandleParse_Detail(t *testing.T) {
	router := setupTestRouter(NewService(WithLogger(quietLogger())))
	req := buildRequest(
		[]string{"in", "llm", "out", "loopA", "loopB"},
		[][2]string{{"in", "llm"}, {"llm", "out"}, {"loopA", "loopB"}, {"loopB", "loopA"}, {"out", "ghost"}},
	)

	w := postParse(router, "?detail=true", requestBody(t, req))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{
		"num_nodes": 5,
		"num_edges": 5,
		"is_dag": false,
		"analysis": {
			"topological_order": ["in", "llm", "out"],
			"cyclic_nodes": ["loopA", "loopB"],
			"dangling_edges": ["e4"],
			"duplicate_node_ids": []
		}
	}`, w.Body.String())
}

func TestHandlers_HandleParse_DetailFalse(t *testing.T) {
	router := setupTestRouter(NewService(WithLogger(quietLogger())))

	w := postParse(router, "?detail=false", `{"nodes": [], "edges": []}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"num_nodes":0,"num_edges":0,"is_dag":true}`, w.Body.String())
}

func TestHandlers_HandleParse_InternalError(t *testing.T) {
	svc := NewService(WithLogger(quietLogger()))
	svc.analyze = func([]string, []dag.Edge) dag.Analysis {
		panic("boom")
	}
	router := setupTestRouter(svc)

	w := postParse(router, "", `{"nodes": [], "edges": []}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeJSON[ErrorResponse](t, w)
	assert.Equal(t, CodeAnalysisFailed, resp.Code)
	assert.Equal(t, "Error analyzing pipeline: panic: boom", resp.Error)
}

func TestHandlers_HandleParse_CancelledRequest(t *testing.T) {
	router := setupTestRouter(NewService(WithLogger(quietLogger())))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/pipelines/parse", strings.NewReader(`{"nodes": [], "edges": []}`))
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeJSON[ErrorResponse](t, w)
	assert.Equal(t, CodeAnalysisFailed, resp.Code)
	assert.Equal(t, "Error analyzing pipeline: context canceled", resp.Error)
}

func TestHandlers_RequestID(t *testing.T) {
	router := setupTestRouter(NewService(WithLogger(quietLogger())))

	t.Run("echoes caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
	})

	t.Run("generates uuid", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
		assert.NoError(t, err)
	})

	t.Run("replaces oversized id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
		assert.NoError(t, err)
	})
}
