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
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AleutianAI/pipelinecheck/pkg/logging"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *logging.Logger {
	return logging.New(logging.Config{Quiet: true})
}

// buildRequest returns a schema-complete request for the given node ids
// and (source, target) pairs. Edge ids are e0, e1, ...
func buildRequest(nodes []string, edges [][2]string) *PipelineRequest {
	req := &PipelineRequest{
		Nodes: make([]Node, 0, len(nodes)),
		Edges: make([]Edge, 0, len(edges)),
	}
	for i, id := range nodes {
		req.Nodes = append(req.Nodes, Node{
			ID:       ptr(id),
			Type:     ptr("customInput"),
			Position: map[string]float64{"x": float64(i * 100), "y": 50},
			Data:     map[string]any{"id": id, "nodeType": "customInput"},
		})
	}
	for i, e := range edges {
		req.Edges = append(req.Edges, Edge{
			ID:     ptr(fmt.Sprintf("e%d", i)),
			Source: ptr(e[0]),
			Target: ptr(e[1]),
		})
	}
	return req
}

func ptr(s string) *string {
	return &s
}

func requestBody(t *testing.T, req *PipelineRequest) string {
	t.Helper()
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return string(b)
}

func setupTestRouter(svc *Service) *gin.Engine {
	router := gin.New()
	router.Use(RequestID())
	RegisterRoutes(router, NewHandlers(svc, quietLogger(), nil))
	return router
}

func postParse(router http.Handler, query, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/pipelines/parse"+query, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", w.Body.String(), err)
	}
	return v
}
