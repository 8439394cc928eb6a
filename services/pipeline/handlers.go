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
	"log/slog"
	"net/http"
	"strconv"

	"github.com/AleutianAI/pipelinecheck/pkg/logging"
	"github.com/AleutianAI/pipelinecheck/services/pipeline/telemetry"
	"github.com/gin-gonic/gin"
)

// Handlers contains the HTTP handlers for the pipeline API.
type Handlers struct {
	svc     *Service
	logger  *logging.Logger
	metrics *telemetry.Metrics
}

// NewHandlers creates handlers backed by svc.
func NewHandlers(svc *Service, logger *logging.Logger, metrics *telemetry.Metrics) *Handlers {
	useJSONFieldNames()
	if logger == nil {
		logger = logging.Default()
	}
	return &Handlers{svc: svc, logger: logger, metrics: metrics}
}

// HandleParse handles POST /pipelines/parse.
//
// Description:
//
//	Decodes the pipeline, validates its schema and reports node count,
//	edge count and whether the graph is acyclic.
//
// Query Parameters:
//
//	detail - "true" adds the analysis block to the response.
//
// Request Body:
//
//	PipelineRequest
//
// Response:
//
//	200 OK: PipelineResponse
//	400 Bad Request: Schema violation or analysis failure
func (h *Handlers) HandleParse(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleParse").Slog()
	ctx := c.Request.Context()

	detail, rerr := parseDetail(c.Query("detail"))
	if rerr != nil {
		h.metrics.RecordOutcome(ctx, telemetry.OutcomeRejected)
		h.writeError(c, logger, requestID, rerr)
		return
	}

	var req PipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.RecordOutcome(ctx, telemetry.OutcomeRejected)
		h.writeError(c, logger, requestID, bindError(err))
		return
	}
	req.applyDefaults()

	resp, rerr := h.svc.Analyze(ctx, &req, detail)
	if rerr != nil {
		h.writeError(c, logger, requestID, rerr)
		return
	}

	logger.InfoContext(ctx, "pipeline parsed",
		"num_nodes", resp.NumNodes,
		"num_edges", resp.NumEdges,
		"is_dag", resp.IsDAG,
	)
	c.JSON(http.StatusOK, resp)
}

// HandlePing handles GET /, the liveness probe the editor polls.
func (h *Handlers) HandlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"Ping": "Pong"})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// writeError is the single place a RequestError becomes a response.
func (h *Handlers) writeError(c *gin.Context, logger *slog.Logger, requestID string, rerr *RequestError) {
	ctx := c.Request.Context()
	if rerr.Kind == KindInternal {
		logger.ErrorContext(ctx, "pipeline analysis failed", "code", rerr.Code, "error", rerr.Err)
	} else {
		logger.WarnContext(ctx, "invalid pipeline request", "code", rerr.Code, "error", rerr.Message)
	}
	h.metrics.RecordError(ctx, rerr.Code)

	c.JSON(rerr.Status(), ErrorResponse{
		Error:   rerr.Message,
		Code:    rerr.Code,
		Details: requestID,
	})
}

func parseDetail(raw string) (bool, *RequestError) {
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, schemaError(CodeInvalidRequest, ErrInvalidPipeline, "detail: must be a boolean")
	}
	return v, nil
}
