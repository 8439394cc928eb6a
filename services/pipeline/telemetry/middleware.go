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
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GinMetrics records request count, duration and in-flight requests.
//
// # Description
//
// The route label is gin's registered path template, so unmatched paths
// collapse into a single "unmatched" series instead of one per URL.
//
// # Inputs
//
//   - m: Instruments to record on. A nil m yields a pass-through handler.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware to install on the engine.
func GinMetrics(m *Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()

		m.HTTPActiveRequests.Add(ctx, 1)
		defer m.HTTPActiveRequests.Add(ctx, -1)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
			attribute.Int("status", c.Writer.Status()),
		)
		m.HTTPRequestsTotal.Add(ctx, 1, attrs)
		m.HTTPRequestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}
