// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires OpenTelemetry tracing and metrics for pipelinecheck.
//
// # Exporters
//
//	traces:  otlp (gRPC) | stdout | none
//	metrics: prometheus (/metrics) | stdout | none
//
// "none" installs no-op providers, so instrumented code never checks whether
// telemetry is enabled.
//
// # Usage
//
//	providers, err := telemetry.Init(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer providers.Shutdown(context.Background())
//
//	metrics, err := telemetry.NewMetrics(providers.Meter("pipelinecheck"))
//
// # Thread Safety
//
// Providers and Metrics are safe for concurrent use once created.
package telemetry
