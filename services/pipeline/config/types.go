// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads, validates and watches the pipelinecheck settings file.
package config

import "time"

// DuplicatePolicy controls how the HTTP boundary treats repeated node ids.
type DuplicatePolicy string

const (
	// DuplicateReject fails the request with DUPLICATE_NODE_ID.
	DuplicateReject DuplicatePolicy = "reject"

	// DuplicateMerge collapses repeats onto their first declaration.
	DuplicateMerge DuplicatePolicy = "merge"
)

// Config is the root of pipelinecheck.yaml.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	CORS       CORSConfig       `yaml:"cors"`
	Validation ValidationConfig `yaml:"validation"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`

	// Mode is the gin mode: debug, release or test.
	Mode string `yaml:"mode" validate:"oneof=debug release test"`

	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// CORSConfig lists the browser origins allowed to call the API.
//
// AllowedOrigins is reloadable at runtime. "*" allows any origin; combined
// with AllowCredentials the request origin is echoed back instead.
type CORSConfig struct {
	AllowedOrigins   []string      `yaml:"allowed_origins" validate:"required,min=1,dive,required"`
	AllowCredentials bool          `yaml:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age" validate:"gte=0"`
}

type ValidationConfig struct {
	DuplicateNodeIDs DuplicatePolicy `yaml:"duplicate_node_ids" validate:"oneof=reject merge"`
}

// RateLimitConfig enables a token bucket per client IP. Off by default.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gt=0"`
	Burst             int     `yaml:"burst" validate:"min=1"`
}

type LoggingConfig struct {
	// Level is reloadable at runtime.
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`

	// Format is "text", "json" or empty for terminal detection.
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`

	// Dir enables a JSON log file alongside stderr.
	Dir string `yaml:"dir,omitempty"`
}

type TelemetryConfig struct {
	ServiceName string `yaml:"service_name" validate:"required"`

	// TracesExporter is "none", "stdout" or "otlp".
	TracesExporter string `yaml:"traces_exporter" validate:"oneof=none stdout otlp"`

	// MetricsExporter is "none", "stdout" or "prometheus".
	MetricsExporter string `yaml:"metrics_exporter" validate:"oneof=none stdout prometheus"`

	// OTLPEndpoint is the collector's gRPC address, e.g. "localhost:4317".
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"required_if=TracesExporter otlp"`

	// SampleRatio is the fraction of root traces recorded.
	SampleRatio float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.Port)
}
