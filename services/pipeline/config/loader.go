// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where `pipelinecheck config init` writes the starter file.
const DefaultPath = "pipelinecheck.yaml"

// ErrInvalidConfig wraps every validation failure returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// DefaultConfig returns the settings used when no file is present.
//
// The port and CORS origin match the pipeline editor's development setup.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:            "",
			Port:            8000,
			Mode:            "release",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins:   []string{"http://localhost:3000"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		},
		Validation: ValidationConfig{
			DuplicateNodeIDs: DuplicateReject,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			ServiceName:     "pipelinecheck",
			TracesExporter:  "none",
			MetricsExporter: "prometheus",
			OTLPEndpoint:    "localhost:4317",
			SampleRatio:     1.0,
		},
	}
}

// Load reads the YAML file at path on top of DefaultConfig, applies
// environment overrides and validates the result.
//
// # Inputs
//
//   - path: File to read. Empty or missing means defaults only.
//
// # Outputs
//
//   - *Config: The effective configuration.
//   - error: Read, parse, override or validation failure.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Defaults only.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := applyEnvOverrides(&cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WriteDefault writes DefaultConfig to path, creating parent directories.
//
// Refuses to overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists", path)
		}
	}
	return createDefault(path)
}

func createDefault(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	header := "# pipelinecheck configuration\n# Environment variables prefixed PIPELINE_ and OTEL_ override these values.\n\n"
	return os.WriteFile(path, append([]byte(header), data...), 0o644)
}

// =============================================================================
// Environment Overrides
// =============================================================================

func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("PIPELINE_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PIPELINE_PORT=%q is not a number", ErrInvalidConfig, v)
		}
		cfg.Server.Port = port
	}
	if v, ok := lookup("PIPELINE_ALLOWED_ORIGINS"); ok && v != "" {
		cfg.CORS.AllowedOrigins = splitList(v)
	}
	if v, ok := lookup("PIPELINE_LOG_LEVEL"); ok && v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v, ok := lookup("PIPELINE_DUPLICATE_NODE_IDS"); ok && v != "" {
		cfg.Validation.DuplicateNodeIDs = DuplicatePolicy(strings.ToLower(v))
	}
	if v, ok := lookup("GIN_MODE"); ok && v != "" {
		cfg.Server.Mode = v
	}
	if v, ok := lookup("OTEL_TRACES_EXPORTER"); ok && v != "" {
		cfg.Telemetry.TracesExporter = v
	}
	if v, ok := lookup("OTEL_METRICS_EXPORTER"); ok && v != "" {
		cfg.Telemetry.MetricsExporter = v
	}
	if v, ok := lookup("OTEL_EXPORTER_OTLP_ENDPOINT"); ok && v != "" {
		// The gRPC exporter wants host:port, not a URL.
		v = strings.TrimPrefix(strings.TrimPrefix(v, "http://"), "https://")
		cfg.Telemetry.OTLPEndpoint = v
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// =============================================================================
// Validation
// =============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks every field constraint and reports all violations.
//
// # Outputs
//
//   - error: Wraps ErrInvalidConfig and names each offending YAML path,
//     e.g. "server.port: failed min=1". Nil when valid.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace is "Config.server.port"; drop the root type.
		path := fe.Namespace()
		if i := strings.IndexByte(path, '.'); i >= 0 {
			path = path[i+1:]
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed %s (got %v)", path, rule, fe.Value()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
