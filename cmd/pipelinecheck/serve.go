// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/pipelinecheck/pkg/logging"
	"github.com/AleutianAI/pipelinecheck/services/pipeline"
	"github.com/AleutianAI/pipelinecheck/services/pipeline/config"
	"github.com/AleutianAI/pipelinecheck/services/pipeline/telemetry"
	"github.com/gin-gonic/gin"
)

// runServe loads the config, starts telemetry and serves until ctx is
// cancelled or the process receives SIGINT/SIGTERM.
func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gin.SetMode(cfg.Server.Mode)

	logger := newLogger(cfg)
	defer logger.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.Init(ctx, telemetryConfig(cfg))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	srv, err := pipeline.NewServer(cfg, logger, providers)
	if err != nil {
		_ = providers.Shutdown(context.Background())
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	if _, statErr := os.Stat(configPath); statErr == nil {
		w, err := config.NewWatcher(configPath, reloadFunc(ctx, srv, logger), config.DefaultDebounce)
		if err != nil {
			logger.Warn("config watcher disabled", "path", configPath, "error", err)
		} else if err := w.Start(ctx); err != nil {
			logger.Warn("config watcher disabled", "path", configPath, "error", err)
		} else {
			defer w.Stop()
			logger.Info("watching config for changes", "path", configPath)
		}
	}

	logger.Info("starting pipelinecheck",
		"version", pipeline.ServiceVersion,
		"addr", cfg.Server.Addr(),
		"allowed_origins", cfg.CORS.AllowedOrigins,
		"duplicate_node_ids", string(cfg.Validation.DuplicateNodeIDs),
	)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// reloadFunc applies a re-read config to srv. A config that fails to load
// or validate is logged and the running settings stay in effect.
func reloadFunc(ctx context.Context, srv *pipeline.Server, logger *logging.Logger) config.ReloadFunc {
	return func(cfg *config.Config, err error) {
		srv.Metrics().RecordConfigReload(ctx, err)
		if err != nil {
			logger.Error("config reload failed, keeping previous settings", "error", err)
			return
		}
		srv.ApplyConfig(cfg)
	}
}

func newLogger(cfg *config.Config) *logging.Logger {
	// Level was checked by config validation.
	level, _ := logging.ParseLevel(cfg.Logging.Level)
	return logging.New(logging.Config{
		Level:   level,
		Service: cfg.Telemetry.ServiceName,
		Format:  logging.Format(cfg.Logging.Format),
		LogDir:  cfg.Logging.Dir,
	})
}

func telemetryConfig(cfg *config.Config) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceName = cfg.Telemetry.ServiceName
	tc.ServiceVersion = pipeline.ServiceVersion
	tc.Environment = cfg.Server.Mode
	tc.TraceExporter = cfg.Telemetry.TracesExporter
	tc.MetricExporter = cfg.Telemetry.MetricsExporter
	tc.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	tc.SampleRatio = cfg.Telemetry.SampleRatio
	tc.StdoutWriter = os.Stderr
	return tc
}
