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
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/AleutianAI/pipelinecheck/pkg/logging"
	"github.com/AleutianAI/pipelinecheck/services/pipeline/config"
	"github.com/AleutianAI/pipelinecheck/services/pipeline/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"
)

// Server is the pipelinecheck HTTP server.
//
// # Description
//
// Owns the gin engine, the middleware chain and the http.Server. Settings
// that may change at runtime (CORS origins, log level) are applied through
// ApplyConfig; everything else is fixed at construction.
//
// # Thread Safety
//
// Run may be called once. ApplyConfig and Router are safe to call
// concurrently with Run.
type Server struct {
	cfg       config.Config
	logger    *logging.Logger
	providers *telemetry.Providers
	metrics   *telemetry.Metrics
	origins   *OriginPolicy
	engine    *gin.Engine

	// applied is the last config passed to ApplyConfig, starting with cfg.
	mu      sync.Mutex
	applied config.Config
}

// NewServer builds the router and middleware from cfg.
//
// # Inputs
//
//   - cfg: Validated configuration.
//   - logger: Shared logger. SetLevel is called on config reload.
//   - providers: Telemetry providers. Nil disables tracing and metrics.
//
// # Outputs
//
//   - *Server: Ready to Run.
//   - error: Non-nil if metric instruments could not be created.
func NewServer(cfg *config.Config, logger *logging.Logger, providers *telemetry.Providers) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("pipeline server: nil config")
	}
	if logger == nil {
		logger = logging.Default()
	}

	s := &Server{
		cfg:       *cfg,
		logger:    logger,
		providers: providers,
		origins:   NewOriginPolicy(cfg.CORS.AllowedOrigins),
		applied:   *cfg,
	}

	svcOpts := []ServiceOption{
		WithDuplicatePolicy(cfg.Validation.DuplicateNodeIDs),
		WithLogger(logger),
	}
	if providers != nil {
		m, err := telemetry.NewMetrics(providers.Meter(TracerName))
		if err != nil {
			return nil, fmt.Errorf("pipeline server: %w", err)
		}
		s.metrics = m
		svcOpts = append(svcOpts, WithMetrics(m), WithTracer(providers.Tracer(TracerName)))
	}

	s.engine = s.buildRouter(NewService(svcOpts...))
	return s, nil
}

func (s *Server) buildRouter(svc *Service) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(Recovery(s.logger, s.metrics))
	r.Use(RequestID())
	if s.providers != nil {
		r.Use(otelgin.Middleware(s.cfg.Telemetry.ServiceName,
			otelgin.WithTracerProvider(s.providers.TracerProvider),
			otelgin.WithPropagators(s.providers.Propagator),
		))
	}
	r.Use(telemetry.GinMetrics(s.metrics))
	r.Use(RequestLogger(s.logger))
	r.Use(CORS(s.origins, s.cfg.CORS.AllowCredentials, s.cfg.CORS.MaxAge))
	if s.cfg.RateLimit.Enabled {
		r.Use(RateLimit(s.cfg.RateLimit.RequestsPerSecond, s.cfg.RateLimit.Burst, s.metrics))
	}

	RegisterRoutes(r, NewHandlers(svc, s.logger, s.metrics))

	if s.providers != nil {
		if h := s.providers.MetricsHandler(); h != nil {
			r.GET("/metrics", gin.WrapH(h))
		}
	}
	return r
}

// Router returns the gin engine, for tests and embedding.
func (s *Server) Router() *gin.Engine {
	return s.engine
}

// Origins returns the live CORS origin policy.
func (s *Server) Origins() *OriginPolicy {
	return s.origins
}

// Metrics returns the server's instruments, or nil without telemetry.
func (s *Server) Metrics() *telemetry.Metrics {
	return s.metrics
}

// ApplyConfig applies the reloadable parts of cfg.
//
// # Description
//
// Swaps in the new CORS origins and log level. Other settings need a
// restart; a change to them since the previous reload is logged and
// otherwise ignored.
func (s *Server) ApplyConfig(cfg *config.Config) {
	s.mu.Lock()
	prev := s.applied
	s.applied = *cfg
	s.mu.Unlock()

	s.origins.Set(cfg.CORS.AllowedOrigins)

	if level, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
		s.logger.SetLevel(level)
	}

	if cfg.Server != prev.Server || cfg.Validation != prev.Validation ||
		cfg.RateLimit != prev.RateLimit || cfg.Telemetry != prev.Telemetry {
		s.logger.Warn("config changes outside cors and logging need a restart")
	}
	s.logger.Info("config reloaded",
		"allowed_origins", cfg.CORS.AllowedOrigins,
		"log_level", cfg.Logging.Level,
	)
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Server.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
//
// # Description
//
// In-flight requests get server.shutdown_timeout to finish once ctx is
// cancelled. Serve returns nil after a clean shutdown.
//
// # Outputs
//
//   - error: Serve failure or shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.engine,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down server", "timeout", s.cfg.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// shutdownGrace is how long Close waits for telemetry to flush.
const shutdownGrace = 5 * time.Second

// Close flushes telemetry. Call after Run returns.
func (s *Server) Close() error {
	if s.providers == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return s.providers.Shutdown(ctx)
}
