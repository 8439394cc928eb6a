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
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/pipelinecheck/pkg/logging"
	"github.com/AleutianAI/pipelinecheck/services/pipeline/telemetry"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// =============================================================================
// Request ID
// =============================================================================

// RequestID assigns every request an id, reusing the caller's
// X-Request-ID when present, and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		getOrCreateRequestID(c)
		c.Next()
	}
}

// getOrCreateRequestID returns the id for this request, creating one on
// first use.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	id := c.GetHeader(RequestIDHeader)
	if id == "" || len(id) > 128 {
		id = uuid.New().String()
	}
	c.Set(requestIDKey, id)
	c.Header(RequestIDHeader, id)
	return id
}

// =============================================================================
// CORS
// =============================================================================

// OriginPolicy is the set of browser origins allowed to call the API.
//
// The set is swapped atomically, so a config reload takes effect for the
// next request without restarting the server.
type OriginPolicy struct {
	set atomic.Pointer[originSet]
}

type originSet struct {
	any     bool
	origins map[string]struct{}
	list    []string
}

// NewOriginPolicy creates a policy allowing origins. "*" allows any origin.
func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{}
	p.Set(origins)
	return p
}

// Set replaces the allowed origins.
func (p *OriginPolicy) Set(origins []string) {
	s := &originSet{
		origins: make(map[string]struct{}, len(origins)),
		list:    append([]string(nil), origins...),
	}
	for _, o := range origins {
		if o == "*" {
			s.any = true
		}
		s.origins[o] = struct{}{}
	}
	p.set.Store(s)
}

// Allowed reports whether origin may call the API.
func (p *OriginPolicy) Allowed(origin string) bool {
	s := p.set.Load()
	if s.any {
		return true
	}
	_, ok := s.origins[origin]
	return ok
}

// Origins returns a copy of the allowed origins.
func (p *OriginPolicy) Origins() []string {
	return append([]string(nil), p.set.Load().list...)
}

// CORS answers preflight requests and sets CORS headers for allowed
// origins. Requests from other origins are rejected with 403; requests
// without an Origin header pass through untouched.
func CORS(policy *OriginPolicy, allowCredentials bool, maxAge time.Duration) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  policy.Allowed,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodHead, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization", RequestIDHeader, "traceparent", "tracestate"},
		ExposeHeaders:    []string{RequestIDHeader},
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	})
}

// =============================================================================
// Rate Limiting
// =============================================================================

// clientLimiters hands out one token bucket per client IP.
type clientLimiters struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	rps     rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// sweepThreshold is the client count above which idle entries are evicted.
const sweepThreshold = 1024

func newClientLimiters(rps float64, burst int) *clientLimiters {
	return &clientLimiters{
		clients: make(map[string]*clientLimiter),
		rps:     rate.Limit(rps),
		burst:   burst,
		idle:    10 * time.Minute,
		now:     time.Now,
	}
}

func (l *clientLimiters) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.clients) > sweepThreshold {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > l.idle {
				delete(l.clients, k)
			}
		}
	}

	c, ok := l.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter
}

// RateLimit rejects clients exceeding rps sustained requests per second
// (with the given burst) with 429 RATE_LIMITED.
func RateLimit(rps float64, burst int, metrics *telemetry.Metrics) gin.HandlerFunc {
	limiters := newClientLimiters(rps, burst)
	retryAfter := strconv.Itoa(int(math.Ceil(1 / rps)))

	return func(c *gin.Context) {
		if limiters.get(c.ClientIP()).Allow() {
			c.Next()
			return
		}
		metrics.RecordError(c.Request.Context(), CodeRateLimited)
		c.Header("Retry-After", retryAfter)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
			Error:   "rate limit exceeded",
			Code:    CodeRateLimited,
			Details: getOrCreateRequestID(c),
		})
	}
}

// =============================================================================
// Logging & Recovery
// =============================================================================

// RequestLogger logs one line per request after it completes. Liveness
// and metrics scrapes are logged at Debug.
func RequestLogger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		level := logging.LevelInfo
		switch route {
		case "/", "/health", "/metrics":
			level = logging.LevelDebug
		}

		args := []any{
			"request_id", getOrCreateRequestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		l := logger.Slog()
		ctx := c.Request.Context()
		if level == logging.LevelDebug {
			l.DebugContext(ctx, "request completed", args...)
		} else {
			l.InfoContext(ctx, "request completed", args...)
		}
	}
}

// Recovery turns a panic in any handler into 500 INTERNAL_ERROR.
func Recovery(logger *logging.Logger, metrics *telemetry.Metrics) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		requestID := getOrCreateRequestID(c)
		logger.Slog().ErrorContext(c.Request.Context(), "handler panicked",
			"request_id", requestID,
			"path", c.Request.URL.Path,
			"panic", recovered,
		)
		metrics.RecordError(c.Request.Context(), CodeInternalError)
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal server error",
			Code:    CodeInternalError,
			Details: requestID,
		})
	})
}
