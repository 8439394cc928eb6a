// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for pipelinecheck components.
//
// The logger is a thin layer over log/slog:
//
//	┌──────────────────────────────────────────────────────┐
//	│                      Logger                          │
//	│  ┌──────────────┐   ┌──────────────┐                 │
//	│  │   stderr     │   │  log file    │  ◄── multiHandler│
//	│  │ text / JSON  │   │  JSON only   │                 │
//	│  └──────────────┘   └──────────────┘                 │
//	│            ▲ traceHandler adds trace_id/span_id      │
//	└──────────────────────────────────────────────────────┘
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{Level: logging.LevelInfo, Service: "pipelinecheck"})
//	defer logger.Close()
//	logger.Info("server listening", "addr", addr)
//
// # Runtime Level Changes
//
// The minimum level lives in a slog.LevelVar, so SetLevel takes effect for
// every child logger created with With, including ones already handed out.
//
// # Trace Correlation
//
// Records logged through a context that carries a sampled OpenTelemetry span
// gain trace_id and span_id attributes:
//
//	logger.Slog().InfoContext(ctx, "analysis complete")
//
// # Thread Safety
//
// Logger is safe for concurrent use.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level represents log severity. Debug < Info < Warn < Error.
type Level int

const (
	// LevelDebug is for development troubleshooting.
	LevelDebug Level = iota

	// LevelInfo is for normal operational events.
	LevelInfo

	// LevelWarn is for recoverable issues.
	LevelWarn

	// LevelError is for failed operations.
	LevelError
)

// String returns the lowercase level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a level name to a Level.
//
// # Inputs
//
//   - s: One of "debug", "info", "warn", "warning", "error". Case and
//     surrounding whitespace are ignored. Empty means info.
//
// # Outputs
//
//   - Level: The parsed level.
//   - error: Non-nil for unknown names.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Format selects the stderr encoding.
type Format string

const (
	// FormatAuto writes text to a terminal and JSON otherwise.
	FormatAuto Format = ""

	// FormatText writes human-readable key=value lines.
	FormatText Format = "text"

	// FormatJSON writes one JSON object per line.
	FormatJSON Format = "json"
)

// Config configures a Logger.
//
// The zero value logs Info and above to stderr, choosing text or JSON
// based on whether stderr is a terminal.
type Config struct {
	// Level sets the initial minimum level. Default: LevelInfo.
	Level Level

	// Service is attached to every record as the "service" attribute.
	Service string

	// Format selects the stderr encoding. Default: FormatAuto.
	Format Format

	// LogDir enables an additional JSON log file named
	// "{Service}_{YYYY-MM-DD}.log". Supports a leading ~.
	LogDir string

	// Quiet disables the stderr handler.
	Quiet bool

	// Output replaces stderr as the console destination. Used by tests.
	Output io.Writer
}

// =============================================================================
// Logger
// =============================================================================

// Logger wraps slog.Logger with a shared level and an optional log file.
type Logger struct {
	slog  *slog.Logger
	level *slog.LevelVar

	// file is shared by every child created through With.
	file *logFile
}

// logFile is the log file shared by a logger and its children. Closing it
// through any of them closes it for all.
type logFile struct {
	mu sync.Mutex
	f  *os.File
}

// New creates a Logger from config.
//
// # Description
//
// Builds the console handler (unless Quiet), the file handler (if LogDir is
// set and the file can be opened) and wraps them so every record carries the
// service name and, when available, trace correlation ids. A file that cannot
// be opened is reported once on the console and otherwise ignored.
//
// # Outputs
//
//   - *Logger: Ready for use. Call Close to release the log file.
func New(config Config) *Logger {
	level := new(slog.LevelVar)
	level.Set(config.Level.toSlogLevel())
	opts := &slog.HandlerOptions{Level: level}

	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	var handlers []slog.Handler
	if !config.Quiet {
		if useJSON(config.Format, out) {
			handlers = append(handlers, slog.NewJSONHandler(out, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(out, opts))
		}
	}

	l := &Logger{level: level, file: &logFile{}}

	var fileErr error
	if config.LogDir != "" {
		var f *os.File
		f, fileErr = openLogFile(config.LogDir, config.Service)
		if f != nil {
			l.file.f = f
			handlers = append(handlers, slog.NewJSONHandler(f, opts))
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}
	handler = &traceHandler{next: handler}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}

	l.slog = slog.New(handler)
	if fileErr != nil {
		l.slog.Warn("file logging disabled", "log_dir", config.LogDir, "error", fileErr)
	}
	return l
}

// Default returns an Info-level stderr logger for the pipelinecheck service.
func Default() *Logger {
	return New(Config{Level: LevelInfo, Service: "pipelinecheck"})
}

// Debug logs at Debug level.
func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }

// Info logs at Info level.
func (l *Logger) Info(msg string, args ...any) { l.slog.Info(msg, args...) }

// Warn logs at Warn level.
func (l *Logger) Warn(msg string, args ...any) { l.slog.Warn(msg, args...) }

// Error logs at Error level.
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a child logger carrying the given attributes.
//
// The child shares the parent's level and log file.
//
// # Examples
//
//	reqLogger := logger.With("request_id", reqID, "handler", "HandleParse")
//	reqLogger.Info("analysis complete", "is_dag", true)
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:  l.slog.With(args...),
		level: l.level,
		file:  l.file,
	}
}

// Slog returns the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// SetLevel changes the minimum level for this logger and all its children.
//
// # Thread Safety
//
// Safe to call while other goroutines are logging.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(level.toSlogLevel())
}

// Level returns the current minimum level.
func (l *Logger) Level() Level {
	switch l.level.Level() {
	case slog.LevelDebug:
		return LevelDebug
	case slog.LevelWarn:
		return LevelWarn
	case slog.LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

// Close syncs and closes the log file, if any. The file is shared with
// every logger derived through With, so closing any of them closes it once.
// Safe to call more than once.
func (l *Logger) Close() error {
	l.file.mu.Lock()
	defer l.file.mu.Unlock()

	if l.file.f == nil {
		return nil
	}
	f := l.file.f
	l.file.f = nil

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync log file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}

// =============================================================================
// Handlers (Internal)
// =============================================================================

// traceHandler adds trace_id and span_id from the record's context.
type traceHandler struct {
	next slog.Handler
}

func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			r = r.Clone()
			r.AddAttrs(
				slog.String("trace_id", sc.TraceID().String()),
				slog.String("span_id", sc.SpanID().String()),
			)
		}
	}
	return h.next.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{next: h.next.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{next: h.next.WithGroup(name)}
}

// multiHandler fans records out to every enabled handler.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle writes to every enabled handler and returns the first error.
func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// =============================================================================
// Helper Functions
// =============================================================================

func useJSON(format Format, out io.Writer) bool {
	switch format {
	case FormatJSON:
		return true
	case FormatText:
		return false
	}
	if f, ok := out.(*os.File); ok {
		fd := f.Fd()
		return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
	}
	return true
}

func openLogFile(dir, service string) (*os.File, error) {
	dir = expandPath(dir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if service == "" {
		service = "pipelinecheck"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
