// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) lines() []string {
	s := strings.TrimSpace(b.String())
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func decodeLine(t *testing.T, line string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("invalid JSON log line %q: %v", line, err)
	}
	return m
}

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{Level(42), "level(42)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{" warn ", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"Error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Logger Tests
// =============================================================================

func TestNew_JSONIncludesService(t *testing.T) {
	var buf syncBuffer
	logger := New(Config{Service: "pipelinecheck", Format: FormatJSON, Output: &buf})

	logger.Info("server listening", "addr", ":8000")

	lines := buf.lines()
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	entry := decodeLine(t, lines[0])
	if entry["service"] != "pipelinecheck" {
		t.Errorf("service = %v, want pipelinecheck", entry["service"])
	}
	if entry["addr"] != ":8000" {
		t.Errorf("addr = %v, want :8000", entry["addr"])
	}
	if entry["msg"] != "server listening" {
		t.Errorf("msg = %v", entry["msg"])
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf syncBuffer
	logger := New(Config{Format: FormatText, Output: &buf})

	logger.Warn("slow request", "duration_ms", 1200)

	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "duration_ms=1200") {
		t.Errorf("unexpected text output: %q", out)
	}
}

func TestNew_AutoFormatNonTerminalIsJSON(t *testing.T) {
	var buf syncBuffer
	logger := New(Config{Output: &buf})

	logger.Info("hello")

	decodeLine(t, buf.lines()[0])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf syncBuffer
	logger := New(Config{Level: LevelWarn, Format: FormatJSON, Output: &buf})

	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")
	logger.Error("e")

	if got := len(buf.lines()); got != 2 {
		t.Errorf("got %d lines, want 2 (warn + error)", got)
	}
}

func TestLogger_SetLevelAffectsChildren(t *testing.T) {
	var buf syncBuffer
	logger := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})
	child := logger.With("handler", "HandleParse")

	child.Debug("hidden")
	logger.SetLevel(LevelDebug)
	child.Debug("visible")

	lines := buf.lines()
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	entry := decodeLine(t, lines[0])
	if entry["msg"] != "visible" || entry["handler"] != "HandleParse" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if child.Level() != LevelDebug {
		t.Errorf("child.Level() = %v, want debug", child.Level())
	}
}

func TestLogger_QuietDiscardsConsole(t *testing.T) {
	var buf syncBuffer
	logger := New(Config{Quiet: true, Output: &buf})

	logger.Error("nobody hears this")

	if buf.String() != "" {
		t.Errorf("quiet logger wrote %q", buf.String())
	}
}

func TestLogger_TraceCorrelation(t *testing.T) {
	var buf syncBuffer
	logger := New(Config{Format: FormatJSON, Output: &buf})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.Slog().InfoContext(ctx, "with span")
	logger.Slog().InfoContext(context.Background(), "without span")

	lines := buf.lines()
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	with := decodeLine(t, lines[0])
	if with["trace_id"] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace_id = %v", with["trace_id"])
	}
	if with["span_id"] != "00f067aa0ba902b7" {
		t.Errorf("span_id = %v", with["span_id"])
	}
	without := decodeLine(t, lines[1])
	if _, ok := without["trace_id"]; ok {
		t.Error("trace_id present without a span in context")
	}
}

func TestLogger_FileOutput(t *testing.T) {
	dir := t.TempDir()
	var buf syncBuffer
	logger := New(Config{Service: "svc", LogDir: dir, Format: FormatText, Output: &buf})

	logger.Info("to both")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "svc_*.log"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one log file, got %v (err %v)", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	entry := decodeLine(t, strings.TrimSpace(string(data)))
	if entry["msg"] != "to both" {
		t.Errorf("file entry msg = %v", entry["msg"])
	}
	if !strings.Contains(buf.String(), "to both") {
		t.Error("console did not receive the record")
	}
}

func TestLogger_ChildCloseClosesSharedFile(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Service: "svc", LogDir: dir, Quiet: true})
	child := logger.With("handler", "HandleParse")

	child.Info("from child")
	if err := child.Close(); err != nil {
		t.Fatalf("child Close() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("parent Close() after child Close() error = %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "svc_*.log"))
	if len(matches) != 1 {
		t.Fatalf("expected one log file, got %v", matches)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "from child") {
		t.Errorf("log file missing child record: %q", data)
	}
}

func TestLogger_UnwritableLogDirWarns(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	var buf syncBuffer
	logger := New(Config{LogDir: filepath.Join(blocker, "logs"), Format: FormatJSON, Output: &buf})
	defer logger.Close()

	if !strings.Contains(buf.String(), "file logging disabled") {
		t.Errorf("expected warning, got %q", buf.String())
	}
}

func TestLogger_ConcurrentUse(t *testing.T) {
	var buf syncBuffer
	logger := New(Config{Format: FormatJSON, Output: &buf})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.With("worker", n).Info("tick")
			if n%5 == 0 {
				logger.SetLevel(LevelInfo)
			}
		}(i)
	}
	wg.Wait()

	if got := len(buf.lines()); got != 20 {
		t.Errorf("got %d lines, want 20", got)
	}
}

// =============================================================================
// Handler Tests
// =============================================================================

func TestMultiHandler_FansOut(t *testing.T) {
	var a, b syncBuffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	}}
	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("k", "v")}))

	logger.Info("info only")
	logger.Error("both")

	if got := len(a.lines()); got != 2 {
		t.Errorf("handler a got %d lines, want 2", got)
	}
	if got := len(b.lines()); got != 1 {
		t.Errorf("handler b got %d lines, want 1", got)
	}
	if !strings.Contains(b.String(), `"k":"v"`) {
		t.Errorf("attrs not propagated: %q", b.String())
	}
}

func TestMultiHandler_Enabled(t *testing.T) {
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&syncBuffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Info should not be enabled")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("Error should be enabled")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	if got := expandPath("~/logs"); got != filepath.Join(home, "logs") {
		t.Errorf("expandPath(~/logs) = %q", got)
	}
	if got := expandPath("/var/log"); got != "/var/log" {
		t.Errorf("expandPath(/var/log) = %q", got)
	}
}
