// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
		{Level(-1), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"  error ", LevelError},
		{"verbose", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNew_DefaultConfig(t *testing.T) {
	logger := New(Config{})
	if logger == nil {
		t.Fatal("New returned nil")
	}
	if logger.slog == nil {
		t.Error("underlying slog logger is nil")
	}
	if logger.file != nil {
		t.Error("file should be nil without LogDir")
	}
}

func TestNew_WithLogDir(t *testing.T) {
	tmpDir := t.TempDir()

	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  tmpDir,
		Service: "bridge-test",
		Quiet:   true,
	})

	if logger.file == nil {
		t.Fatal("expected log file to be opened")
	}

	logger.Info("snapshot persisted", "project_id", "p1", "bytes", 512)

	wantName := "bridge-test_" + time.Now().Format("2006-01-02") + ".log"
	logPath := filepath.Join(tmpDir, wantName)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "snapshot persisted") {
		t.Errorf("log file missing message, got: %s", data)
	}
	if !strings.Contains(string(data), `"project_id":"p1"`) {
		t.Errorf("log file missing attribute, got: %s", data)
	}
}

func TestNew_WithLogDir_InvalidPath(t *testing.T) {
	// A file where the directory should be makes MkdirAll fail; the
	// logger must still come up with the remaining destinations.
	tmpDir := t.TempDir()
	blocker := filepath.Join(tmpDir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	logger := New(Config{LogDir: blocker, Quiet: true})
	defer logger.Close()

	if logger.file != nil {
		t.Error("file should be nil when directory creation fails")
	}
	logger.Info("still works")
}

func TestDefault(t *testing.T) {
	logger := Default()
	if logger == nil {
		t.Fatal("Default returned nil")
	}
	if logger.config.Service != "bridge" {
		t.Errorf("Default service = %q, want %q", logger.config.Service, "bridge")
	}
}

// =============================================================================
// Logging Method Tests
// =============================================================================

func TestLogger_LevelFiltering(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelWarn,
		Quiet:    true,
		Exporter: exporter,
	})

	logger.Debug("filtered debug")
	logger.Info("filtered info")
	logger.Warn("kept warn")
	logger.Error("kept error")

	time.Sleep(50 * time.Millisecond)

	entries := exporter.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d exported entries, want 2", len(entries))
	}
	if entries[0].Level != LevelWarn || entries[1].Level != LevelError {
		t.Errorf("unexpected levels: %v, %v", entries[0].Level, entries[1].Level)
	}
}

func TestLogger_With_SharesResources(t *testing.T) {
	tmpDir := t.TempDir()
	parent := New(Config{LogDir: tmpDir, Service: "shared", Quiet: true})
	defer parent.Close()

	child := parent.With("project_id", "p1")
	if child.file != parent.file {
		t.Error("child logger should share the parent's file handle")
	}
	if child.exporter != parent.exporter {
		t.Error("child logger should share the parent's exporter")
	}
}

func TestLogger_Component(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exporter, Service: "bridge"})

	logger.Component("client").Info("reconnect scheduled", "attempt", 3)

	time.Sleep(50 * time.Millisecond)

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	// The component attr rides through slog handler attrs; the export
	// map carries only per-call args.
	if entries[0].Attrs["attempt"] != 3 {
		t.Errorf("attempt attr = %v, want 3", entries[0].Attrs["attempt"])
	}
}

func TestLogger_ConcurrentUse(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exporter})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				logger.Info("concurrent", "goroutine", n, "iteration", j)
			}
		}(i)
	}
	wg.Wait()

	time.Sleep(100 * time.Millisecond)

	if got := len(exporter.Entries()); got != 200 {
		t.Errorf("got %d entries, want 200", got)
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestLogger_Close_NoResources(t *testing.T) {
	logger := New(Config{Quiet: true})
	if err := logger.Close(); err != nil {
		t.Errorf("Close() with no resources should not error: %v", err)
	}
}

func TestLogger_Close_WithFile(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Service: "closer", Quiet: true})

	logger.Info("before close")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	// Second close hits the already-closed file.
	if err := logger.Close(); err == nil {
		t.Error("second Close() should report the closed file")
	}
}

// =============================================================================
// Exporter Tests
// =============================================================================

func TestBufferedExporter_Entries_ReturnsCopy(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exporter})

	logger.Info("one")
	time.Sleep(50 * time.Millisecond)

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	entries[0].Message = "mutated"

	fresh := exporter.Entries()
	if fresh[0].Message != "one" {
		t.Error("Entries() must return a copy, not the internal buffer")
	}
}

func TestWriterExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	exporter := NewWriterExporter(&buf)
	logger := New(Config{Quiet: true, Exporter: exporter})

	logger.Warn("quota exceeded", "project_id", "p2")
	time.Sleep(50 * time.Millisecond)

	out := buf.String()
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "quota exceeded") {
		t.Errorf("unexpected writer output: %q", out)
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory in test environment")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~/logs", filepath.Join(home, "logs")},
		{"/var/log/bridge", "/var/log/bridge"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := expandPath(tt.in); got != tt.want {
			t.Errorf("expandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestArgsToMap(t *testing.T) {
	got := argsToMap([]any{"key1", "value1", "key2", 123, 42, "dropped", "dangling"})
	if len(got) != 2 {
		t.Fatalf("got %d keys, want 2: %v", len(got), got)
	}
	if got["key1"] != "value1" || got["key2"] != 123 {
		t.Errorf("unexpected map: %v", got)
	}
}
