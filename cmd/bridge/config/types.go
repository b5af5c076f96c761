// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and watches the bridge's YAML configuration.
//
// The file lives at ~/.aleutian/bridge.yaml by default and is created
// on first run. Most fields require a restart; the watcher applies the
// hot-reloadable subset (log level, debounce window) to a running
// daemon.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// BridgeConfig is the full configuration tree.
type BridgeConfig struct {
	Backend   BackendConfig   `yaml:"backend" validate:"required"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Logging   LoggingConfig   `yaml:"logging"`
	Session   SessionConfig   `yaml:"session"`
	Cache     CacheConfig     `yaml:"cache"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// BackendConfig locates the agent-orchestration backend.
type BackendConfig struct {
	// WebsocketURL is the duplex channel origin, e.g. "ws://localhost:9000/ws".
	WebsocketURL string `yaml:"websocket_url" validate:"required,url"`

	// APIURL is the HTTP fallback origin for project CRUD and reports.
	APIURL string `yaml:"api_url" validate:"required,url"`
}

// GatewayConfig controls the daemon's local JSON API.
type GatewayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" validate:"required_if=Enabled true"`
}

// LoggingConfig controls slog output. Level is hot-reloadable.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
	Quiet bool   `yaml:"quiet"`
}

// SessionConfig bounds the engine's timers. DebounceWindowMs is
// hot-reloadable; the 150ms-2s bounds keep downstream consumers
// neither thrashing nor visibly laggy.
type SessionConfig struct {
	StabilizationDelayMs int `yaml:"stabilization_delay_ms" validate:"gt=0"`
	SwitchTimeoutMs      int `yaml:"switch_timeout_ms" validate:"gt=0"`
	RestoreTimeoutMs     int `yaml:"restore_timeout_ms" validate:"gt=0"`
	DebounceWindowMs     int `yaml:"debounce_window_ms" validate:"gte=150,lte=2000"`
}

// CacheConfig controls the durable snapshot tier.
type CacheConfig struct {
	// Dir is the badger directory; empty disables durable caching.
	Dir string `yaml:"dir,omitempty"`

	// SnapshotLimitBytes skips durable writes for larger snapshots.
	SnapshotLimitBytes int64 `yaml:"snapshot_limit_bytes" validate:"gt=0"`

	// QuotaBytes bounds total durable snapshot usage.
	QuotaBytes int64 `yaml:"quota_bytes" validate:"gt=0"`
}

// TelemetryConfig controls exporters. Disabled means promauto metrics
// still register but no trace provider is installed.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	Stdout       bool   `yaml:"stdout"`
}

// DefaultConfig targets a local backend with durable caching on.
func DefaultConfig() BridgeConfig {
	return BridgeConfig{
		Backend: BackendConfig{
			WebsocketURL: "ws://localhost:9000/ws",
			APIURL:       "http://localhost:9000",
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8777",
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
		Session: SessionConfig{
			StabilizationDelayMs: 300,
			SwitchTimeoutMs:      10_000,
			RestoreTimeoutMs:     10_000,
			DebounceWindowMs:     250,
		},
		Cache: CacheConfig{
			Dir:                "", // resolved to ~/.aleutian/bridge/cache by the loader
			SnapshotLimitBytes: 2 * 1024 * 1024,
			QuotaBytes:         32 * 1024 * 1024,
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
			Stdout:  false,
		},
	}
}

var validate = validator.New()

// Validate checks the whole tree.
func (c BridgeConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("bridge config: %w", err)
	}
	return nil
}

// StabilizationDelay returns the session timer as a duration.
func (s SessionConfig) StabilizationDelay() time.Duration {
	return time.Duration(s.StabilizationDelayMs) * time.Millisecond
}

// SwitchTimeout returns the switch confirmation bound as a duration.
func (s SessionConfig) SwitchTimeout() time.Duration {
	return time.Duration(s.SwitchTimeoutMs) * time.Millisecond
}

// RestoreTimeout returns the restore confirmation bound as a duration.
func (s SessionConfig) RestoreTimeout() time.Duration {
	return time.Duration(s.RestoreTimeoutMs) * time.Millisecond
}

// DebounceWindow returns the coalescing window as a duration.
func (s SessionConfig) DebounceWindow() time.Duration {
	return time.Duration(s.DebounceWindowMs) * time.Millisecond
}
