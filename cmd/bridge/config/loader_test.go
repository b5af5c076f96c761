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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	// The loader resolves empty directories before validation runs.
	applyDerivedDefaults(&cfg, "/tmp/bridge.yaml")
	assert.NoError(t, cfg.Validate())
}

func TestLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	want := DefaultConfig()
	want.Backend.WebsocketURL = "ws://backend.internal:9000/ws"
	want.Session.DebounceWindowMs = 500
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://backend.internal:9000/ws", got.Backend.WebsocketURL)
	assert.Equal(t, 500*time.Millisecond, got.Session.DebounceWindow())
	assert.NotEmpty(t, got.Cache.Dir, "empty cache dir resolved next to the config")
	assert.NotEmpty(t, got.Logging.Dir)
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*BridgeConfig)
	}{
		{"missing websocket url", func(c *BridgeConfig) { c.Backend.WebsocketURL = "" }},
		{"bad log level", func(c *BridgeConfig) { c.Logging.Level = "loud" }},
		{"debounce below floor", func(c *BridgeConfig) { c.Session.DebounceWindowMs = 50 }},
		{"debounce above ceiling", func(c *BridgeConfig) { c.Session.DebounceWindowMs = 5000 }},
		{"zero quota", func(c *BridgeConfig) { c.Cache.QuotaBytes = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bridge.yaml")
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			require.NoError(t, Save(path, cfg))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSave_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "bridge.yaml")
	require.NoError(t, Save(path, DefaultConfig()))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}
