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
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, Save(path, DefaultConfig()))

	var mu sync.Mutex
	var reloaded []BridgeConfig
	w, err := NewWatcher(path, func(cfg BridgeConfig) {
		mu.Lock()
		reloaded = append(reloaded, cfg)
		mu.Unlock()
	}, nil)
	require.NoError(t, err)
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	// Give the watcher a beat to register before writing.
	time.Sleep(100 * time.Millisecond)

	updated := DefaultConfig()
	updated.Logging.Level = "debug"
	updated.Session.DebounceWindowMs = 400
	require.NoError(t, Save(path, updated))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reloaded) >= 1
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	last := reloaded[len(reloaded)-1]
	mu.Unlock()
	assert.Equal(t, "debug", last.Logging.Level)
	assert.Equal(t, 400, last.Session.DebounceWindowMs)
}

func TestWatcher_SkipsInvalidReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, Save(path, DefaultConfig()))

	var mu sync.Mutex
	calls := 0
	w, err := NewWatcher(path, func(BridgeConfig) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, nil)
	require.NoError(t, err)
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	broken := DefaultConfig()
	broken.Session.DebounceWindowMs = 1 // below the configured floor
	require.NoError(t, Save(path, broken))

	// The invalid write must not reach the handler.
	time.Sleep(500 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 0, calls)
	mu.Unlock()
}

func TestNewWatcher_Validation(t *testing.T) {
	_, err := NewWatcher("", func(BridgeConfig) {}, nil)
	assert.Error(t, err)

	_, err = NewWatcher("/tmp/bridge.yaml", nil, nil)
	assert.Error(t, err)
}
