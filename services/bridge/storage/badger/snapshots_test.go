// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianBridge/services/bridge/taskgraph"
)

func createTestStore(t *testing.T, cfg SnapshotStoreConfig) *SnapshotStore {
	t.Helper()

	raw, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	store, err := NewSnapshotStore(&DB{DB: raw, inMemory: true}, cfg)
	require.NoError(t, err)
	return store
}

func snapshotWithGoal(projectID, goal string) *taskgraph.Snapshot {
	return taskgraph.NewSnapshot(projectID, goal, map[string]taskgraph.TaskNode{
		"n1": {ID: "n1", Goal: "first step", Status: taskgraph.StatusPending, Layer: 0},
	})
}

// TestSnapshotStore_SaveLoad verifies the round trip.
func TestSnapshotStore_SaveLoad(t *testing.T) {
	store := createTestStore(t, DefaultSnapshotStoreConfig())
	ctx := context.Background()

	snap := snapshotWithGoal("proj-1", "summarize repo")
	require.NoError(t, store.Save(ctx, snap))

	got, err := store.Load(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "proj-1", got.ProjectID)
	assert.Equal(t, "summarize repo", got.OverallGoal)
	assert.Equal(t, 1, got.NodeCount())
	assert.Positive(t, store.Usage())
}

// TestSnapshotStore_LoadMissing verifies the not-found sentinel.
func TestSnapshotStore_LoadMissing(t *testing.T) {
	store := createTestStore(t, DefaultSnapshotStoreConfig())

	_, err := store.Load(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

// TestSnapshotStore_TooLarge verifies oversized snapshots are refused
// without touching usage.
func TestSnapshotStore_TooLarge(t *testing.T) {
	cfg := SnapshotStoreConfig{MaxSnapshotBytes: 256, QuotaBytes: 4096}
	store := createTestStore(t, cfg)

	big := snapshotWithGoal("proj-big", strings.Repeat("g", 512))
	err := store.Save(context.Background(), big)

	assert.ErrorIs(t, err, ErrSnapshotTooLarge)
	assert.Zero(t, store.Usage())
}

// TestSnapshotStore_Quota verifies the budget check and that deleting
// frees room for a retry.
func TestSnapshotStore_Quota(t *testing.T) {
	cfg := SnapshotStoreConfig{MaxSnapshotBytes: 1024, QuotaBytes: 1280}
	store := createTestStore(t, cfg)
	ctx := context.Background()

	first := snapshotWithGoal("proj-a", strings.Repeat("a", 500))
	require.NoError(t, store.Save(ctx, first))

	second := snapshotWithGoal("proj-b", strings.Repeat("b", 500))
	err := store.Save(ctx, second)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	// Overwriting the existing project must count the delta, not the sum.
	firstSmaller := snapshotWithGoal("proj-a", "tiny")
	require.NoError(t, store.Save(ctx, firstSmaller))

	require.NoError(t, store.Save(ctx, second), "freed bytes admit the retry")
}

// TestSnapshotStore_Delete verifies removal is idempotent and releases
// quota.
func TestSnapshotStore_Delete(t *testing.T) {
	store := createTestStore(t, DefaultSnapshotStoreConfig())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, snapshotWithGoal("proj-1", "goal")))
	used := store.Usage()
	require.Positive(t, used)

	require.NoError(t, store.Delete(ctx, "proj-1"))
	assert.Zero(t, store.Usage())

	require.NoError(t, store.Delete(ctx, "proj-1"), "second delete is a no-op")

	_, err := store.Load(ctx, "proj-1")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

// TestSnapshotStore_List verifies summaries for each stored project.
func TestSnapshotStore_List(t *testing.T) {
	store := createTestStore(t, DefaultSnapshotStoreConfig())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, snapshotWithGoal("proj-a", "goal a")))
	require.NoError(t, store.Save(ctx, snapshotWithGoal("proj-b", "goal b")))

	infos, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	byID := make(map[string]SnapshotInfo)
	for _, info := range infos {
		byID[info.ProjectID] = info
	}
	assert.Equal(t, "goal a", byID["proj-a"].OverallGoal)
	assert.Equal(t, 1, byID["proj-a"].NodeCount)
	assert.Positive(t, byID["proj-a"].SizeBytes)
	assert.Positive(t, byID["proj-a"].SavedAtMs)
}

// TestSnapshotStore_SeedsUsageFromDisk verifies a reopened store
// accounts for existing snapshots.
func TestSnapshotStore_SeedsUsageFromDisk(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Path = dir
	cfg.GCInterval = 0
	ctx := context.Background()

	db, err := OpenDB(cfg)
	require.NoError(t, err)

	store, err := NewSnapshotStore(db, DefaultSnapshotStoreConfig())
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, snapshotWithGoal("proj-1", "goal")))
	used := store.Usage()
	require.NoError(t, db.Close())

	db, err = OpenDB(cfg)
	require.NoError(t, err)
	defer db.Close()

	reopened, err := NewSnapshotStore(db, DefaultSnapshotStoreConfig())
	require.NoError(t, err)
	assert.Equal(t, used, reopened.Usage())
}

// TestNewSnapshotStore_Validation verifies bound checks.
func TestNewSnapshotStore_Validation(t *testing.T) {
	raw, err := OpenInMemory()
	require.NoError(t, err)
	defer raw.Close()
	db := &DB{DB: raw, inMemory: true}

	_, err = NewSnapshotStore(nil, DefaultSnapshotStoreConfig())
	assert.Error(t, err)

	_, err = NewSnapshotStore(db, SnapshotStoreConfig{MaxSnapshotBytes: 0, QuotaBytes: 10})
	assert.Error(t, err)

	_, err = NewSnapshotStore(db, SnapshotStoreConfig{MaxSnapshotBytes: 20, QuotaBytes: 10})
	assert.Error(t, err)
}
