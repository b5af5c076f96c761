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
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOpenInMemory verifies in-memory database creation works.
func TestOpenInMemory(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	err = db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("key"), []byte("value"))
	})
	require.NoError(t, err)

	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("key"))
		require.NoError(t, err)

		return item.Value(func(val []byte) error {
			assert.Equal(t, []byte("value"), val)
			return nil
		})
	})
	require.NoError(t, err)
}

// TestOpen_RequiresPath verifies persistent mode rejects an empty path.
func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{InMemory: false})
	assert.Error(t, err)
}

// TestOpenDB_Persistent verifies data survives a close/reopen cycle.
func TestOpenDB_Persistent(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Path = dir
	cfg.GCInterval = 0

	db, err := OpenDB(cfg)
	require.NoError(t, err)
	assert.Equal(t, dir, db.Path())
	assert.False(t, db.InMemory())

	err = db.WithTxn(context.Background(), func(txn *badger.Txn) error {
		return txn.Set([]byte("persistent-key"), []byte("persistent-value"))
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenDB(cfg)
	require.NoError(t, err)
	defer db.Close()

	err = db.WithReadTxn(context.Background(), func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("persistent-key"))
		require.NoError(t, err)
		return item.Value(func(val []byte) error {
			assert.Equal(t, []byte("persistent-value"), val)
			return nil
		})
	})
	require.NoError(t, err)
}

// TestWithTxn_ContextCancelled verifies transactions refuse dead contexts.
func TestWithTxn_ContextCancelled(t *testing.T) {
	raw, err := OpenInMemory()
	require.NoError(t, err)
	defer raw.Close()
	db := &DB{DB: raw, inMemory: true}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = db.WithTxn(ctx, func(txn *badger.Txn) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)

	err = db.WithReadTxn(ctx, func(txn *badger.Txn) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

// TestWithTxn_RollsBackOnError verifies a failed txn leaves no writes.
func TestWithTxn_RollsBackOnError(t *testing.T) {
	raw, err := OpenInMemory()
	require.NoError(t, err)
	defer raw.Close()
	db := &DB{DB: raw, inMemory: true}

	sentinel := assert.AnError
	err = db.WithTxn(context.Background(), func(txn *badger.Txn) error {
		if err := txn.Set([]byte("doomed"), []byte("x")); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	err = db.WithReadTxn(context.Background(), func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("doomed"))
		return err
	})
	assert.ErrorIs(t, err, badger.ErrKeyNotFound)
}

// TestGCRunner_StartStop verifies the runner stops cleanly and twice.
func TestGCRunner_StartStop(t *testing.T) {
	raw, err := OpenInMemory()
	require.NoError(t, err)
	defer raw.Close()

	runner, err := NewGCRunner(raw, 10, 0.5, nil)
	require.NoError(t, err)

	runner.Start()
	runner.Stop()
	runner.Stop()
}

// TestNewGCRunner_Validation verifies input checks.
func TestNewGCRunner_Validation(t *testing.T) {
	raw, err := OpenInMemory()
	require.NoError(t, err)
	defer raw.Close()

	_, err = NewGCRunner(nil, 10, 0.5, nil)
	assert.Error(t, err)
	_, err = NewGCRunner(raw, 0, 0.5, nil)
	assert.Error(t, err)
	_, err = NewGCRunner(raw, 10, 1.5, nil)
	assert.Error(t, err)
}
