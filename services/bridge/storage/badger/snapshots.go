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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianBridge/services/bridge/taskgraph"
)

// Sentinel errors for the snapshot tier. The project cache keys its
// evict-and-retry behavior off ErrQuotaExceeded.
var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrSnapshotTooLarge = errors.New("snapshot exceeds size threshold")
	ErrQuotaExceeded    = errors.New("snapshot quota exceeded")
)

const snapshotKeyPrefix = "snapshot:"

// SnapshotStoreConfig bounds the durable snapshot tier.
type SnapshotStoreConfig struct {
	// MaxSnapshotBytes is the per-snapshot serialized size cap. Larger
	// snapshots stay memory-only. Default 2 MiB.
	MaxSnapshotBytes int64

	// QuotaBytes is the total byte budget across all stored snapshots.
	// Default 32 MiB.
	QuotaBytes int64
}

// DefaultSnapshotStoreConfig returns the standard bounds.
func DefaultSnapshotStoreConfig() SnapshotStoreConfig {
	return SnapshotStoreConfig{
		MaxSnapshotBytes: 2 << 20,
		QuotaBytes:       32 << 20,
	}
}

// SnapshotInfo summarizes one stored snapshot without loading its nodes
// into the caller's world.
type SnapshotInfo struct {
	ProjectID   string `json:"project_id"`
	OverallGoal string `json:"overall_goal"`
	NodeCount   int    `json:"node_count"`
	SizeBytes   int64  `json:"size_bytes"`
	SavedAtMs   int64  `json:"saved_at_ms"`
}

// SnapshotStore persists project graph snapshots in the warm tier.
//
// # Description
//
// Values are JSON-encoded taskgraph.Snapshot blobs keyed by project id.
// The store enforces two bounds: a per-snapshot size threshold (huge
// graphs stay memory-only rather than churning the value log) and a
// total quota. Both violations surface as sentinel errors; the caller
// owns the policy for what to do about them.
//
// # Thread Safety
//
// Safe for concurrent use. Usage accounting is serialized internally.
type SnapshotStore struct {
	db  *DB
	cfg SnapshotStoreConfig

	mu    sync.Mutex
	sizes map[string]int64
	total int64
}

// NewSnapshotStore wraps an open DB as the snapshot tier. It scans the
// snapshot keyspace once to seed quota accounting.
func NewSnapshotStore(db *DB, cfg SnapshotStoreConfig) (*SnapshotStore, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if cfg.MaxSnapshotBytes <= 0 || cfg.QuotaBytes <= 0 {
		return nil, errors.New("size bounds must be positive")
	}
	if cfg.MaxSnapshotBytes > cfg.QuotaBytes {
		return nil, errors.New("per-snapshot threshold cannot exceed the quota")
	}

	s := &SnapshotStore{
		db:    db,
		cfg:   cfg,
		sizes: make(map[string]int64),
	}
	if err := s.seedUsage(); err != nil {
		return nil, fmt.Errorf("scanning snapshot keyspace: %w", err)
	}
	return s, nil
}

func (s *SnapshotStore) seedUsage() error {
	return s.db.WithReadTxn(context.Background(), func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(snapshotKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			id := strings.TrimPrefix(string(item.Key()), snapshotKeyPrefix)
			size := item.ValueSize()
			s.sizes[id] = size
			s.total += size
		}
		return nil
	})
}

func snapshotKey(projectID string) []byte {
	return []byte(snapshotKeyPrefix + projectID)
}

// Save writes one project's snapshot, overwriting any previous value.
//
// Returns ErrSnapshotTooLarge when the serialized form exceeds the
// per-snapshot threshold and ErrQuotaExceeded when writing it would
// push the tier past its byte budget. Neither error mutates the store.
func (s *SnapshotStore) Save(ctx context.Context, snap *taskgraph.Snapshot) error {
	if snap == nil || snap.ProjectID == "" {
		return errors.New("snapshot must carry a project id")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot for %s: %w", snap.ProjectID, err)
	}
	size := int64(len(data))

	if size > s.cfg.MaxSnapshotBytes {
		return fmt.Errorf("%w: %s is %d bytes (threshold %d)",
			ErrSnapshotTooLarge, snap.ProjectID, size, s.cfg.MaxSnapshotBytes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.sizes[snap.ProjectID]
	if s.total-prev+size > s.cfg.QuotaBytes {
		return fmt.Errorf("%w: %d bytes in use, %d requested (quota %d)",
			ErrQuotaExceeded, s.total-prev, size, s.cfg.QuotaBytes)
	}

	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(snap.ProjectID), data)
	})
	if err != nil {
		return fmt.Errorf("writing snapshot for %s: %w", snap.ProjectID, err)
	}

	s.sizes[snap.ProjectID] = size
	s.total += size - prev
	return nil
}

// Load reads one project's snapshot. Missing projects return
// ErrSnapshotNotFound.
func (s *SnapshotStore) Load(ctx context.Context, projectID string) (*taskgraph.Snapshot, error) {
	var snap taskgraph.Snapshot
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(projectID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, projectID)
		}
		return nil, fmt.Errorf("reading snapshot for %s: %w", projectID, err)
	}
	return &snap, nil
}

// Delete removes one project's snapshot. Deleting an absent project is
// a no-op.
func (s *SnapshotStore) Delete(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Delete(snapshotKey(projectID))
	})
	if err != nil {
		return fmt.Errorf("deleting snapshot for %s: %w", projectID, err)
	}

	if prev, ok := s.sizes[projectID]; ok {
		s.total -= prev
		delete(s.sizes, projectID)
	}
	return nil
}

// List summarizes every stored snapshot.
func (s *SnapshotStore) List(ctx context.Context) ([]SnapshotInfo, error) {
	var infos []SnapshotInfo
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(snapshotKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			id := strings.TrimPrefix(string(item.Key()), snapshotKeyPrefix)

			var snap taskgraph.Snapshot
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &snap)
			})
			if err != nil {
				// A corrupt entry should not hide the healthy ones.
				infos = append(infos, SnapshotInfo{ProjectID: id, SizeBytes: item.ValueSize()})
				continue
			}
			infos = append(infos, SnapshotInfo{
				ProjectID:   id,
				OverallGoal: snap.OverallGoal,
				NodeCount:   snap.NodeCount(),
				SizeBytes:   item.ValueSize(),
				SavedAtMs:   snap.SavedAtMs,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return infos, nil
}

// Usage returns the bytes currently attributed to stored snapshots.
func (s *SnapshotStore) Usage() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Quota returns the configured byte budget.
func (s *SnapshotStore) Quota() int64 {
	return s.cfg.QuotaBytes
}
