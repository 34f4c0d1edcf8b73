// Package store provides kvdb-backed persistence for a
// checkpoint.CheckpointQueue, grounded on channeldb's bolt-backed DB type:
// a thin wrapper around a kvdb.Backend plus a handful of bucket-scoped
// accessors, rather than an ORM or generic object store.
//
// The queue itself never touches a database; DB snapshots it to (and
// restores it from) kvdb on whatever cadence the caller chooses;
// cmd/checkpointctl's serve loop persists after every scheduler tick.
package store

import (
	"fmt"

	"github.com/lightningnetwork/lnd/kvdb"

	"github.com/umbracustody/checkpointqueue/checkpoint"
)

var (
	// checkpointsBucket holds one serialized checkpoint per logical
	// index, big-endian encoded, so cursor order matches logical order.
	checkpointsBucket = []byte("checkpoints")

	// metaBucket holds the single top-level scalar this package
	// persists outside of the per-checkpoint records: the logical index
	// of the newest checkpoint.
	metaBucket = []byte("checkpoint-meta")

	indexKey = []byte("index")
)

// DB wraps a kvdb.Backend with the bucket layout this package defines. The
// backend is opened by the caller (e.g. via kvdb.Create("bdb", dbPath,
// noFreelistSync, timeout) for the bbolt backend lnd itself defaults to)
// so that store stays agnostic to which kvdb backend is in use.
type DB struct {
	backend kvdb.Backend
}

// Open wraps an already-opened kvdb.Backend and ensures this package's
// top-level buckets exist.
func Open(backend kvdb.Backend) (*DB, error) {
	db := &DB{backend: backend}

	err := kvdb.Update(db.backend, func(tx kvdb.RwTx) error {
		if _, err := tx.CreateTopLevelBucket(checkpointsBucket); err != nil {
			return fmt.Errorf("creating checkpoints bucket: %w", err)
		}
		if _, err := tx.CreateTopLevelBucket(metaBucket); err != nil {
			return fmt.Errorf("creating meta bucket: %w", err)
		}
		return nil
	}, func() {})
	if err != nil {
		return nil, err
	}

	return db, nil
}

// Close releases the underlying backend.
func (db *DB) Close() error {
	return db.backend.Close()
}

// PutQueue persists the full state of q: every checkpoint in its backing
// slice plus the logical index of the newest one. It overwrites whatever
// was previously stored, matching the queue's own append-only semantics —
// nothing is ever deleted once written, since q's Snapshot never shrinks.
func (db *DB) PutQueue(q *checkpoint.CheckpointQueue) error {
	index, checkpoints := q.Snapshot()

	return kvdb.Update(db.backend, func(tx kvdb.RwTx) error {
		cpBucket := tx.ReadWriteBucket(checkpointsBucket)
		metaB := tx.ReadWriteBucket(metaBucket)

		for logical, cp := range indexedFrom(index, checkpoints) {
			raw, err := encodeCheckpoint(cp)
			if err != nil {
				return fmt.Errorf("encoding checkpoint %d: %w", logical, err)
			}
			if err := cpBucket.Put(indexToBytes(logical), raw); err != nil {
				return fmt.Errorf("storing checkpoint %d: %w", logical, err)
			}
		}

		return metaB.Put(indexKey, indexToBytes(index))
	}, func() {})
}

// FetchQueue reconstructs a CheckpointQueue from whatever this DB has
// persisted. It returns a fresh, empty queue (logical index 0, no
// checkpoints) if nothing has been persisted yet.
func (db *DB) FetchQueue(cfg *checkpoint.Config) (*checkpoint.CheckpointQueue, error) {
	var (
		index       uint32
		checkpoints []*checkpoint.Checkpoint
		found       bool
	)

	err := kvdb.View(db.backend, func(tx kvdb.RTx) error {
		metaB := tx.ReadBucket(metaBucket)
		raw := metaB.Get(indexKey)
		if raw == nil {
			return nil
		}
		found = true
		index = bytesToIndex(raw)

		cpBucket := tx.ReadBucket(checkpointsBucket)
		return cpBucket.ForEach(func(k, v []byte) error {
			cp, err := decodeCheckpoint(v)
			if err != nil {
				return fmt.Errorf("decoding checkpoint %x: %w", k, err)
			}
			checkpoints = append(checkpoints, cp)
			return nil
		})
	}, func() {})
	if err != nil {
		return nil, err
	}
	if !found {
		return checkpoint.New(cfg), nil
	}

	// ForEach walks the bucket in key order, which is logical-index
	// order since keys are big-endian encoded.
	return checkpoint.Restore(cfg, index, checkpoints), nil
}

// indexedFrom pairs each checkpoint in checkpoints (oldest first) with its
// logical index, given the logical index of the newest one.
func indexedFrom(newest uint32, checkpoints []*checkpoint.Checkpoint) map[uint32]*checkpoint.Checkpoint {
	out := make(map[uint32]*checkpoint.Checkpoint, len(checkpoints))
	start := newest + 1 - uint32(len(checkpoints))
	for i, cp := range checkpoints {
		out[start+uint32(i)] = cp
	}
	return out
}
