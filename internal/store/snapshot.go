package store

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"

	"github.com/eigerco/beacon/internal/height"
	"github.com/eigerco/beacon/internal/statetransition"
	"github.com/eigerco/beacon/pkg/db"
	"github.com/eigerco/beacon/pkg/db/pebble"
	"github.com/eigerco/beacon/pkg/log"
)

var latestSnapshotKey = makeKey(prefixMeta, []byte("latest-snapshot"))

// Snapshot is the state after the transaction with sequence number Seq
type Snapshot struct {
	Seq    uint64
	Height height.Height
	State  statetransition.State
}

// Snapshots persists full state snapshots keyed by sequence number
type Snapshots struct {
	db     db.KVStore
	closed atomic.Bool
}

func NewSnapshots(db db.KVStore) *Snapshots {
	return &Snapshots{db: db}
}

// Put stores a snapshot and marks it as the latest one atomically
func (s *Snapshots) Put(snap Snapshot) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	bytes, err := cbor.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close() //nolint:errcheck

	key := seqKey(prefixSnapshot, snap.Seq)
	if err := batch.Put(key, bytes); err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	if err := batch.Put(latestSnapshotKey, key[1:]); err != nil {
		return fmt.Errorf("put latest snapshot: %w", err)
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	log.Store.Debug().Uint64("seq", snap.Seq).Uint64("height", uint64(snap.Height)).Int("size", len(bytes)).Msg("snapshot stored")
	return nil
}

// Get returns the snapshot taken at seq
func (s *Snapshots) Get(seq uint64) (Snapshot, error) {
	if s.closed.Load() {
		return Snapshot{}, ErrStoreClosed
	}
	return s.get(seqKey(prefixSnapshot, seq))
}

func (s *Snapshots) get(key []byte) (Snapshot, error) {
	bytes, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	var snap Snapshot
	if err := cbor.Unmarshal(bytes, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// Latest returns the most recent snapshot, ErrNotFound when none was
// taken yet
func (s *Snapshots) Latest() (Snapshot, error) {
	if s.closed.Load() {
		return Snapshot{}, ErrStoreClosed
	}
	suffix, err := s.db.Get(latestSnapshotKey)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("get latest snapshot: %w", err)
	}
	return s.get(makeKey(prefixSnapshot, suffix))
}

// PruneBefore removes every snapshot older than seq
func (s *Snapshots) PruneBefore(seq uint64) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	iter, err := s.db.NewIterator([]byte{prefixSnapshot}, seqKey(prefixSnapshot, seq))
	if err != nil {
		return fmt.Errorf("create iterator: %w", err)
	}
	defer func() {
		if err := iter.Close(); err != nil {
			log.Store.Warn().Err(err).Msg("close iterator")
		}
	}()

	// Use batch for atomic deletion of all keys
	batch := s.db.NewBatch()
	defer func() {
		if err := batch.Close(); err != nil {
			log.Store.Warn().Err(err).Msg("close batch")
		}
	}()

	for iter.Next() {
		if err := batch.Delete(iter.Key()); err != nil {
			return fmt.Errorf("batch delete key: %w", err)
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Close closes the underlying store
func (s *Snapshots) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
