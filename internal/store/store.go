package store

import "github.com/eigerco/beacon/pkg/db"

// Store groups the stores a node keeps on a single KV store
type Store struct {
	db        db.KVStore
	Snapshots *Snapshots
	Txs       *TxLog
	Events    *EventLog
}

func New(kv db.KVStore) *Store {
	return &Store{
		db:        kv,
		Snapshots: NewSnapshots(kv),
		Txs:       NewTxLog(kv),
		Events:    NewEventLog(kv),
	}
}

// Close closes every store and the KV store below them once
func (s *Store) Close() error {
	s.Snapshots.closed.Store(true)
	s.Txs.closed.Store(true)
	s.Events.closed.Store(true)
	return s.db.Close()
}
