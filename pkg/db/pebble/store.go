package pebble

import (
	"errors"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/eigerco/beacon/pkg/db"
)

// KVStore is a db.KVStore backed by pebble.
type KVStore struct {
	db     *pebble.DB
	closed bool
	mu     sync.RWMutex
}

var _ db.KVStore = (*KVStore)(nil)

// NewKVStore opens an in-memory store. It is used by tests and by nodes
// started without a data directory.
func NewKVStore() (*KVStore, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()})
}

// Open opens, or creates, the on-disk store at path.
func Open(path string) (*KVStore, error) {
	return open(path, &pebble.Options{
		Cache:        pebble.NewCache(64 * 1024 * 1024), // 64MB
		MemTableSize: 32 * 1024 * 1024,                  // 32MB
		// 4 queued memtables, 128MB, before writes stall
		MemTableStopWritesThreshold: 4,
	})
}

func open(path string, opts *pebble.Options) (*KVStore, error) {
	pdb, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}
	if opts.Cache != nil {
		// pebble holds its own reference
		opts.Cache.Unref()
	}
	return &KVStore{db: pdb}, nil
}

func (p *KVStore) Get(key []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrClosed
	}

	value, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close() //nolint:errcheck

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

func (p *KVStore) Has(key []byte) (bool, error) {
	_, err := p.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *KVStore) Put(key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	return p.db.Set(key, value, pebble.Sync)
}

func (p *KVStore) Delete(key []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	return p.db.Delete(key, pebble.Sync)
}

func (p *KVStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.db.Close()
}
