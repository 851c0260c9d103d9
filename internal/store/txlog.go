package store

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
	"github.com/holiman/uint256"

	"github.com/eigerco/beacon/internal/height"
	"github.com/eigerco/beacon/internal/statetransition"
	"github.com/eigerco/beacon/pkg/db"
	"github.com/eigerco/beacon/pkg/db/pebble"
)

var lastTxKey = makeKey(prefixMeta, []byte("last-tx"))

// Record is an applied transaction and the environment it ran in
type Record struct {
	Seq       uint64
	Height    height.Height
	Timestamp int64
	GasPrice  uint256.Int
	Tx        []byte
}

// Env returns the environment the transaction was applied with
func (r Record) Env() statetransition.Env {
	return statetransition.Env{Height: r.Height, Timestamp: r.Timestamp, GasPrice: r.GasPrice}
}

// Decode returns the logged transaction
func (r Record) Decode() (statetransition.Tx, error) {
	return statetransition.DecodeTx(r.Tx)
}

// NewRecord encodes tx for the log
func NewRecord(seq uint64, tx statetransition.Tx, env statetransition.Env) (Record, error) {
	bytes, err := statetransition.EncodeTx(tx)
	if err != nil {
		return Record{}, err
	}
	return Record{Seq: seq, Height: env.Height, Timestamp: env.Timestamp, GasPrice: env.GasPrice, Tx: bytes}, nil
}

// TxLog is the ordered log of applied transactions. Replaying it on top of
// a snapshot rebuilds the state.
type TxLog struct {
	db     db.KVStore
	closed atomic.Bool
}

func NewTxLog(db db.KVStore) *TxLog {
	return &TxLog{db: db}
}

// Append stores a record under its sequence number
func (l *TxLog) Append(r Record) error {
	if l.closed.Load() {
		return ErrStoreClosed
	}
	bytes, err := cbor.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	batch := l.db.NewBatch()
	defer batch.Close() //nolint:errcheck

	key := seqKey(prefixTx, r.Seq)
	if err := batch.Put(key, bytes); err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	if err := batch.Put(lastTxKey, key[1:]); err != nil {
		return fmt.Errorf("put last record: %w", err)
	}
	return batch.Commit()
}

// Get retrieves the record with sequence number seq
func (l *TxLog) Get(seq uint64) (Record, error) {
	if l.closed.Load() {
		return Record{}, ErrStoreClosed
	}
	bytes, err := l.db.Get(seqKey(prefixTx, seq))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get record: %w", err)
	}
	var r Record
	if err := cbor.Unmarshal(bytes, &r); err != nil {
		return Record{}, fmt.Errorf("unmarshal record: %w", err)
	}
	return r, nil
}

// Range calls fn for every record with a sequence number of at least from,
// in order. It stops at the first error fn returns.
func (l *TxLog) Range(from uint64, fn func(Record) error) error {
	if l.closed.Load() {
		return ErrStoreClosed
	}
	iter, err := l.db.NewIterator(seqKey(prefixTx, from), []byte{prefixTx + 1})
	if err != nil {
		return fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close() //nolint:errcheck

	for iter.Next() {
		value, err := iter.Value()
		if err != nil {
			return fmt.Errorf("get iterator value: %w", err)
		}
		var r Record
		if err := cbor.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("unmarshal record: %w", err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// Last returns the sequence number of the latest appended record,
// ErrNotFound when the log is empty
func (l *TxLog) Last() (uint64, error) {
	if l.closed.Load() {
		return 0, ErrStoreClosed
	}
	suffix, err := l.db.Get(lastTxKey)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("get last record: %w", err)
	}
	return keySeq(makeKey(prefixTx, suffix)), nil
}

func (l *TxLog) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	return l.db.Close()
}
