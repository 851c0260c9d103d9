package db

// KVStore is the key-value storage the beacon state and event log are
// persisted on.
type KVStore interface {
	Reader
	Writer
	Delete(key []byte) error
	NewBatch() Batch
	NewIterator(start, end []byte) (Iterator, error)
	Close() error
}

type Reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
}

type Writer interface {
	Put(key []byte, value []byte) error
}

// Batch represents an atomic batch of operations.
// All operations in a batch are performed atomically.
type Batch interface {
	Writer
	Delete(key []byte) error
	Commit() error
	Close() error
}

// Iterator provides sequential access over a range of key-value pairs.
// Iterators must be closed after use.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() ([]byte, error)
	Valid() bool
	Close() error
}

// PrefixEnd returns the smallest key greater than every key starting with
// prefix, to be used as the exclusive upper bound of a range scan. A nil
// result means the range is unbounded.
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
