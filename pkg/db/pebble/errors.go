package pebble

import "errors"

var (
	ErrClosed          = errors.New("kv-store: database is closed")
	ErrNotFound        = errors.New("kv-store: key not found")
	ErrBatchDone       = errors.New("kv-store: batch already committed or closed")
	ErrIteratorInvalid = errors.New("kv-store: iterator is not positioned on a key")
)

const (
	ErrInIteratorCreation = "kv-store: create iterator: %w"
	ErrIteratorValue      = "kv-store: read iterator value: %w"
)
