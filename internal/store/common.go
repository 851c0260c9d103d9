package store

import (
	"encoding/binary"
	"errors"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrStoreClosed = errors.New("store is closed")
)

// Prefix constants for all store types
const (
	prefixSnapshot byte = iota + 1
	prefixTx
	prefixEvent
	prefixMeta
)

// PrefixToString converts a prefix byte to a string
func PrefixToString(p byte) string {
	switch p {
	case prefixSnapshot:
		return "snapshot"
	case prefixTx:
		return "tx"
	case prefixEvent:
		return "event"
	case prefixMeta:
		return "meta"
	default:
		return "unknown"
	}
}

// makeKey creates a key from a prefix and a suffix
func makeKey(prefix byte, suffix []byte) []byte {
	key := make([]byte, 1+len(suffix))
	key[0] = prefix
	copy(key[1:], suffix)
	return key
}

// seqKey encodes n big endian so that keys sort in numeric order
func seqKey(prefix byte, n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return makeKey(prefix, b[:])
}

func keySeq(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[1:9])
}
