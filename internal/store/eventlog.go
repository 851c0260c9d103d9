package store

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"

	"github.com/eigerco/beacon/internal/events"
	"github.com/eigerco/beacon/internal/height"
	"github.com/eigerco/beacon/pkg/db"
)

// RecordedEvent is an event read back from the log. Body is the cbor
// encoding of the concrete event named by Name.
type RecordedEvent struct {
	Height height.Height
	Name   string
	Body   cbor.RawMessage
}

type storedEvent struct {
	Name string
	Body cbor.RawMessage
}

// EventLog keeps every emitted event ordered by height and emission order.
// It is meant to be subscribed to the event bus.
type EventLog struct {
	db     db.KVStore
	closed atomic.Bool

	mu   sync.Mutex
	next map[height.Height]uint32
}

var _ events.Sink = (*EventLog)(nil)

func NewEventLog(db db.KVStore) *EventLog {
	return &EventLog{db: db, next: make(map[height.Height]uint32)}
}

// eventKey is [prefix][height 8 bytes][index 4 bytes]
func eventKey(h height.Height, index uint32) []byte {
	key := make([]byte, 1+8+4)
	key[0] = prefixEvent
	binary.BigEndian.PutUint64(key[1:], uint64(h))
	binary.BigEndian.PutUint32(key[9:], index)
	return key
}

// Handle appends evs after the events already stored at h
func (l *EventLog) Handle(h height.Height, evs []events.Event) error {
	if l.closed.Load() {
		return ErrStoreClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	index, err := l.nextIndex(h)
	if err != nil {
		return err
	}

	batch := l.db.NewBatch()
	defer batch.Close() //nolint:errcheck

	for _, ev := range evs {
		body, err := cbor.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", ev.Name(), err)
		}
		bytes, err := cbor.Marshal(storedEvent{Name: ev.Name(), Body: body})
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if err := batch.Put(eventKey(h, index), bytes); err != nil {
			return fmt.Errorf("put event: %w", err)
		}
		index++
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	// only the latest height keeps receiving events
	clear(l.next)
	l.next[h] = index
	return nil
}

func (l *EventLog) nextIndex(h height.Height) (uint32, error) {
	if n, ok := l.next[h]; ok {
		return n, nil
	}
	var n uint32
	err := l.scan(h, h+1, func(RecordedEvent) error {
		n++
		return nil
	})
	return n, err
}

// Range returns the events stored at heights in [from, to)
func (l *EventLog) Range(from, to height.Height) ([]RecordedEvent, error) {
	if l.closed.Load() {
		return nil, ErrStoreClosed
	}
	var out []RecordedEvent
	err := l.scan(from, to, func(ev RecordedEvent) error {
		out = append(out, ev)
		return nil
	})
	return out, err
}

func (l *EventLog) scan(from, to height.Height, fn func(RecordedEvent) error) error {
	iter, err := l.db.NewIterator(eventKey(from, 0), eventKey(to, 0))
	if err != nil {
		return fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close() //nolint:errcheck

	for iter.Next() {
		value, err := iter.Value()
		if err != nil {
			return fmt.Errorf("get iterator value: %w", err)
		}
		var se storedEvent
		if err := cbor.Unmarshal(value, &se); err != nil {
			return fmt.Errorf("unmarshal event: %w", err)
		}
		h := height.Height(binary.BigEndian.Uint64(iter.Key()[1:9]))
		if err := fn(RecordedEvent{Height: h, Name: se.Name, Body: se.Body}); err != nil {
			return err
		}
	}
	return nil
}

func (l *EventLog) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	return l.db.Close()
}
