package events

import (
	"sync"

	"github.com/eigerco/beacon/internal/height"
)

// Sink receives the events of every committed transition in order
type Sink interface {
	Handle(h height.Height, evs []Event) error
}

// SinkFunc adapts a function to a Sink
type SinkFunc func(h height.Height, evs []Event) error

func (f SinkFunc) Handle(h height.Height, evs []Event) error {
	return f(h, evs)
}

// Bus fans events out to the subscribed sinks. The first sink error stops
// the delivery and is returned to the publisher.
type Bus struct {
	mu    sync.RWMutex
	sinks []Sink
}

func NewBus(sinks ...Sink) *Bus {
	return &Bus{sinks: sinks}
}

func (b *Bus) Subscribe(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

func (b *Bus) Publish(h height.Height, evs []Event) error {
	if len(evs) == 0 {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.sinks {
		if err := s.Handle(h, evs); err != nil {
			return err
		}
	}
	return nil
}
