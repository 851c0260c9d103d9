package protocol

import (
	"context"
	"fmt"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/eigerco/beacon/internal/crypto/ed25519"
)

// StreamKind is the first byte written on every stream
type StreamKind byte

// Every beacon stream is ephemeral: one request, one response, FIN
const (
	StreamKindTicketSubmit      StreamKind = 128
	StreamKindDKGResultSubmit   StreamKind = 129
	StreamKindRelayEntrySubmit  StreamKind = 130
	StreamKindRelayEntryRequest StreamKind = 131
	StreamKindStatusRequest     StreamKind = 132
	firstStreamKind                        = StreamKindTicketSubmit
	lastStreamKind                         = StreamKindStatusRequest
)

func (k StreamKind) String() string {
	switch k {
	case StreamKindTicketSubmit:
		return "ticket_submit"
	case StreamKindDKGResultSubmit:
		return "dkg_result_submit"
	case StreamKindRelayEntrySubmit:
		return "relay_entry_submit"
	case StreamKindRelayEntryRequest:
		return "relay_entry_request"
	case StreamKindStatusRequest:
		return "status_request"
	}
	return fmt.Sprintf("stream_kind(%d)", byte(k))
}

// StreamHandler serves one accepted stream
type StreamHandler interface {
	HandleStream(ctx context.Context, stream quic.Stream, peerKey ed25519.PublicKey) error
}

// StreamHandlerFunc adapts a function to a StreamHandler
type StreamHandlerFunc func(ctx context.Context, stream quic.Stream, peerKey ed25519.PublicKey) error

func (f StreamHandlerFunc) HandleStream(ctx context.Context, stream quic.Stream, peerKey ed25519.PublicKey) error {
	return f(ctx, stream, peerKey)
}

// Registry maps stream kinds to their handlers
type Registry struct {
	mu       sync.RWMutex
	handlers map[StreamKind]StreamHandler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[StreamKind]StreamHandler)}
}

// ValidateKind rejects bytes outside the known stream kinds
func (r *Registry) ValidateKind(kindByte byte) error {
	kind := StreamKind(kindByte)
	if kind < firstStreamKind || kind > lastStreamKind {
		return fmt.Errorf("invalid stream kind: %d", kindByte)
	}
	return nil
}

// RegisterHandler sets the handler of kind, replacing any earlier one
func (r *Registry) RegisterHandler(kind StreamKind, handler StreamHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = handler
}

func (r *Registry) GetHandler(kind StreamKind) (StreamHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("no handler for kind %d", kind)
	}
	return handler, nil
}
