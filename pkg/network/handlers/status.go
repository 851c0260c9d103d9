package handlers

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/quic-go/quic-go"

	"github.com/eigerco/beacon/internal/crypto/ed25519"
	"github.com/eigerco/beacon/internal/ledger"
)

// StatusSource reports the current beacon status
type StatusSource interface {
	Status() ledger.Status
}

// StatusRequestHandler serves kind 132.
//
//	--> FIN
//	<-- Status
//	<-- FIN
type StatusRequestHandler struct {
	source StatusSource
}

func NewStatusRequestHandler(source StatusSource) *StatusRequestHandler {
	return &StatusRequestHandler{source: source}
}

func (h *StatusRequestHandler) HandleStream(ctx context.Context, stream quic.Stream, _ ed25519.PublicKey) error {
	respBytes, err := cbor.Marshal(h.source.Status())
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if err := WriteMessageWithContext(ctx, stream, respBytes); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("close stream: %w", err)
	}
	return nil
}

// RequestStatus asks a peer for its status on a freshly opened status stream
func RequestStatus(ctx context.Context, stream quic.Stream) (ledger.Status, error) {
	if err := stream.Close(); err != nil {
		return ledger.Status{}, fmt.Errorf("close stream: %w", err)
	}
	msg, err := ReadMessageWithContext(ctx, stream)
	if err != nil {
		return ledger.Status{}, fmt.Errorf("read status: %w", err)
	}
	var status ledger.Status
	if err := cbor.Unmarshal(msg.Content, &status); err != nil {
		return ledger.Status{}, fmt.Errorf("decode status: %w", err)
	}
	return status, nil
}
