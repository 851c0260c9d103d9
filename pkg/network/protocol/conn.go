package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/quic-go/quic-go"

	"github.com/eigerco/beacon/internal/crypto/ed25519"
	"github.com/eigerco/beacon/pkg/log"
)

// ErrStreamRejected marks an accepted stream that was closed without reaching
// a handler. The connection itself is still usable.
var ErrStreamRejected = errors.New("stream rejected")

// TransportConn is the part of transport.Conn the protocol layer uses
type TransportConn interface {
	OpenStream(ctx context.Context) (quic.Stream, error)
	AcceptStream() (quic.Stream, error)
	PeerKey() ed25519.PublicKey
	Context() context.Context
	Close() error
}

// ProtocolConn tags streams with their kind and dispatches accepted
// streams to the registered handlers
type ProtocolConn struct {
	TConn    TransportConn
	Registry *Registry
}

func NewProtocolConn(tConn TransportConn, registry *Registry) *ProtocolConn {
	return &ProtocolConn{TConn: tConn, Registry: registry}
}

// OpenStream opens a stream and writes its kind byte
func (pc *ProtocolConn) OpenStream(ctx context.Context, kind StreamKind) (quic.Stream, error) {
	stream, err := pc.TConn.OpenStream(ctx)
	if err != nil {
		return nil, err
	}
	if err := writeWithContext(ctx, stream, []byte{byte(kind)}); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("failed to write stream kind: %w", err)
	}
	return stream, nil
}

// AcceptStream accepts one stream, reads its kind and serves it with the
// registered handler in a new goroutine
func (pc *ProtocolConn) AcceptStream() error {
	stream, err := pc.TConn.AcceptStream()
	if err != nil {
		return err
	}

	kind := make([]byte, 1)
	if _, err := io.ReadFull(stream, kind); err != nil {
		_ = stream.Close()
		return fmt.Errorf("%w: failed to read stream kind: %w", ErrStreamRejected, err)
	}
	if err := pc.Registry.ValidateKind(kind[0]); err != nil {
		_ = stream.Close()
		return fmt.Errorf("%w: %w", ErrStreamRejected, err)
	}
	handler, err := pc.Registry.GetHandler(StreamKind(kind[0]))
	if err != nil {
		_ = stream.Close()
		return fmt.Errorf("%w: %w", ErrStreamRejected, err)
	}

	go func() {
		if err := handler.HandleStream(pc.TConn.Context(), stream, pc.TConn.PeerKey()); err != nil {
			log.Network.Debug().Err(err).Stringer("kind", StreamKind(kind[0])).Msg("stream handler")
		}
	}()
	return nil
}

func writeWithContext(ctx context.Context, stream quic.Stream, p []byte) error {
	done := make(chan error, 1)
	go func() {
		_, err := stream.Write(p)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (pc *ProtocolConn) Close() error {
	return pc.TConn.Close()
}
