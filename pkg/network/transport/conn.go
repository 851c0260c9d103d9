package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/quic-go/quic-go"

	"github.com/eigerco/beacon/internal/crypto/ed25519"
)

// Conn is an authenticated QUIC connection with a peer. Its context ends
// when either side closes the connection.
type Conn struct {
	qConn   quic.Connection
	peerKey ed25519.PublicKey
	ctx     context.Context
	cancel  context.CancelFunc
}

func newConn(parent context.Context, qConn quic.Connection, peerKey ed25519.PublicKey) *Conn {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-qConn.Context().Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return &Conn{qConn: qConn, peerKey: peerKey, ctx: ctx, cancel: cancel}
}

// OpenStream opens a bidirectional stream
func (c *Conn) OpenStream(ctx context.Context) (quic.Stream, error) {
	stream, err := c.qConn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open QUIC stream: %w", err)
	}
	return stream, nil
}

// AcceptStream waits for the peer to open a stream
func (c *Conn) AcceptStream() (quic.Stream, error) {
	stream, err := c.qConn.AcceptStream(c.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to accept QUIC stream: %w", err)
	}
	return stream, nil
}

func (c *Conn) PeerKey() ed25519.PublicKey {
	return c.peerKey
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.qConn.RemoteAddr()
}

func (c *Conn) Close() error {
	c.cancel()
	return c.qConn.CloseWithError(0, "")
}

func (c *Conn) Context() context.Context {
	return c.ctx
}
