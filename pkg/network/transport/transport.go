package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/eigerco/beacon/internal/crypto/ed25519"
	"github.com/eigerco/beacon/pkg/log"
)

// MaxIdleTimeout is how long a connection may stay idle before it is closed
const MaxIdleTimeout = 5 * time.Minute

// CertValidator validates peer certificates and extracts their keys
type CertValidator interface {
	ValidateCertificate(cert *x509.Certificate) error
	ExtractPublicKey(cert *x509.Certificate) (ed25519.PublicKey, error)
}

// ConnectionHandler is told about every established connection and
// decides which ALPN protocols are spoken
type ConnectionHandler interface {
	OnConnection(conn *Conn) error
	GetProtocols() []string
	ValidateConnection(tlsState tls.ConnectionState) error
}

type Config struct {
	PublicKey     ed25519.PublicKey
	TLSCert       *tls.Certificate
	ListenAddr    string
	CertValidator CertValidator
	Handler       ConnectionHandler
	Context       context.Context
}

// Transport owns the QUIC listener and the live connections, at most one
// per peer key
type Transport struct {
	config   Config
	listener *quic.Listener
	mu       sync.RWMutex
	conns    map[string]*Conn
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewTransport(config Config) (*Transport, error) {
	if config.TLSCert == nil {
		return nil, fmt.Errorf("TLS certificate required")
	}
	if config.CertValidator == nil {
		return nil, fmt.Errorf("certificate validator required")
	}
	if config.Handler == nil {
		return nil, fmt.Errorf("connection handler required")
	}
	if err := config.CertValidator.ValidateCertificate(config.TLSCert.Leaf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	if config.Context == nil {
		config.Context = context.Background()
	}

	ctx, cancel := context.WithCancel(config.Context)
	return &Transport{
		config: config,
		conns:  make(map[string]*Conn),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (t *Transport) tlsConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{*t.config.TLSCert},
		NextProtos:   t.config.Handler.GetProtocols(),
		ClientAuth:   tls.RequireAnyClientCert,
		MinVersion:   tls.VersionTLS13,
		// Peers are self signed; VerifyConnection does the checking
		InsecureSkipVerify: true,
		VerifyConnection:   t.verifyConnection,
	}
}

func (t *Transport) verifyConnection(cs tls.ConnectionState) error {
	if len(cs.PeerCertificates) == 0 {
		return fmt.Errorf("%w: no peer certificate provided", ErrInvalidCertificate)
	}
	if err := t.config.CertValidator.ValidateCertificate(cs.PeerCertificates[0]); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	if err := t.config.Handler.ValidateConnection(cs); err != nil {
		return fmt.Errorf("connection validation failed: %w", err)
	}
	return nil
}

func quicConfig() *quic.Config {
	return &quic.Config{MaxIdleTimeout: MaxIdleTimeout, KeepAlivePeriod: MaxIdleTimeout / 3}
}

// Start listens on the configured address and accepts connections in the
// background
func (t *Transport) Start() error {
	listener, err := quic.ListenAddr(t.config.ListenAddr, t.tlsConfig(), quicConfig())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrListenerFailed, err)
	}
	t.listener = listener
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		t.acceptLoop()
	}()
	log.Network.Info().Str("addr", listener.Addr().String()).Msg("listening")
	return nil
}

// Addr returns the address the transport listens on
func (t *Transport) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// PublicKey is the key peers see in this transport's certificate
func (t *Transport) PublicKey() ed25519.PublicKey {
	return t.config.PublicKey
}

// Stop closes every connection and the listener, then waits for the accept
// loop to exit
func (t *Transport) Stop() error {
	t.cancel()

	t.mu.Lock()
	for _, conn := range t.conns {
		if err := conn.Close(); err != nil {
			log.Network.Debug().Err(err).Msg("close connection")
		}
	}
	t.conns = make(map[string]*Conn)
	t.mu.Unlock()

	if t.listener == nil {
		return nil
	}
	if err := t.listener.Close(); err != nil {
		return fmt.Errorf("failed to close listener: %w", err)
	}
	<-t.done
	return nil
}

// Connect dials addr and hands the connection to the handler once the
// listener confirmed it accepted the connection
func (t *Transport) Connect(ctx context.Context, addr string) (*Conn, error) {
	qConn, err := quic.DialAddr(ctx, addr, t.tlsConfig(), quicConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDialFailed, err)
	}
	if err := waitAccepted(ctx, qConn); err != nil {
		_ = qConn.CloseWithError(0, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrDialFailed, err)
	}
	conn, err := t.handleConnection(qConn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnFailed, err)
	}
	return conn, nil
}

// The listener validates the dialer's certificate only after the dialer
// finished its side of the TLS handshake, so the dialer waits for this
// byte on a unidirectional stream before using the connection.
const acceptedSignal byte = 1

func confirmAccepted(qConn quic.Connection) error {
	stream, err := qConn.OpenUniStream()
	if err != nil {
		return err
	}
	if _, err := stream.Write([]byte{acceptedSignal}); err != nil {
		return err
	}
	return stream.Close()
}

func waitAccepted(ctx context.Context, qConn quic.Connection) error {
	stream, err := qConn.AcceptUniStream(ctx)
	if err != nil {
		return fmt.Errorf("connection not accepted: %w", err)
	}
	signal := make([]byte, 1)
	if _, err := io.ReadFull(stream, signal); err != nil {
		return fmt.Errorf("connection not accepted: %w", err)
	}
	if signal[0] != acceptedSignal {
		return fmt.Errorf("unexpected accept signal %d", signal[0])
	}
	return nil
}

// GetConnection returns the live connection with the peer
func (t *Transport) GetConnection(peerKey ed25519.PublicKey) (*Conn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	conn, ok := t.conns[string(peerKey)]
	return conn, ok
}

func (t *Transport) ListConnections() []*Conn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	conns := make([]*Conn, 0, len(t.conns))
	for _, conn := range t.conns {
		conns = append(conns, conn)
	}
	return conns
}

func (t *Transport) acceptLoop() {
	for {
		qConn, err := t.listener.Accept(t.ctx)
		if err != nil {
			if t.ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return
			}
			log.Network.Warn().Err(err).Msg("accept connection")
			continue
		}
		go func() {
			conn, err := t.handleConnection(qConn)
			if err != nil {
				log.Network.Debug().Err(err).Str("remote", qConn.RemoteAddr().String()).Msg("rejected connection")
				return
			}
			if err := confirmAccepted(qConn); err != nil {
				log.Network.Debug().Err(err).Str("remote", qConn.RemoteAddr().String()).Msg("confirm connection")
				t.remove(conn)
				_ = qConn.CloseWithError(0, err.Error())
			}
		}()
	}
}

func (t *Transport) handleConnection(qConn quic.Connection) (*Conn, error) {
	peerCerts := qConn.ConnectionState().TLS.PeerCertificates
	if len(peerCerts) == 0 {
		_ = qConn.CloseWithError(0, ErrInvalidCertificate.Error())
		return nil, ErrInvalidCertificate
	}
	peerKey, err := t.config.CertValidator.ExtractPublicKey(peerCerts[0])
	if err != nil {
		_ = qConn.CloseWithError(0, fmt.Sprintf("%s: %v", ErrInvalidCertificate, err))
		return nil, err
	}

	conn := t.manageConnection(peerKey, qConn)
	if err := t.config.Handler.OnConnection(conn); err != nil {
		t.remove(conn)
		_ = qConn.CloseWithError(0, err.Error())
		return nil, err
	}
	go func() {
		<-qConn.Context().Done()
		t.remove(conn)
	}()
	return conn, nil
}

// manageConnection stores conn, replacing an older connection of the same
// peer
func (t *Transport) manageConnection(peerKey ed25519.PublicKey, qConn quic.Connection) *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.conns[string(peerKey)]; ok {
		log.Network.Debug().Str("peer", existing.RemoteAddr().String()).Msg("replacing connection")
		if err := existing.Close(); err != nil {
			log.Network.Debug().Err(err).Msg("close replaced connection")
		}
	}
	conn := newConn(t.ctx, qConn, peerKey)
	t.conns[string(peerKey)] = conn
	return conn
}

func (t *Transport) remove(conn *Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if current, ok := t.conns[string(conn.peerKey)]; ok && current == conn {
		delete(t.conns, string(conn.peerKey))
	}
}
