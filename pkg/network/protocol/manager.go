package protocol

import (
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/eigerco/beacon/pkg/log"
)

type Config struct {
	// ChainHash is the 8 nibble chain identifier negotiated through ALPN
	ChainHash string
}

// Manager negotiates the beacon protocol on new connections and serves
// their streams
type Manager struct {
	Registry *Registry
	config   Config
}

func NewManager(config Config) (*Manager, error) {
	if config.ChainHash == "" {
		return nil, fmt.Errorf("chain hash required")
	}
	if err := validateChainHash(config.ChainHash); err != nil {
		return nil, fmt.Errorf("invalid chain hash format: %w", err)
	}
	return &Manager{Registry: NewRegistry(), config: config}, nil
}

// OnConnection wraps conn and serves its streams until it closes
func (m *Manager) OnConnection(conn TransportConn) *ProtocolConn {
	protoConn := NewProtocolConn(conn, m.Registry)
	go m.handleStreams(protoConn)
	return protoConn
}

func (m *Manager) handleStreams(protoConn *ProtocolConn) {
	defer protoConn.Close() //nolint:errcheck

	for {
		err := protoConn.AcceptStream()
		if err == nil {
			continue
		}
		if errors.Is(err, ErrStreamRejected) && protoConn.TConn.Context().Err() == nil {
			log.Network.Debug().Err(err).Msg("accept stream")
			continue
		}
		log.Network.Debug().Err(err).Msg("connection closed")
		return
	}
}

// GetProtocols returns the ALPN protocols this node speaks
func (m *Manager) GetProtocols() []string {
	return AcceptableProtocols(m.config.ChainHash)
}

// ValidateConnection accepts a connection only for this node's chain
func (m *Manager) ValidateConnection(tlsState tls.ConnectionState) error {
	if tlsState.NegotiatedProtocol == "" {
		return fmt.Errorf("no protocol negotiated")
	}
	protocolID, err := ParseProtocolID(tlsState.NegotiatedProtocol)
	if err != nil {
		return fmt.Errorf("invalid protocol: %w", err)
	}
	if protocolID.ChainHash != m.config.ChainHash {
		return fmt.Errorf("chain hash mismatch: got %s, want %s", protocolID.ChainHash, m.config.ChainHash)
	}
	return nil
}
