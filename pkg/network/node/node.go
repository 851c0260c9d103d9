package node

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/eigerco/beacon/internal/crypto/ed25519"
	"github.com/eigerco/beacon/internal/ledger"
	"github.com/eigerco/beacon/internal/statetransition"
	"github.com/eigerco/beacon/pkg/log"
	"github.com/eigerco/beacon/pkg/network/cert"
	"github.com/eigerco/beacon/pkg/network/handlers"
	"github.com/eigerco/beacon/pkg/network/peer"
	"github.com/eigerco/beacon/pkg/network/protocol"
	"github.com/eigerco/beacon/pkg/network/transport"
)

var (
	ErrUnknownPeer   = errors.New("no peer with the given key")
	ErrNotRoutable   = errors.New("transaction cannot be sent to peers")
	ErrAlreadyPeered = errors.New("peer already exists")
)

// Ledger is what the node serves to its peers
type Ledger interface {
	handlers.Submitter
	handlers.StatusSource
}

type Config struct {
	ChainHash  string
	ListenAddr string
	PrivateKey ed25519.PrivateKey
	// CertValidityPeriod defaults to 24 hours
	CertValidityPeriod time.Duration
}

// Node accepts submissions from peers and forwards them to the local
// ledger. It can also act as a client towards other nodes.
type Node struct {
	Context         context.Context
	Cancel          context.CancelFunc
	ProtocolManager *protocol.Manager
	PeersSet        *peer.PeerSet
	transport       *transport.Transport
	sender          *handlers.SubmissionSender
}

// streamKinds routes the transactions peers may submit
var streamKinds = map[statetransition.Kind]protocol.StreamKind{
	statetransition.KindSubmitTicket:    protocol.StreamKindTicketSubmit,
	statetransition.KindSubmitDKGResult: protocol.StreamKindDKGResultSubmit,
	statetransition.KindSubmitEntry:     protocol.StreamKindRelayEntrySubmit,
	statetransition.KindRequestEntry:    protocol.StreamKindRelayEntryRequest,
}

// NewNode creates the TLS identity, the protocol manager with the
// submission handlers and the transport. Nothing listens until Start.
func NewNode(nodeCtx context.Context, config Config, l Ledger) (*Node, error) {
	if len(config.PrivateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("network private key required")
	}
	if config.CertValidityPeriod == 0 {
		config.CertValidityPeriod = 24 * time.Hour
	}
	pub := config.PrivateKey.Public().(ed25519.PublicKey)

	tlsCert, err := cert.NewGenerator(cert.Config{
		PublicKey:          pub,
		PrivateKey:         config.PrivateKey,
		CertValidityPeriod: config.CertValidityPeriod,
	}).GenerateCertificate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate certificate: %w", err)
	}

	protoManager, err := protocol.NewManager(protocol.Config{ChainHash: config.ChainHash})
	if err != nil {
		return nil, fmt.Errorf("failed to create protocol manager: %w", err)
	}
	for kind, streamKind := range streamKinds {
		protoManager.Registry.RegisterHandler(streamKind, handlers.NewSubmissionHandler(l, kind))
	}
	protoManager.Registry.RegisterHandler(protocol.StreamKindStatusRequest, handlers.NewStatusRequestHandler(l))

	nodeCtx, cancel := context.WithCancel(nodeCtx)
	node := &Node{
		Context:         nodeCtx,
		Cancel:          cancel,
		ProtocolManager: protoManager,
		PeersSet:        peer.NewPeerSet(),
		sender:          handlers.NewSubmissionSender(),
	}

	tr, err := transport.NewTransport(transport.Config{
		PublicKey:     pub,
		TLSCert:       tlsCert,
		ListenAddr:    config.ListenAddr,
		CertValidator: cert.NewValidator(),
		Handler:       node,
		Context:       nodeCtx,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	node.transport = tr
	return node, nil
}

// OnConnection is called by the transport for every authenticated
// connection, inbound or outbound. A newer connection of a known peer
// replaces the older one.
func (n *Node) OnConnection(conn *transport.Conn) error {
	pConn := n.ProtocolManager.OnConnection(conn)
	p := peer.NewPeer(pConn, conn.RemoteAddr())
	if replaced := n.PeersSet.AddPeer(p); replaced != nil {
		if err := replaced.ProtoConn.Close(); err != nil {
			log.Network.Debug().Err(err).Msg("close replaced peer")
		}
	}
	log.Network.Debug().Str("peer", conn.RemoteAddr().String()).Msg("peer connected")

	go func() {
		<-conn.Context().Done()
		n.PeersSet.RemovePeer(p)
	}()
	return nil
}

// ConnectToPeer dials addr unless a peer is already connected from there
func (n *Node) ConnectToPeer(ctx context.Context, addr string) (*peer.Peer, error) {
	if existing := n.PeersSet.GetByAddress(addr); existing != nil {
		return nil, ErrAlreadyPeered
	}
	conn, err := n.transport.Connect(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to peer: %w", err)
	}
	p := n.PeersSet.GetByEd25519Key(conn.PeerKey())
	if p == nil {
		return nil, fmt.Errorf("peer %s disconnected", addr)
	}
	return p, nil
}

// SubmitTransaction sends tx to the peer and returns its response
func (n *Node) SubmitTransaction(ctx context.Context, peerKey ed25519.PublicKey, tx statetransition.Tx) (handlers.Response, error) {
	kind, ok := streamKinds[tx.Kind()]
	if !ok {
		return handlers.Response{}, fmt.Errorf("%w: %s", ErrNotRoutable, tx.Kind())
	}
	p := n.PeersSet.GetByEd25519Key(peerKey)
	if p == nil {
		return handlers.Response{}, ErrUnknownPeer
	}

	stream, err := p.ProtoConn.OpenStream(ctx, kind)
	if err != nil {
		return handlers.Response{}, fmt.Errorf("failed to open %s stream: %w", kind, err)
	}
	resp, err := n.sender.Send(ctx, stream, tx)
	if err != nil {
		stream.CancelRead(0)
		return handlers.Response{}, fmt.Errorf("failed to submit transaction: %w", err)
	}
	return resp, nil
}

// RequestStatus asks the peer for its beacon status
func (n *Node) RequestStatus(ctx context.Context, peerKey ed25519.PublicKey) (ledger.Status, error) {
	p := n.PeersSet.GetByEd25519Key(peerKey)
	if p == nil {
		return ledger.Status{}, ErrUnknownPeer
	}
	stream, err := p.ProtoConn.OpenStream(ctx, protocol.StreamKindStatusRequest)
	if err != nil {
		return ledger.Status{}, fmt.Errorf("failed to open status stream: %w", err)
	}
	status, err := handlers.RequestStatus(ctx, stream)
	if err != nil {
		stream.CancelRead(0)
		return ledger.Status{}, fmt.Errorf("failed to request status: %w", err)
	}
	return status, nil
}

// Start begins listening for incoming connections
func (n *Node) Start() error {
	if err := n.transport.Start(); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}
	return nil
}

// Stop closes every peer connection and the listener
func (n *Node) Stop() error {
	n.Cancel()
	return n.transport.Stop()
}

// Addr is the listening address once started
func (n *Node) Addr() net.Addr {
	return n.transport.Addr()
}

func (n *Node) PublicKey() ed25519.PublicKey {
	return n.transport.PublicKey()
}

func (n *Node) ValidateConnection(tlsState tls.ConnectionState) error {
	return n.ProtocolManager.ValidateConnection(tlsState)
}

func (n *Node) GetProtocols() []string {
	return n.ProtocolManager.GetProtocols()
}
