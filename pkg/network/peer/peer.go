package peer

import (
	"net"
	"sync"

	"github.com/eigerco/beacon/internal/crypto/ed25519"
	"github.com/eigerco/beacon/pkg/network/protocol"
)

// Peer is a connected remote node
type Peer struct {
	ProtoConn  *protocol.ProtocolConn
	Address    net.Addr
	Ed25519Key ed25519.PublicKey
}

func NewPeer(pConn *protocol.ProtocolConn, addr net.Addr) *Peer {
	return &Peer{
		ProtoConn:  pConn,
		Address:    addr,
		Ed25519Key: pConn.TConn.PeerKey(),
	}
}

// PeerSet indexes connected peers by Ed25519 key and by address. It is
// safe for concurrent use.
type PeerSet struct {
	mu           sync.RWMutex
	byEd25519Key map[string]*Peer
	byAddress    map[string]*Peer
}

func NewPeerSet() *PeerSet {
	return &PeerSet{
		byEd25519Key: make(map[string]*Peer),
		byAddress:    make(map[string]*Peer),
	}
}

// AddPeer stores peer and returns the peer it replaced, if any
func (ps *PeerSet) AddPeer(peer *Peer) *Peer {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	replaced := ps.byEd25519Key[string(peer.Ed25519Key)]
	if replaced != nil {
		ps.removeLocked(replaced)
	}
	ps.byEd25519Key[string(peer.Ed25519Key)] = peer
	if peer.Address != nil {
		ps.byAddress[peer.Address.String()] = peer
	}
	return replaced
}

// RemovePeer removes peer unless it was already replaced by a newer
// connection of the same key
func (ps *PeerSet) RemovePeer(peer *Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.byEd25519Key[string(peer.Ed25519Key)] == peer {
		ps.removeLocked(peer)
	}
}

func (ps *PeerSet) removeLocked(peer *Peer) {
	delete(ps.byEd25519Key, string(peer.Ed25519Key))
	if peer.Address != nil && ps.byAddress[peer.Address.String()] == peer {
		delete(ps.byAddress, peer.Address.String())
	}
}

// GetByEd25519Key returns nil when no peer has the key
func (ps *PeerSet) GetByEd25519Key(key ed25519.PublicKey) *Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.byEd25519Key[string(key)]
}

// GetByAddress returns nil when no peer is connected from addr
func (ps *PeerSet) GetByAddress(addr string) *Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.byAddress[addr]
}

func (ps *PeerSet) GetAllPeers() []*Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	peers := make([]*Peer, 0, len(ps.byEd25519Key))
	for _, peer := range ps.byEd25519Key {
		peers = append(peers, peer)
	}
	return peers
}

func (ps *PeerSet) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.byEd25519Key)
}
