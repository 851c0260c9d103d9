package peer_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/beacon/internal/crypto/ed25519"
	"github.com/eigerco/beacon/pkg/network/peer"
)

func newTestPeer(t *testing.T, port int) *peer.Peer {
	t.Helper()
	key, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return &peer.Peer{
		Ed25519Key: key,
		Address:    &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port},
	}
}

func TestPeerSet(t *testing.T) {
	ps := peer.NewPeerSet()
	p1 := newTestPeer(t, 9001)
	p2 := newTestPeer(t, 9002)

	assert.Nil(t, ps.AddPeer(p1))
	assert.Nil(t, ps.AddPeer(p2))
	assert.Equal(t, 2, ps.Len())
	assert.Same(t, p1, ps.GetByEd25519Key(p1.Ed25519Key))
	assert.Same(t, p2, ps.GetByAddress("127.0.0.1:9002"))
	assert.ElementsMatch(t, []*peer.Peer{p1, p2}, ps.GetAllPeers())

	ps.RemovePeer(p1)
	assert.Nil(t, ps.GetByEd25519Key(p1.Ed25519Key))
	assert.Nil(t, ps.GetByAddress("127.0.0.1:9001"))
	assert.Equal(t, 1, ps.Len())
}

func TestPeerSetReplace(t *testing.T) {
	ps := peer.NewPeerSet()
	old := newTestPeer(t, 9001)
	newer := &peer.Peer{
		Ed25519Key: old.Ed25519Key,
		Address:    &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9005},
	}

	ps.AddPeer(old)
	assert.Same(t, old, ps.AddPeer(newer))
	assert.Nil(t, ps.GetByAddress("127.0.0.1:9001"))
	assert.Same(t, newer, ps.GetByAddress("127.0.0.1:9005"))

	// the old connection closing later must not drop its replacement
	ps.RemovePeer(old)
	assert.Same(t, newer, ps.GetByEd25519Key(old.Ed25519Key))
	assert.Equal(t, 1, ps.Len())
}
