// Package ed25519 wraps crypto/ed25519 for the network identity keys and
// verifies signatures with the ZIP-215 rules of ed25519consensus, so every
// node accepts exactly the same certificate signatures.
package ed25519

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/hdevalence/ed25519consensus"
)

type (
	PublicKey  = ed25519.PublicKey
	PrivateKey = ed25519.PrivateKey
)

const (
	PublicKeySize  = ed25519.PublicKeySize
	PrivateKeySize = ed25519.PrivateKeySize
	SignatureSize  = ed25519.SignatureSize
	SeedSize       = ed25519.SeedSize
)

func GenerateKey(rand io.Reader) (PublicKey, PrivateKey, error) {
	return ed25519.GenerateKey(rand)
}

func Sign(privateKey PrivateKey, message []byte) []byte {
	return ed25519.Sign(privateKey, message)
}

// Verify reports whether sig is a valid signature of message by publicKey
func Verify(publicKey PublicKey, message, sig []byte) bool {
	if len(publicKey) != PublicKeySize || len(sig) != SignatureSize {
		return false
	}
	return ed25519consensus.Verify(publicKey, message, sig)
}

// KeyFromHex decodes a hex encoded 32 byte seed into a key pair
func KeyFromHex(s string) (PublicKey, PrivateKey, error) {
	seed, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if err != nil {
		return nil, nil, fmt.Errorf("decode network key: %w", err)
	}
	if len(seed) != SeedSize {
		return nil, nil, fmt.Errorf("network key must be %d bytes, got %d", SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return priv.Public().(PublicKey), priv, nil
}

// SeedHex returns the hex encoded seed of priv, the inverse of KeyFromHex
func SeedHex(priv PrivateKey) string {
	return hex.EncodeToString(priv.Seed())
}
