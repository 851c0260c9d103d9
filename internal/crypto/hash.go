package crypto

import (
	"encoding/hex"
	"strings"

	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

type Hash [HashSize]byte

// KeccakData hashes the concatenation of the inputs using Keccak-256
func KeccakData(data ...[]byte) Hash {
	hash := sha3.NewLegacyKeccak256()
	for _, d := range data {
		hash.Write(d)
	}

	var result Hash
	hash.Sum(result[:0])
	return result
}

// Uint256 interprets the hash as a big endian 256 bit integer
func (h Hash) Uint256() uint256.Int {
	var v uint256.Int
	v.SetBytes32(h[:])
	return v
}

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// MustDecodeHex converts a hex string with optional 0x prefix to bytes and
// panics on malformed input. Meant for constants and tests.
func MustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		panic(err)
	}
	return b
}
