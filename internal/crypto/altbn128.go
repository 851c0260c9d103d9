package crypto

import (
	"bytes"
	"fmt"
	"io"
	"math/big"

	bn256 "github.com/ethereum/go-ethereum/crypto/bn256/cloudflare"
	lru "github.com/hashicorp/golang-lru/v2"
)

const compressedYFlag = 0x80

var (
	g2Generator  = new(bn256.G2).ScalarBaseMult(big.NewInt(1))
	curveB       = big.NewInt(3)
	sqrtExponent = new(big.Int).Rsh(new(big.Int).Add(bn256.P, big.NewInt(1)), 2)
	bigOne       = big.NewInt(1)
)

// curveY returns a square root of x^3 + 3 mod p, or false when x is not
// the X coordinate of a curve point. p = 3 mod 4 so the root is rhs^((p+1)/4).
func curveY(x *big.Int) (*big.Int, bool) {
	rhs := new(big.Int).Exp(x, big.NewInt(3), bn256.P)
	rhs.Add(rhs, curveB)
	rhs.Mod(rhs, bn256.P)

	y := new(big.Int).Exp(rhs, sqrtExponent, bn256.P)
	check := new(big.Int).Mul(y, y)
	check.Mod(check, bn256.P)
	return y, check.Cmp(rhs) == 0
}

func pointBytes(x, y *big.Int) []byte {
	out := make([]byte, G1Size)
	x.FillBytes(out[:32])
	y.FillBytes(out[32:])
	return out
}

// HashToG1 maps a message to a G1 point by try and increment over the
// Keccak-256 digest of the message.
func HashToG1(message []byte) *bn256.G1 {
	digest := KeccakData(message)
	x := new(big.Int).SetBytes(digest[:])
	x.Mod(x, bn256.P)

	for {
		if y, ok := curveY(x); ok {
			p := new(bn256.G1)
			if _, err := p.Unmarshal(pointBytes(x, y)); err == nil {
				return p
			}
		}
		x.Add(x, bigOne)
		x.Mod(x, bn256.P)
	}
}

// DecodeG1 accepts either a 64 byte uncompressed point or a 32 byte
// compressed one.
func DecodeG1(b []byte) (*bn256.G1, error) {
	switch len(b) {
	case G1Size:
		p := new(bn256.G1)
		if _, err := p.Unmarshal(b); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidG1Point, err)
		}
		return p, nil
	case G1CompressedSize:
		return decompressG1(b)
	default:
		return nil, ErrInvalidG1Length
	}
}

func decompressG1(b []byte) (*bn256.G1, error) {
	odd := b[0]&compressedYFlag != 0

	xb := make([]byte, G1CompressedSize)
	copy(xb, b)
	xb[0] &^= compressedYFlag
	x := new(big.Int).SetBytes(xb)
	if x.Cmp(bn256.P) >= 0 {
		return nil, ErrInvalidG1Point
	}

	y, ok := curveY(x)
	if !ok {
		return nil, ErrInvalidG1Point
	}
	if (y.Bit(0) == 1) != odd {
		y.Sub(bn256.P, y)
	}

	p := new(bn256.G1)
	if _, err := p.Unmarshal(pointBytes(x, y)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidG1Point, err)
	}
	return p, nil
}

// CompressG1 encodes a point as its X coordinate with the Y parity flag
func CompressG1(p *bn256.G1) []byte {
	m := p.Marshal()
	out := make([]byte, G1CompressedSize)
	copy(out, m[:32])
	if m[G1Size-1]&1 == 1 {
		out[0] |= compressedYFlag
	}
	return out
}

// NormalizeG1 returns the uncompressed encoding of a 32 or 64 byte point
func NormalizeG1(b []byte) ([]byte, error) {
	p, err := DecodeG1(b)
	if err != nil {
		return nil, err
	}
	return p.Marshal(), nil
}

// BLSVerifier checks BLS signatures over alt_bn128 with public keys in G2
// and signatures in G1. Decoded public keys are kept in an LRU cache since
// the same group key verifies every entry of the group.
type BLSVerifier struct {
	keys *lru.Cache[string, *bn256.G2]
}

func NewBLSVerifier(cacheSize int) (*BLSVerifier, error) {
	keys, err := lru.New[string, *bn256.G2](cacheSize)
	if err != nil {
		return nil, err
	}
	return &BLSVerifier{keys: keys}, nil
}

func (v *BLSVerifier) publicKey(b []byte) (*bn256.G2, error) {
	if pk, ok := v.keys.Get(string(b)); ok {
		return pk, nil
	}
	if len(b) != G2Size {
		return nil, ErrInvalidG2Length
	}
	if isZero(b) {
		return nil, ErrInvalidG2Point
	}
	pk := new(bn256.G2)
	if _, err := pk.Unmarshal(b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidG2Point, err)
	}
	v.keys.Add(string(b), pk)
	return pk, nil
}

// Verify reports whether signature is a valid BLS signature of message
// under pubKey. Malformed inputs are returned as errors.
func (v *BLSVerifier) Verify(pubKey, message, signature []byte) (bool, error) {
	pk, err := v.publicKey(pubKey)
	if err != nil {
		return false, err
	}
	sig, err := DecodeG1(signature)
	if err != nil {
		return false, err
	}
	if isZero(sig.Marshal()) {
		return false, nil
	}

	h := HashToG1(message)
	return bn256.PairingCheck(
		[]*bn256.G1{new(bn256.G1).Neg(sig), h},
		[]*bn256.G2{g2Generator, pk},
	), nil
}

// BLSSecretKey signs messages for a group. Nodes holding a full group key
// only exist in tests and local simulations.
type BLSSecretKey struct {
	k *big.Int
}

// GenerateBLSKey returns a random secret key and its marshalled G2 public key
func GenerateBLSKey(r io.Reader) (*BLSSecretKey, []byte, error) {
	k, pub, err := bn256.RandomG2(r)
	if err != nil {
		return nil, nil, err
	}
	return &BLSSecretKey{k: k}, pub.Marshal(), nil
}

// BLSKeyFromScalar builds a secret key from a fixed scalar
func BLSKeyFromScalar(k *big.Int) (*BLSSecretKey, []byte) {
	scalar := new(big.Int).Mod(k, bn256.Order)
	return &BLSSecretKey{k: scalar}, new(bn256.G2).ScalarBaseMult(scalar).Marshal()
}

// Sign returns the uncompressed G1 signature of message
func (s *BLSSecretKey) Sign(message []byte) []byte {
	return new(bn256.G1).ScalarMult(HashToG1(message), s.k).Marshal()
}

func isZero(b []byte) bool {
	return bytes.Count(b, []byte{0}) == len(b)
}
