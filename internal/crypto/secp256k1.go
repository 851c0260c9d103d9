package crypto

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignPrefixed signs digest wrapped in the Ethereum signed message envelope.
// The returned signature is r||s||v with v in {27, 28}.
func SignPrefixed(key *ecdsa.PrivateKey, digest []byte) ([]byte, error) {
	sig, err := ethcrypto.Sign(accounts.TextHash(digest), key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// RecoverPrefixed returns the address that produced sig over the Ethereum
// signed message envelope of digest. Both {0, 1} and {27, 28} recovery ids
// are accepted.
func RecoverPrefixed(digest, sig []byte) (common.Address, error) {
	if len(sig) != SignatureSize {
		return common.Address{}, ErrSignatureLength
	}

	normalized := make([]byte, SignatureSize)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	if normalized[64] > 1 {
		return common.Address{}, ErrInvalidRecoveryID
	}

	pub, err := ethcrypto.SigToPub(accounts.TextHash(digest), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// OperatorKeyFromHex parses a hex encoded secp256k1 private key
func OperatorKeyFromHex(s string) (*ecdsa.PrivateKey, common.Address, error) {
	key, err := ethcrypto.HexToECDSA(trimHexPrefix(s))
	if err != nil {
		return nil, common.Address{}, err
	}
	return key, ethcrypto.PubkeyToAddress(key.PublicKey), nil
}

// GenerateOperatorKey creates a new secp256k1 operator key
func GenerateOperatorKey() (*ecdsa.PrivateKey, common.Address, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, common.Address{}, err
	}
	return key, ethcrypto.PubkeyToAddress(key.PublicKey), nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
