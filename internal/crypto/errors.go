package crypto

import "errors"

var (
	ErrInvalidG1Length   = errors.New("invalid G1 bytes length")
	ErrInvalidG2Length   = errors.New("invalid G2 bytes length")
	ErrInvalidG1Point    = errors.New("invalid G1 point")
	ErrInvalidG2Point    = errors.New("invalid G2 point")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrSignatureLength   = errors.New("invalid signature length")
	ErrInvalidRecoveryID = errors.New("invalid signature recovery id")
)
