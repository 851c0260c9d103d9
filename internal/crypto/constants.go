package crypto

const (
	HashSize = 32

	// G1Size is an uncompressed alt_bn128 G1 point, 32 byte X followed by 32 byte Y.
	G1Size = 64
	// G1CompressedSize is the X coordinate with the Y parity in the top bit.
	G1CompressedSize = 32
	// G2Size is an alt_bn128 G2 point as produced by the EIP-197 encoding.
	G2Size = 128

	// SignatureSize is a secp256k1 r||s||v signature.
	SignatureSize = 65

	Ed25519PublicSize  = 32
	Ed25519PrivateSize = 64
)
