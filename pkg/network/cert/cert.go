package cert

import (
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base32"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/eigerco/beacon/internal/crypto/ed25519"
)

// DNSNamePrefix is prepended to the encoded public key in the certificate
// DNS name
const DNSNamePrefix = "b"

// dnsNameLength is the prefix plus 52 base32 characters for 32 key bytes
const dnsNameLength = 53

var base32Encoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

var (
	ErrNotEd25519        = errors.New("certificate key is not Ed25519")
	ErrInvalidDNSName    = errors.New("invalid certificate DNS name")
	ErrInvalidSignature  = errors.New("invalid certificate signature")
	ErrNotYetValid       = errors.New("certificate is not yet valid")
	ErrExpired           = errors.New("certificate has expired")
	ErrSignatureAlgoritm = errors.New("certificate is not signed with Ed25519")
)

// Generator creates self signed TLS certificates for a node's network key
type Generator struct {
	config Config
}

type Config struct {
	PublicKey          ed25519.PublicKey
	PrivateKey         ed25519.PrivateKey
	CertValidityPeriod time.Duration
}

func NewGenerator(config Config) *Generator {
	return &Generator{config: config}
}

// Validator checks peer certificates. It implements transport.CertValidator.
type Validator struct {
	now func() time.Time
}

func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// ValidateCertificate accepts a certificate when:
//   - it is self signed with Ed25519, checked under ZIP-215 rules
//   - its single DNS name encodes its public key
//   - it is within its validity period
func (v *Validator) ValidateCertificate(cert *x509.Certificate) error {
	if cert.SignatureAlgorithm != x509.PureEd25519 {
		return ErrSignatureAlgoritm
	}
	pubKey, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok {
		return ErrNotEd25519
	}
	if !ed25519.Verify(pubKey, cert.RawTBSCertificate, cert.Signature) {
		return ErrInvalidSignature
	}

	if len(cert.DNSNames) != 1 {
		return fmt.Errorf("%w: want exactly one, got %d", ErrInvalidDNSName, len(cert.DNSNames))
	}
	dnsName := cert.DNSNames[0]
	if len(dnsName) != dnsNameLength || !strings.HasPrefix(dnsName, DNSNamePrefix) {
		return fmt.Errorf("%w: %s", ErrInvalidDNSName, dnsName)
	}
	if dnsName != EncodePubKeyToDNS(pubKey) {
		return fmt.Errorf("%w: does not match public key", ErrInvalidDNSName)
	}

	now := v.now()
	if now.Before(cert.NotBefore) {
		return ErrNotYetValid
	}
	if now.After(cert.NotAfter) {
		return ErrExpired
	}
	return nil
}

// ExtractPublicKey returns the Ed25519 key of cert
func (v *Validator) ExtractPublicKey(cert *x509.Certificate) (ed25519.PublicKey, error) {
	pubKey, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok {
		return nil, ErrNotEd25519
	}
	return pubKey, nil
}

// EncodePubKeyToDNS encodes a public key as DNSNamePrefix followed by its
// base32 form
func EncodePubKeyToDNS(pubKey ed25519.PublicKey) string {
	return DNSNamePrefix + base32Encoding.EncodeToString(pubKey)
}

// GenerateCertificate creates a self signed certificate usable for both
// server and client authentication
func (g *Generator) GenerateCertificate() (*tls.Certificate, error) {
	dnsName := EncodePubKeyToDNS(g.config.PublicKey)

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject:      pkix.Name{CommonName: dnsName},
		DNSNames:     []string{dnsName},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(g.config.CertValidityPeriod),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
			x509.ExtKeyUsageClientAuth,
		},
		SignatureAlgorithm:    x509.PureEd25519,
		PublicKeyAlgorithm:    x509.Ed25519,
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, g.config.PublicKey, g.config.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  g.config.PrivateKey,
		Leaf:        leaf,
	}, nil
}
