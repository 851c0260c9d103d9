package protocol

import (
	"fmt"
	"strings"
)

const (
	protocolPrefix  = "beacon"
	currentVersion  = "0"
	chainHashLength = 8
)

// ProtocolID is an ALPN identifier of the form beacon/<version>/<chain hash>
type ProtocolID struct {
	Version   string
	ChainHash string
}

// NewProtocolID returns the identifier of the current version for a chain
func NewProtocolID(chainHash string) *ProtocolID {
	return &ProtocolID{Version: currentVersion, ChainHash: chainHash}
}

func (p *ProtocolID) String() string {
	return strings.Join([]string{protocolPrefix, p.Version, p.ChainHash}, "/")
}

// ParseProtocolID parses and validates an ALPN protocol string. The chain
// hash must be 8 lower case hex nibbles.
func ParseProtocolID(protocol string) (*ProtocolID, error) {
	parts := strings.Split(protocol, "/")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid protocol format: %s", protocol)
	}
	if parts[0] != protocolPrefix {
		return nil, fmt.Errorf("invalid protocol prefix: %s", parts[0])
	}
	if parts[1] != currentVersion {
		return nil, fmt.Errorf("unsupported protocol version: %s", parts[1])
	}
	if err := validateChainHash(parts[2]); err != nil {
		return nil, err
	}
	return &ProtocolID{Version: parts[1], ChainHash: parts[2]}, nil
}

func validateChainHash(chainHash string) error {
	if len(chainHash) != chainHashLength {
		return fmt.Errorf("invalid chain hash length: %s", chainHash)
	}
	for _, c := range chainHash {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("invalid chain hash character: %c", c)
		}
	}
	return nil
}

// AcceptableProtocols returns the ALPN protocols offered for a chain
func AcceptableProtocols(chainHash string) []string {
	return []string{NewProtocolID(chainHash).String()}
}
