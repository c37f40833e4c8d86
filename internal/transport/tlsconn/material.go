package tlsconn

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// Trust material errors, surfaced at client construction and never retried.
var (
	// ErrInvalidIdentity indicates malformed client certificate or key
	// material: unparsable PEM, zero or multiple private keys, or a
	// key/certificate mismatch.
	ErrInvalidIdentity = errors.New("invalid client identity")

	// ErrInvalidTrustBundle indicates that the root CA bundle contained no
	// parsable certificates.
	ErrInvalidTrustBundle = errors.New("invalid root CA bundle")
)

// Material is the backend-neutral, immutable trust material derived from
// configuration. Chain validation is not performed here; it happens during
// the handshake, by whichever backend consumes the material.
type Material struct {
	// Identity is the parsed client certificate and key, nil when no
	// client identity is configured.
	Identity *tls.Certificate

	// RootCAs is the parsed root set, nil when the platform default trust
	// store should be used.
	RootCAs *x509.CertPool

	// InsecureSkipVerify disables peer verification. How (and when) a
	// backend installs the bypass is backend-specific.
	InsecureSkipVerify bool

	// ServerName overrides the name used for verification and SNI.
	ServerName string

	rootPEM []byte
}

// LoadMaterial parses identity and root-CA bytes into Material.
//
// certPEM/keyPEM must both be empty or both be set; keyPEM must contain
// exactly one private key. caPEM holds zero or more PEM certificates; empty
// means "fall back to the platform trust store", not "trust nothing".
func LoadMaterial(certPEM, keyPEM, caPEM []byte, insecureSkipVerify bool) (*Material, error) {
	m := &Material{
		InsecureSkipVerify: insecureSkipVerify,
	}

	hasCert := len(certPEM) > 0
	hasKey := len(keyPEM) > 0
	if hasCert != hasKey {
		return nil, fmt.Errorf("%w: certificate and key must be supplied together", ErrInvalidIdentity)
	}
	if hasCert {
		if n := countPrivateKeys(keyPEM); n != 1 {
			return nil, fmt.Errorf("%w: expected exactly one private key, found %d", ErrInvalidIdentity, n)
		}
		identity, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
		}
		m.Identity = &identity
	}

	if len(caPEM) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("%w: no certificates parsed", ErrInvalidTrustBundle)
		}
		m.RootCAs = pool
		m.rootPEM = append([]byte(nil), caPEM...)
	}

	return m, nil
}

// RootPEM returns the raw root-CA bundle for backends that construct their
// own trust store. Empty when the platform default applies.
func (m *Material) RootPEM() []byte {
	return m.rootPEM
}

// countPrivateKeys counts PEM blocks that carry a private key.
func countPrivateKeys(keyPEM []byte) int {
	count := 0
	rest := keyPEM
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return count
		}
		if strings.Contains(block.Type, "PRIVATE KEY") {
			count++
		}
	}
}
