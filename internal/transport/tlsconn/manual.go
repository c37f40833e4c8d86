package tlsconn

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
)

// ManualVerifyBackend builds connectors whose peer verification runs in a
// manual verifier instead of the handshake's built-in chain check. The
// builder always commits the handshake to skip its own verification and
// delegates to the verifier; because that mode is already fixed by the time
// the config exists, the bypass cannot be expressed in the builder. It is
// installed afterwards, as an override hook on the fully built connector,
// intercepting the verification result right before the handshake completes.
type ManualVerifyBackend struct{}

// Name implements Backend.
func (ManualVerifyBackend) Name() string { return "manual-verify" }

// verifyFunc checks the presented peer chain for the given server name.
type verifyFunc func(rawCerts [][]byte, serverName string) error

// Build implements Backend.
func (b ManualVerifyBackend) Build(m *Material) (Connector, error) {
	// Verification mode committed here: the handshake never verifies, the
	// connector's verifier does.
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		NextProtos:         []string{"h2", "http/1.1"},
		InsecureSkipVerify: true, //nolint:gosec // verification is performed by the manual verifier
	}
	if m.Identity != nil {
		cfg.Certificates = []tls.Certificate{*m.Identity}
	}

	c := &manualConnector{
		config:     cfg,
		roots:      m.RootCAs,
		serverName: m.ServerName,
	}
	c.verify = c.chainVerify

	if m.InsecureSkipVerify {
		// Must run after the connector is otherwise fully built; an
		// earlier installation point does not exist in this backend.
		c.overrideVerify(func([][]byte, string) error { return nil })
	}

	return c, nil
}

type manualConnector struct {
	config     *tls.Config
	roots      *x509.CertPool
	serverName string
	verify     verifyFunc
}

// overrideVerify swaps the verifier on a built connector. Connectors are not
// handed out until construction finishes, so no locking is needed.
func (c *manualConnector) overrideVerify(v verifyFunc) {
	c.verify = v
}

// BackendName implements Connector.
func (c *manualConnector) BackendName() string { return ManualVerifyBackend{}.Name() }

// Transport implements Connector.
func (c *manualConnector) Transport() *http.Transport {
	return poolSettings(&http.Transport{
		DialTLSContext: c.dialTLS,
	})
}

func (c *manualConnector) dialTLS(ctx context.Context, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	serverName := c.serverName
	if serverName == "" {
		serverName = host
	}

	// Per-connection clone: the verifier needs the dialed name, which the
	// shared config cannot carry.
	cfg := c.config.Clone()
	cfg.ServerName = serverName
	cfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		return c.verify(rawCerts, serverName)
	}

	d := &tls.Dialer{Config: cfg}
	return d.DialContext(ctx, network, addr)
}

// chainVerify is the standard verification path: build the peer chain and
// validate it against the configured roots (or the platform's when none were
// supplied), including host name verification.
func (c *manualConnector) chainVerify(rawCerts [][]byte, serverName string) error {
	if len(rawCerts) == 0 {
		return fmt.Errorf("peer presented no certificates")
	}

	certs := make([]*x509.Certificate, 0, len(rawCerts))
	for _, raw := range rawCerts {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return fmt.Errorf("failed to parse peer certificate: %w", err)
		}
		certs = append(certs, cert)
	}

	roots := c.roots
	if roots == nil {
		systemRoots, err := x509.SystemCertPool()
		if err != nil {
			return fmt.Errorf("failed to load system trust store: %w", err)
		}
		roots = systemRoots
	}

	intermediates := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediates.AddCert(cert)
	}

	_, err := certs[0].Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		DNSName:       serverName,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	return err
}
