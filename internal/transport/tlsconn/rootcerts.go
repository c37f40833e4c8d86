package tlsconn

import (
	"crypto/tls"
	"net/http"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-rootcerts"
)

// RootCertsBackend builds connectors whose trust store is assembled through
// the rootcerts helper (which natively handles the fall-back to the platform
// store) on top of cleanhttp's pooled transport. Like the native backend, its
// bypass is committed at build time.
type RootCertsBackend struct{}

// Name implements Backend.
func (RootCertsBackend) Name() string { return "rootcerts" }

// Build implements Backend.
func (b RootCertsBackend) Build(m *Material) (Connector, error) {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		NextProtos: []string{"h2", "http/1.1"},
	}

	rcConfig := &rootcerts.Config{}
	if pem := m.RootPEM(); len(pem) > 0 {
		rcConfig.CACertificate = pem
	}
	if err := rootcerts.ConfigureTLS(cfg, rcConfig); err != nil {
		return nil, &SetupError{Backend: b.Name(), Cause: err}
	}

	if m.Identity != nil {
		cfg.Certificates = []tls.Certificate{*m.Identity}
	}
	cfg.ServerName = m.ServerName
	cfg.InsecureSkipVerify = m.InsecureSkipVerify

	return &rootCertsConnector{config: cfg}, nil
}

type rootCertsConnector struct {
	config *tls.Config
}

// BackendName implements Connector.
func (c *rootCertsConnector) BackendName() string { return RootCertsBackend{}.Name() }

// Transport implements Connector.
func (c *rootCertsConnector) Transport() *http.Transport {
	t := cleanhttp.DefaultPooledTransport()
	t.TLSClientConfig = c.config
	t.ForceAttemptHTTP2 = true
	return t
}
