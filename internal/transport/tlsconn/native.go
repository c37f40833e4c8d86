package tlsconn

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
)

// NativeBackend builds connectors directly on the standard TLS stack. Its
// verification mode, including the bypass, is committed inside the builder:
// once Build returns, the connector's behavior is fixed.
type NativeBackend struct{}

// Name implements Backend.
func (NativeBackend) Name() string { return "native" }

// Build implements Backend.
func (b NativeBackend) Build(m *Material) (Connector, error) {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		NextProtos: []string{"h2", "http/1.1"},
	}
	if m.Identity != nil {
		cfg.Certificates = []tls.Certificate{*m.Identity}
	}
	cfg.RootCAs = m.RootCAs
	cfg.ServerName = m.ServerName
	cfg.InsecureSkipVerify = m.InsecureSkipVerify

	return &nativeConnector{config: cfg}, nil
}

type nativeConnector struct {
	config *tls.Config
}

// BackendName implements Connector.
func (c *nativeConnector) BackendName() string { return NativeBackend{}.Name() }

// Transport implements Connector.
func (c *nativeConnector) Transport() *http.Transport {
	return poolSettings(&http.Transport{
		DialTLSContext: c.dialTLS,
	})
}

func (c *nativeConnector) dialTLS(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &tls.Dialer{Config: c.config}
	return d.DialContext(ctx, network, addr)
}
