package tlsconn

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allBackends() []Backend {
	return []Backend{
		NativeBackend{},
		ManualVerifyBackend{},
		RootCertsBackend{},
	}
}

// badLeaf issues a certificate that fails every standard check: untrusted
// issuer, expired, and wrong host.
func badLeaf(t *testing.T, ca *testCA) (certPEM, keyPEM []byte) {
	t.Helper()
	return ca.issue(t, leafOptions{
		dnsNames: []string{"wrong.example"},
		notAfter: time.Now().Add(-time.Minute),
	})
}

func TestBackends_VerificationBypass(t *testing.T) {
	t.Parallel()

	rogueCA := newTestCA(t, "rogue-ca")
	certPEM, keyPEM := badLeaf(t, rogueCA)
	ts := startTLSServer(t, certPEM, keyPEM)

	for _, backend := range allBackends() {
		t.Run(backend.Name(), func(t *testing.T) {
			t.Parallel()

			t.Run("bypass on", func(t *testing.T) {
				t.Parallel()

				m, err := LoadMaterial(nil, nil, nil, true)
				require.NoError(t, err)
				c, err := backend.Build(m)
				require.NoError(t, err)

				assert.NoError(t, get(t, c, ts.URL),
					"bypass must accept a certificate failing every check")
			})

			t.Run("bypass off", func(t *testing.T) {
				t.Parallel()

				m, err := LoadMaterial(nil, nil, nil, false)
				require.NoError(t, err)
				c, err := backend.Build(m)
				require.NoError(t, err)

				assert.Error(t, get(t, c, ts.URL),
					"the same handshake must fail once bypass is off")
			})
		})
	}
}

func TestBackends_CustomRootBundle(t *testing.T) {
	t.Parallel()

	trustedCA := newTestCA(t, "trusted-ca")
	otherCA := newTestCA(t, "other-ca")

	trustedCert, trustedKey := trustedCA.localhostLeaf(t)
	trustedServer := startTLSServer(t, trustedCert, trustedKey)

	otherCert, otherKey := otherCA.localhostLeaf(t)
	otherServer := startTLSServer(t, otherCert, otherKey)

	for _, backend := range allBackends() {
		t.Run(backend.Name(), func(t *testing.T) {
			t.Parallel()

			m, err := LoadMaterial(nil, nil, trustedCA.pem, false)
			require.NoError(t, err)
			c, err := backend.Build(m)
			require.NoError(t, err)

			assert.NoError(t, get(t, c, trustedServer.URL),
				"peer signed by the supplied bundle must be accepted")
			assert.Error(t, get(t, c, otherServer.URL),
				"peer signed outside the supplied bundle must be rejected")
		})
	}
}

func TestBackends_ClientIdentity(t *testing.T) {
	t.Parallel()

	serverCA := newTestCA(t, "server-ca")
	clientCA := newTestCA(t, "client-ca")

	serverCert, serverKey := serverCA.localhostLeaf(t)
	clientCert, clientKey := clientCA.issue(t, leafOptions{clientUsage: true})

	clientPool := x509.NewCertPool()
	require.True(t, clientPool.AppendCertsFromPEM(clientCA.pem))

	serverPair, err := tls.X509KeyPair(serverCert, serverKey)
	require.NoError(t, err)

	sawClientCert := false
	ts := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawClientCert = r.TLS != nil && len(r.TLS.PeerCertificates) > 0
		w.WriteHeader(http.StatusNoContent)
	}))
	ts.TLS = &tls.Config{
		Certificates: []tls.Certificate{serverPair},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    clientPool,
	}
	ts.StartTLS()
	defer ts.Close()

	for _, backend := range allBackends() {
		t.Run(backend.Name(), func(t *testing.T) {
			m, err := LoadMaterial(clientCert, clientKey, serverCA.pem, false)
			require.NoError(t, err)
			c, err := backend.Build(m)
			require.NoError(t, err)

			sawClientCert = false
			require.NoError(t, get(t, c, ts.URL))
			assert.True(t, sawClientCert, "identity must be presented during the handshake")
		})
	}
}

func TestBackends_RepeatableBuild(t *testing.T) {
	t.Parallel()

	ca := newTestCA(t, "repeat-ca")
	certPEM, keyPEM := ca.localhostLeaf(t)
	ts := startTLSServer(t, certPEM, keyPEM)

	for _, backend := range allBackends() {
		t.Run(backend.Name(), func(t *testing.T) {
			t.Parallel()

			for range 2 {
				m, err := LoadMaterial(nil, nil, ca.pem, false)
				require.NoError(t, err)
				c, err := backend.Build(m)
				require.NoError(t, err)
				assert.NoError(t, get(t, c, ts.URL))
			}
		})
	}
}

func TestLoadMaterial_Identity(t *testing.T) {
	t.Parallel()

	ca := newTestCA(t, "identity-ca")
	certPEM, keyPEM := ca.issue(t, leafOptions{clientUsage: true})
	_, otherKey := ca.issue(t, leafOptions{clientUsage: true})

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		m, err := LoadMaterial(certPEM, keyPEM, nil, false)
		require.NoError(t, err)
		require.NotNil(t, m.Identity)
		assert.Nil(t, m.RootCAs)
	})

	t.Run("cert without key", func(t *testing.T) {
		t.Parallel()

		_, err := LoadMaterial(certPEM, nil, nil, false)
		assert.ErrorIs(t, err, ErrInvalidIdentity)
	})

	t.Run("unparsable key", func(t *testing.T) {
		t.Parallel()

		_, err := LoadMaterial(certPEM, []byte("not pem"), nil, false)
		assert.ErrorIs(t, err, ErrInvalidIdentity)
	})

	t.Run("multiple keys", func(t *testing.T) {
		t.Parallel()

		doubled := append(append([]byte(nil), keyPEM...), keyPEM...)
		_, err := LoadMaterial(certPEM, doubled, nil, false)
		assert.ErrorIs(t, err, ErrInvalidIdentity)
	})

	t.Run("key mismatch", func(t *testing.T) {
		t.Parallel()

		_, err := LoadMaterial(certPEM, otherKey, nil, false)
		assert.ErrorIs(t, err, ErrInvalidIdentity)
	})

	t.Run("bad trust bundle", func(t *testing.T) {
		t.Parallel()

		_, err := LoadMaterial(nil, nil, []byte("garbage"), false)
		assert.ErrorIs(t, err, ErrInvalidTrustBundle)
	})

	t.Run("empty bundle means platform store", func(t *testing.T) {
		t.Parallel()

		m, err := LoadMaterial(nil, nil, nil, false)
		require.NoError(t, err)
		assert.Nil(t, m.RootCAs)
		assert.Empty(t, m.RootPEM())
	})
}

func TestManualConnector_ServerNameFromAddr(t *testing.T) {
	t.Parallel()

	ca := newTestCA(t, "sni-ca")
	certPEM, keyPEM := ca.issue(t, leafOptions{dnsNames: []string{"api.internal"}})
	ts := startTLSServer(t, certPEM, keyPEM)

	_, port, err := net.SplitHostPort(ts.Listener.Addr().String())
	require.NoError(t, err)

	m, err := LoadMaterial(nil, nil, ca.pem, false)
	require.NoError(t, err)
	m.ServerName = "api.internal"

	c, err := ManualVerifyBackend{}.Build(m)
	require.NoError(t, err)

	// The dialed address is the loopback, verification runs against the
	// overridden server name.
	assert.NoError(t, get(t, c, "https://127.0.0.1:"+port))
}
