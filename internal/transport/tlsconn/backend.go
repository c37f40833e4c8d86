package tlsconn

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrSetup is the sentinel for connector construction failures.
var ErrSetup = errors.New("tls connector setup failed")

// SetupError reports a connector construction failure with the backend that
// produced it. Handshake-time certificate failures are not SetupErrors; they
// surface from the transport on each connection attempt.
type SetupError struct {
	Backend string
	Cause   error
}

// Error implements the error interface.
func (e *SetupError) Error() string {
	return fmt.Sprintf("tls connector setup failed (backend %s): %v", e.Backend, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *SetupError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target is ErrSetup.
func (e *SetupError) Is(target error) bool {
	return errors.Is(target, ErrSetup)
}

// Connector performs TLS handshakes and hands validated bytes to an HTTP
// transport. Connectors are immutable after construction and safe for
// concurrent use.
type Connector interface {
	// BackendName reports which backend built the connector.
	BackendName() string

	// Transport returns an HTTP transport wired to this connector's
	// handshake path. Each call returns a fresh transport; the connector
	// itself is shared.
	Transport() *http.Transport
}

// Backend builds a Connector from trust material. Exactly one backend is
// selected when a client is assembled; the choice is fixed for the life of
// the client.
type Backend interface {
	// Name identifies the backend in errors and diagnostics.
	Name() string

	// Build constructs a connector. It fails with a *SetupError when the
	// material cannot be turned into a working connector.
	Build(m *Material) (Connector, error)
}

// DefaultBackend returns the backend used when no explicit selection is
// made.
func DefaultBackend() Backend {
	return NativeBackend{}
}

// poolSettings applies the shared connection pool tuning to a transport.
func poolSettings(t *http.Transport) *http.Transport {
	t.MaxIdleConns = 100
	t.MaxIdleConnsPerHost = 10
	t.IdleConnTimeout = 90 * time.Second
	t.TLSHandshakeTimeout = 10 * time.Second
	t.ExpectContinueTimeout = 1 * time.Second
	t.ForceAttemptHTTP2 = true
	return t
}
