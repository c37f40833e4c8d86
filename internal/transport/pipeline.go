package transport

import (
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/avaclient/internal/auth"
	"github.com/vyrodovalexey/avaclient/internal/config"
	"github.com/vyrodovalexey/avaclient/internal/transport/tlsconn"
)

// Pipeline is the composed request path: base-URI rewrite, then credential
// injection, then the secure transport. Construction either fully succeeds
// or fails; a partially built pipeline is never returned. The pipeline is
// immutable and safe for arbitrarily many concurrent callers.
type Pipeline struct {
	rt       http.RoundTripper
	base     *url.URL
	authKind auth.Kind
	backend  string
}

// Option is a functional option for pipeline construction.
type Option func(*builder)

type builder struct {
	backend tlsconn.Backend
	logger  *zap.Logger
}

// WithBackend selects the TLS connector backend. The default is
// tlsconn.DefaultBackend.
func WithBackend(b tlsconn.Backend) Option {
	return func(o *builder) {
		if b != nil {
			o.backend = b
		}
	}
}

// WithLogger sets the logger used by the pipeline and its stages.
func WithLogger(logger *zap.Logger) Option {
	return func(o *builder) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New builds a pipeline from the connection configuration. All derivations
// (credential classification, trust material parsing, connector
// construction) happen here, once; per-request work is limited to header
// injection and the refresh check inside the refreshable path.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	b := &builder{
		backend: tlsconn.DefaultBackend(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	base, err := cfg.ServerURL()
	if err != nil {
		return nil, err
	}

	material, err := tlsconn.LoadMaterial(
		[]byte(cfg.TLS.CertData),
		[]byte(cfg.TLS.KeyData.Value()),
		[]byte(cfg.TLS.CAData),
		cfg.TLS.InsecureSkipVerify,
	)
	if err != nil {
		return nil, err
	}
	material.ServerName = cfg.TLS.ServerName

	connector, err := b.backend.Build(material)
	if err != nil {
		return nil, err
	}

	mode, err := auth.FromConfig(&cfg.Auth, b.logger.Named("auth"))
	if err != nil {
		return nil, err
	}

	var rt http.RoundTripper = connector.Transport()
	switch m := mode.(type) {
	case auth.None:
		// no credential stage
	case auth.Basic:
		rt = NewStaticAuth(BasicAuthHeader(m.Username, m.Password), rt)
	case auth.Bearer:
		rt = NewStaticAuth(BearerAuthHeader(m.Token), rt)
	case auth.Refreshable:
		rt = NewRefreshableAuth(m.Refresher, rt)
	}
	rt = NewBaseURI(base, rt)

	b.logger.Debug("pipeline constructed",
		zap.String("server", base.Redacted()),
		zap.String("authMode", string(mode.Kind())),
		zap.String("tlsBackend", connector.BackendName()),
		zap.Bool("insecureSkipVerify", cfg.TLS.InsecureSkipVerify),
	)

	return &Pipeline{
		rt:       rt,
		base:     base,
		authKind: mode.Kind(),
		backend:  connector.BackendName(),
	}, nil
}

// RoundTrip implements http.RoundTripper.
func (p *Pipeline) RoundTrip(req *http.Request) (*http.Response, error) {
	return p.rt.RoundTrip(req)
}

// BaseURL returns the configured server address, for display and
// diagnostics only.
func (p *Pipeline) BaseURL() *url.URL {
	u := *p.base
	return &u
}

// AuthKind reports the classified authentication mode.
func (p *Pipeline) AuthKind() auth.Kind {
	return p.authKind
}

// BackendName reports the TLS backend the pipeline was built with.
func (p *Pipeline) BackendName() string {
	return p.backend
}
