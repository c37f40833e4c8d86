package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/vyrodovalexey/avaclient/internal/secret"
)

// Validation errors.
var (
	// ErrMissingServer indicates that no server address was configured.
	ErrMissingServer = errors.New("server address is required")

	// ErrInvalidServer indicates that the server address is not an absolute
	// http(s) URL.
	ErrInvalidServer = errors.New("invalid server address")

	// ErrIncompleteIdentity indicates that only one half of the client
	// certificate/key pair was configured.
	ErrIncompleteIdentity = errors.New("client certificate and key must be configured together")
)

// Config is the fully resolved connection configuration for one client.
// It is supplied once at client construction and never mutated afterwards.
type Config struct {
	// Server is the base address of the remote API server, e.g.
	// "https://cluster.example:6443". Every request issued through the
	// client is rewritten to target this address.
	Server string `yaml:"server" json:"server"`

	// TLS configures trust material for the connection.
	TLS TLSConfig `yaml:"tls,omitempty" json:"tls,omitempty"`

	// Auth configures the credential source for the connection.
	Auth AuthConfig `yaml:"auth,omitempty" json:"auth,omitempty"`

	// Timeout is the per-request timeout applied by the client facade.
	// Zero means no client-enforced timeout.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// RateLimit configures optional client-side rate limiting.
	RateLimit *RateLimitConfig `yaml:"rateLimit,omitempty" json:"rateLimit,omitempty"`
}

// TLSConfig holds the transport-security inputs. Inline *Data fields hold
// PEM text; *File fields are resolved into the corresponding *Data fields by
// the loader, so the pipeline itself never touches the filesystem.
type TLSConfig struct {
	// CAFile is a path to a PEM bundle of root certificates.
	CAFile string `yaml:"caFile,omitempty" json:"caFile,omitempty"`

	// CAData is a PEM bundle of root certificates. Empty means the
	// platform's default trust store is used.
	CAData string `yaml:"caData,omitempty" json:"caData,omitempty"`

	// CertFile is a path to the client certificate chain (PEM).
	CertFile string `yaml:"certFile,omitempty" json:"certFile,omitempty"`

	// CertData is the client certificate chain (PEM).
	CertData string `yaml:"certData,omitempty" json:"certData,omitempty"`

	// KeyFile is a path to the client private key (PEM).
	KeyFile string `yaml:"keyFile,omitempty" json:"keyFile,omitempty"`

	// KeyData is the client private key (PEM). Never logged.
	KeyData secret.Secret `yaml:"keyData,omitempty" json:"keyData,omitempty"`

	// InsecureSkipVerify disables peer certificate verification entirely.
	InsecureSkipVerify bool `yaml:"insecureSkipVerify,omitempty" json:"insecureSkipVerify,omitempty"`

	// ServerName overrides the server name used for certificate
	// verification and SNI. Defaults to the host of Server.
	ServerName string `yaml:"serverName,omitempty" json:"serverName,omitempty"`
}

// HasIdentity reports whether client certificate material is configured.
func (t *TLSConfig) HasIdentity() bool {
	return t.CertData != "" || t.CertFile != ""
}

// AuthConfig holds the raw credential configuration. At most one credential
// source is honored; precedence is resolved by the credential classifier.
type AuthConfig struct {
	// Username for basic authentication. Requires Password.
	Username string `yaml:"username,omitempty" json:"username,omitempty"`

	// Password for basic authentication.
	Password secret.Secret `yaml:"password,omitempty" json:"password,omitempty"`

	// Token is a static bearer token.
	Token secret.Secret `yaml:"token,omitempty" json:"token,omitempty"`

	// TokenFile is a path to a file holding a static bearer token; the
	// loader resolves it into Token.
	TokenFile string `yaml:"tokenFile,omitempty" json:"tokenFile,omitempty"`

	// OAuth2 configures a refreshable token fetched with the OAuth2
	// client-credentials flow.
	OAuth2 *OAuth2Config `yaml:"oauth2,omitempty" json:"oauth2,omitempty"`

	// Vault configures a refreshable token obtained from a Vault AppRole
	// login.
	Vault *VaultConfig `yaml:"vault,omitempty" json:"vault,omitempty"`
}

// OAuth2Config configures the client-credentials token source.
type OAuth2Config struct {
	// TokenURL is the OAuth2 token endpoint.
	TokenURL string `yaml:"tokenUrl" json:"tokenUrl"`

	// ClientID is the OAuth2 client ID.
	ClientID string `yaml:"clientId" json:"clientId"`

	// ClientSecret is the OAuth2 client secret.
	ClientSecret secret.Secret `yaml:"clientSecret" json:"clientSecret"`

	// Scopes is the list of scopes to request.
	Scopes []string `yaml:"scopes,omitempty" json:"scopes,omitempty"`

	// Timeout is the timeout for token endpoint requests.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// RefreshBuffer is how long before expiry a token is considered stale.
	RefreshBuffer Duration `yaml:"refreshBuffer,omitempty" json:"refreshBuffer,omitempty"`
}

// VaultConfig configures the Vault AppRole token source.
type VaultConfig struct {
	// Address is the Vault server address.
	Address string `yaml:"address" json:"address"`

	// RoleID is the AppRole role ID.
	RoleID string `yaml:"roleId" json:"roleId"`

	// SecretID is the AppRole secret ID.
	SecretID secret.Secret `yaml:"secretId" json:"secretId"`

	// MountPath is the AppRole auth mount path. Defaults to "approle".
	MountPath string `yaml:"mountPath,omitempty" json:"mountPath,omitempty"`

	// Namespace is the Vault namespace, if any.
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`

	// RefreshBuffer is how long before lease expiry a token is considered
	// stale.
	RefreshBuffer Duration `yaml:"refreshBuffer,omitempty" json:"refreshBuffer,omitempty"`
}

// RateLimitConfig configures client-side request rate limiting.
type RateLimitConfig struct {
	// QPS is the sustained request rate.
	QPS float64 `yaml:"qps" json:"qps"`

	// Burst is the maximum burst size. Defaults to QPS rounded up when
	// unset.
	Burst int `yaml:"burst,omitempty" json:"burst,omitempty"`
}

// DefaultConfig returns a Config with default values. A usable configuration
// still needs at least Server set.
func DefaultConfig() *Config {
	return &Config{
		Timeout: Duration(30 * time.Second),
	}
}

// ServerURL parses and returns the configured server address.
func (c *Config) ServerURL() (*url.URL, error) {
	if c.Server == "" {
		return nil, ErrMissingServer
	}
	u, err := url.Parse(c.Server)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidServer, err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidServer, c.Server)
	}
	return u, nil
}

// Validate checks the structural consistency of the configuration. Credential
// classification (mutually exclusive auth sources) is validated separately by
// the auth package at client construction.
func (c *Config) Validate() error {
	if _, err := c.ServerURL(); err != nil {
		return err
	}

	hasCert := c.TLS.CertData != "" || c.TLS.CertFile != ""
	hasKey := !c.TLS.KeyData.IsZero() || c.TLS.KeyFile != ""
	if hasCert != hasKey {
		return ErrIncompleteIdentity
	}

	if c.RateLimit != nil && c.RateLimit.QPS <= 0 {
		return fmt.Errorf("rateLimit.qps must be positive, got %v", c.RateLimit.QPS)
	}

	return nil
}
