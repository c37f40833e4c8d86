package auth

import (
	"go.uber.org/zap"

	"github.com/vyrodovalexey/avaclient/internal/config"
	"github.com/vyrodovalexey/avaclient/internal/secret"
)

// Kind identifies an authentication mode variant.
type Kind string

const (
	// KindNone means requests carry no credentials.
	KindNone Kind = "none"
	// KindBasic means requests carry a basic Authorization header.
	KindBasic Kind = "basic"
	// KindBearer means requests carry a static bearer token.
	KindBearer Kind = "bearer"
	// KindRefreshable means requests carry a token fetched on demand from
	// a token source.
	KindRefreshable Kind = "refreshable"
)

// Mode is the exclusive authentication strategy derived from configuration.
// Exactly one variant is produced per configuration; values are immutable
// after classification (the Refreshable handle's cached token mutates, the
// Mode value itself does not).
type Mode interface {
	// Kind returns the variant tag.
	Kind() Kind
}

// None is the absent-credentials mode.
type None struct{}

// Kind implements Mode.
func (None) Kind() Kind { return KindNone }

// Basic is the username/password mode.
type Basic struct {
	Username string
	Password secret.Secret
}

// Kind implements Mode.
func (Basic) Kind() Kind { return KindBasic }

// Bearer is the static token mode.
type Bearer struct {
	Token secret.Secret
}

// Kind implements Mode.
func (Bearer) Kind() Kind { return KindBearer }

// Refreshable is the asynchronous-refresh mode. The handle can be asked for
// the currently valid token at call time.
type Refreshable struct {
	Refresher *Refresher
}

// Kind implements Mode.
func (Refreshable) Kind() Kind { return KindRefreshable }

// FromConfig classifies the raw credential configuration into exactly one
// Mode. Evaluation is in priority order, first match wins: refreshable token
// source, static bearer token, basic credentials, none. It fails with
// ErrInvalidAuthConfig when the configuration is internally inconsistent.
func FromConfig(cfg *config.AuthConfig, logger *zap.Logger) (Mode, error) {
	if cfg == nil {
		return None{}, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.OAuth2 != nil && cfg.Vault != nil {
		return nil, newConfigError("oauth2/vault", "at most one refreshable token source may be configured")
	}

	// Half-configured basic credentials are rejected regardless of which
	// variant ends up selected: a configuration that cannot mean anything
	// is an error, not something to silently outrank.
	if (cfg.Username == "") != cfg.Password.IsZero() {
		return nil, newConfigError("username/password", "username and password must be configured together")
	}

	// A token file that resolved to nothing is a broken credential, not an
	// unauthenticated client.
	if cfg.TokenFile != "" && cfg.Token.IsZero() {
		return nil, newConfigError("tokenFile", "token file resolved to an empty token")
	}

	switch {
	case cfg.OAuth2 != nil:
		source, err := NewOAuth2TokenSource(cfg.OAuth2, logger)
		if err != nil {
			return nil, err
		}
		return Refreshable{
			Refresher: NewRefresher(source,
				WithRefreshBuffer(cfg.OAuth2.RefreshBuffer.Duration()),
				WithRefresherLogger(logger),
			),
		}, nil

	case cfg.Vault != nil:
		source, err := NewVaultTokenSource(cfg.Vault, logger)
		if err != nil {
			return nil, err
		}
		return Refreshable{
			Refresher: NewRefresher(source,
				WithRefreshBuffer(cfg.Vault.RefreshBuffer.Duration()),
				WithRefresherLogger(logger),
			),
		}, nil

	case !cfg.Token.IsZero():
		return Bearer{Token: cfg.Token}, nil

	case cfg.Username != "":
		return Basic{Username: cfg.Username, Password: cfg.Password}, nil

	default:
		return None{}, nil
	}
}
