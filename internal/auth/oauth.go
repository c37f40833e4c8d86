package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/avaclient/internal/config"
	"github.com/vyrodovalexey/avaclient/internal/secret"
)

// tokenResponse is the wire form of an OAuth2 token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// OAuth2TokenSource obtains tokens with the OAuth2 client-credentials flow.
// Endpoint calls are retried on transient failures and guarded by a circuit
// breaker so a misbehaving token endpoint cannot be hammered by refresh
// attempts.
type OAuth2TokenSource struct {
	tokenURL     string
	clientID     string
	clientSecret secret.Secret
	scopes       []string
	httpClient   *retryablehttp.Client
	breaker      *gobreaker.CircuitBreaker
	logger       *zap.Logger
}

// NewOAuth2TokenSource creates a token source from configuration.
func NewOAuth2TokenSource(cfg *config.OAuth2Config, logger *zap.Logger) (*OAuth2TokenSource, error) {
	if cfg == nil {
		return nil, newConfigError("oauth2", "configuration is required")
	}
	if cfg.TokenURL == "" {
		return nil, newConfigError("oauth2.tokenUrl", "token endpoint is required")
	}
	if cfg.ClientID == "" {
		return nil, newConfigError("oauth2.clientId", "client ID is required")
	}
	if cfg.ClientSecret.IsZero() {
		return nil, newConfigError("oauth2.clientSecret", "client secret is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 2
	httpClient.RetryWaitMin = 200 * time.Millisecond
	httpClient.RetryWaitMax = 2 * time.Second
	httpClient.HTTPClient.Timeout = timeout
	httpClient.Logger = nil

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "oauth2-token-endpoint",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("token endpoint circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &OAuth2TokenSource{
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		scopes:       cfg.Scopes,
		httpClient:   httpClient,
		breaker:      breaker,
		logger:       logger,
	}, nil
}

// Token implements TokenSource.
func (s *OAuth2TokenSource) Token(ctx context.Context) (*Token, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Token), nil
}

func (s *OAuth2TokenSource) fetch(ctx context.Context) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", s.clientID)
	form.Set("client_secret", s.clientSecret.Value())
	if len(s.scopes) > 0 {
		form.Set("scope", strings.Join(s.scopes, " "))
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// Response bodies from a failed token endpoint are not logged or
		// echoed: they can quote the submitted credentials.
		s.logger.Error("token request rejected",
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("token request failed: status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("invalid token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, ErrEmptyToken
	}

	return &Token{
		Value:     secret.Secret(tr.AccessToken),
		ExpiresAt: tokenExpiry(tr),
	}, nil
}

// tokenExpiry determines when the token expires. The expires_in field wins;
// for endpoints that omit it, a JWT access token's exp claim is used, and as
// a last resort the token is treated as valid for an hour.
func tokenExpiry(tr tokenResponse) time.Time {
	if tr.ExpiresIn > 0 {
		return time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	if exp, ok := jwtExpiry(tr.AccessToken); ok {
		return exp
	}
	return time.Now().Add(time.Hour)
}

// jwtExpiry extracts the exp claim from a JWT without verifying it. The
// token is only inspected, never trusted, so skipping verification is fine.
func jwtExpiry(raw string) (time.Time, bool) {
	parsed, err := jwt.ParseInsecure([]byte(raw))
	if err != nil {
		return time.Time{}, false
	}
	exp := parsed.Expiration()
	if exp.IsZero() {
		return time.Time{}, false
	}
	return exp, true
}
