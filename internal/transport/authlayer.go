package transport

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/avaclient/internal/auth"
	"github.com/vyrodovalexey/avaclient/internal/secret"
)

// BasicAuthHeader computes the Authorization header value for basic
// credentials. The result is a Secret: it never renders in logs or errors.
func BasicAuthHeader(username string, password secret.Secret) secret.Secret {
	raw := username + ":" + password.Value()
	return secret.Secret("Basic " + base64.StdEncoding.EncodeToString([]byte(raw)))
}

// BearerAuthHeader computes the Authorization header value for a bearer
// token.
func BearerAuthHeader(token secret.Secret) secret.Secret {
	return secret.Secret("Bearer " + token.Value())
}

// staticAuthRoundTripper sets a statically computed Authorization header on
// every request.
type staticAuthRoundTripper struct {
	header secret.Secret
	next   http.RoundTripper
}

// NewStaticAuth returns the credential-injection stage for Basic and Bearer
// modes.
func NewStaticAuth(header secret.Secret, next http.RoundTripper) http.RoundTripper {
	return &staticAuthRoundTripper{header: header, next: next}
}

// RoundTrip implements http.RoundTripper.
func (rt *staticAuthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", rt.header.Value())
	return rt.next.RoundTrip(r)
}

// refreshableAuthRoundTripper asks the shared refresher for the current
// token on every request. A request whose token cannot be produced fails
// with ErrAuthUnavailable instead of going out unauthenticated.
type refreshableAuthRoundTripper struct {
	refresher *auth.Refresher
	next      http.RoundTripper
}

// NewRefreshableAuth returns the credential-injection stage for the
// Refreshable mode.
func NewRefreshableAuth(refresher *auth.Refresher, next http.RoundTripper) http.RoundTripper {
	return &refreshableAuthRoundTripper{refresher: refresher, next: next}
}

// RoundTrip implements http.RoundTripper.
func (rt *refreshableAuthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := rt.refresher.Current(req.Context())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", auth.ErrAuthUnavailable, err)
	}

	r := req.Clone(req.Context())
	r.Header.Set("Authorization", BearerAuthHeader(token).Value())
	return rt.next.RoundTrip(r)
}
