package transport

import (
	"net/http"
	"net/url"
	"strings"
)

// baseURIRoundTripper rewrites the authority of every outgoing request to
// the configured server address. Callers build requests with relative paths
// and never learn the real address; path, query, headers, and body pass
// through untouched.
type baseURIRoundTripper struct {
	base *url.URL
	next http.RoundTripper
}

// NewBaseURI returns the base-URI rewrite stage over next.
func NewBaseURI(base *url.URL, next http.RoundTripper) http.RoundTripper {
	return &baseURIRoundTripper{base: base, next: next}
}

// RoundTrip implements http.RoundTripper. The caller's request value is
// never mutated.
func (rt *baseURIRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = rt.base.Scheme
	r.URL.Host = rt.base.Host
	r.Host = ""
	if rt.base.Path != "" && rt.base.Path != "/" {
		// A server behind a path-prefixing proxy: the prefix goes in
		// front of the caller's path.
		r.URL.Path = strings.TrimSuffix(rt.base.Path, "/") + r.URL.Path
	}
	return rt.next.RoundTrip(r)
}
