package auth

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/vyrodovalexey/avaclient/internal/secret"
)

// Token is a credential produced by a TokenSource together with its expiry.
// A zero ExpiresAt means the token does not expire.
type Token struct {
	// Value is the token itself.
	Value secret.Secret

	// ExpiresAt is the instant after which the token is no longer valid.
	ExpiresAt time.Time
}

// Expired reports whether the token is past its expiry.
func (t *Token) Expired() bool {
	return t.ExpiresWithin(0)
}

// ExpiresWithin reports whether the token expires within the given buffer.
func (t *Token) ExpiresWithin(buffer time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(buffer).After(t.ExpiresAt)
}

// TokenSource produces valid tokens on demand. Implementations must be safe
// for concurrent use; the Refresher additionally guarantees that at most one
// Token call per Refresher is in flight at a time.
type TokenSource interface {
	Token(ctx context.Context) (*Token, error)
}

// TokenSourceFunc adapts a function to the TokenSource interface.
type TokenSourceFunc func(ctx context.Context) (*Token, error)

// Token implements TokenSource.
func (f TokenSourceFunc) Token(ctx context.Context) (*Token, error) {
	return f(ctx)
}

// Refresher caches the current token and coordinates refreshes. Concurrent
// callers that observe a stale token share a single refresh operation and all
// resume with its result, success or failure. The cached token and its expiry
// are the only mutable state.
type Refresher struct {
	source  TokenSource
	buffer  time.Duration
	timeout time.Duration
	logger  *zap.Logger

	group   singleflight.Group
	mu      sync.RWMutex
	current *Token
}

// RefresherOption is a functional option for configuring a Refresher.
type RefresherOption func(*Refresher)

// WithRefreshBuffer sets how long before expiry a token counts as stale.
func WithRefreshBuffer(buffer time.Duration) RefresherOption {
	return func(r *Refresher) {
		if buffer > 0 {
			r.buffer = buffer
		}
	}
}

// WithRefreshTimeout bounds a single refresh operation.
func WithRefreshTimeout(timeout time.Duration) RefresherOption {
	return func(r *Refresher) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithRefresherLogger sets the logger.
func WithRefresherLogger(logger *zap.Logger) RefresherOption {
	return func(r *Refresher) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRefresher creates a Refresher over the given source.
func NewRefresher(source TokenSource, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		source:  source,
		buffer:  60 * time.Second,
		timeout: 30 * time.Second,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Current returns the currently valid token, refreshing it first when the
// cached one is missing or stale. If the caller's context is cancelled while
// a refresh is in flight, the caller stops waiting but the refresh itself
// continues for the benefit of other waiters.
func (r *Refresher) Current(ctx context.Context) (secret.Secret, error) {
	r.mu.RLock()
	current := r.current
	r.mu.RUnlock()

	if current != nil && !current.ExpiresWithin(r.buffer) {
		return current.Value, nil
	}

	ch := r.group.DoChan("refresh", r.refresh)

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(*Token).Value, nil
	}
}

// refresh fetches a new token from the source and caches it. It runs on a
// context detached from whichever request happened to trigger it: the refresh
// is shared state keyed by the refresher, not by any one request.
func (r *Refresher) refresh() (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	start := time.Now()
	token, err := r.source.Token(ctx)
	if err != nil {
		observeRefresh("error", time.Since(start))
		r.logger.Warn("token refresh failed", zap.Error(err))
		return nil, err
	}
	if token == nil || token.Value.IsZero() {
		observeRefresh("empty", time.Since(start))
		return nil, ErrEmptyToken
	}

	r.mu.Lock()
	r.current = token
	r.mu.Unlock()

	observeRefresh("success", time.Since(start))
	r.logger.Debug("token refreshed",
		zap.Time("expiresAt", token.ExpiresAt),
	)
	return token, nil
}

// Invalidate drops the cached token so the next request triggers a refresh.
func (r *Refresher) Invalidate() {
	r.mu.Lock()
	r.current = nil
	r.mu.Unlock()
}
