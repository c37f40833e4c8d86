package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaclient/internal/config"
	"github.com/vyrodovalexey/avaclient/internal/secret"
)

type recordedRequest struct {
	path      string
	auth      string
	requestID string
}

func startServer(t *testing.T) (*httptest.Server, func() []recordedRequest) {
	t.Helper()

	var (
		mu   sync.Mutex
		reqs []recordedRequest
	)
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reqs = append(reqs, recordedRequest{
			path:      r.URL.Path,
			auth:      r.Header.Get("Authorization"),
			requestID: r.Header.Get(RequestIDHeader),
		})
		mu.Unlock()
		_, _ = io.WriteString(w, "ok")
	}))
	t.Cleanup(ts.Close)

	return ts, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		out := make([]recordedRequest, len(reqs))
		copy(out, reqs)
		return out
	}
}

func testConfig(server string) *config.Config {
	return &config.Config{
		Server: server,
		TLS:    config.TLSConfig{InsecureSkipVerify: true},
		Auth:   config.AuthConfig{Token: secret.Secret("tok")},
	}
}

func TestClient_Get(t *testing.T) {
	t.Parallel()

	ts, recorded := startServer(t)

	c, err := New(testConfig(ts.URL))
	require.NoError(t, err)
	assert.Equal(t, "bearer", c.AuthKind())

	resp, err := c.Get(context.Background(), "/api/v1/pods")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))

	reqs := recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/api/v1/pods", reqs[0].path)
	assert.Equal(t, "Bearer tok", reqs[0].auth)
}

func TestClient_AssignsRequestID(t *testing.T) {
	t.Parallel()

	ts, recorded := startServer(t)

	c, err := New(testConfig(ts.URL))
	require.NoError(t, err)

	resp, err := c.Get(context.Background(), "/a")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = c.Get(context.Background(), "/b")
	require.NoError(t, err)
	resp.Body.Close()

	reqs := recorded()
	require.Len(t, reqs, 2)
	for _, r := range reqs {
		_, err := uuid.Parse(r.requestID)
		assert.NoError(t, err, "request ID should be a valid UUID")
	}
	assert.NotEqual(t, reqs[0].requestID, reqs[1].requestID)
}

func TestClient_PreservesCallerRequestID(t *testing.T) {
	t.Parallel()

	ts, recorded := startServer(t)

	c, err := New(testConfig(ts.URL))
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "/a", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "caller-chosen")

	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	reqs := recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "caller-chosen", reqs[0].requestID)
}

func TestClient_DoesNotMutateCallerRequest(t *testing.T) {
	t.Parallel()

	ts, _ := startServer(t)

	c, err := New(testConfig(ts.URL))
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "/a", nil)
	require.NoError(t, err)

	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, req.Header.Get("Authorization"))
	assert.Empty(t, req.Header.Get(RequestIDHeader))
	assert.Equal(t, "/a", req.URL.String())
}

func TestClient_RateLimit(t *testing.T) {
	t.Parallel()

	ts, recorded := startServer(t)

	cfg := testConfig(ts.URL)
	cfg.RateLimit = &config.RateLimitConfig{QPS: 20, Burst: 1}

	c, err := New(cfg)
	require.NoError(t, err)

	start := time.Now()
	for range 3 {
		resp, err := c.Get(context.Background(), "/a")
		require.NoError(t, err)
		resp.Body.Close()
	}

	// Burst of 1 at 20 QPS means the second and third requests each wait
	// about 50ms.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Len(t, recorded(), 3)
}

func TestClient_RateLimitHonorsCancellation(t *testing.T) {
	t.Parallel()

	ts, _ := startServer(t)

	cfg := testConfig(ts.URL)
	cfg.RateLimit = &config.RateLimitConfig{QPS: 0.001, Burst: 1}

	c, err := New(cfg)
	require.NoError(t, err)

	// Drain the burst.
	resp, err := c.Get(context.Background(), "/a")
	require.NoError(t, err)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.Get(ctx, "/b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_Timeout(t *testing.T) {
	t.Parallel()

	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(ts.Close)

	cfg := testConfig(ts.URL)
	cfg.Timeout = config.Duration(100 * time.Millisecond)

	c, err := New(cfg)
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Get(context.Background(), "/slow")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_Post(t *testing.T) {
	t.Parallel()

	var (
		mu          sync.Mutex
		gotBody     string
		gotMimeType string
	)
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotBody = string(b)
		gotMimeType = r.Header.Get("Content-Type")
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(ts.Close)

	c, err := New(testConfig(ts.URL))
	require.NoError(t, err)

	resp, err := c.Post(context.Background(), "/api/v1/pods", "application/json", strings.NewReader(`{"kind":"Pod"}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, `{"kind":"Pod"}`, gotBody)
	assert.Equal(t, "application/json", gotMimeType)
}

func TestClient_ConstructionFailurePropagates(t *testing.T) {
	t.Parallel()

	c, err := New(&config.Config{})
	assert.ErrorIs(t, err, config.ErrMissingServer)
	assert.Nil(t, c)
}

func TestClient_BaseURL(t *testing.T) {
	t.Parallel()

	c, err := New(&config.Config{Server: "https://cluster.example:6443"})
	require.NoError(t, err)
	assert.Equal(t, "https://cluster.example:6443", c.BaseURL())
}
