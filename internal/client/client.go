package client

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avaclient/internal/config"
	"github.com/vyrodovalexey/avaclient/internal/transport"
	"github.com/vyrodovalexey/avaclient/internal/transport/tlsconn"
)

// tracerName identifies the client tracer.
const tracerName = "avaclient"

// RequestIDHeader is the header carrying the per-request correlation ID.
const RequestIDHeader = "X-Request-Id"

// Client is an HTTP client bound to a single server. All requests are
// resolved against the configured base URI and carry the configured
// credentials.
type Client struct {
	http     *http.Client
	pipeline *transport.Pipeline
	limiter  *rate.Limiter
	tracer   trace.Tracer
	logger   *zap.Logger
	timeout  time.Duration
}

// Option is a functional option for configuring the client.
type Option func(*builder)

type builder struct {
	backend        tlsconn.Backend
	logger         *zap.Logger
	tracerProvider trace.TracerProvider
}

// WithBackend selects the TLS connector backend used by the underlying
// pipeline.
func WithBackend(b tlsconn.Backend) Option {
	return func(o *builder) {
		if b != nil {
			o.backend = b
		}
	}
}

// WithLogger sets the logger for the client and its pipeline.
func WithLogger(logger *zap.Logger) Option {
	return func(o *builder) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracerProvider sets the tracer provider. Defaults to the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *builder) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// New builds a client from the given configuration. Construction fails if
// any part of the connection pipeline cannot be built; a non-nil client is
// ready for use.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	b := &builder{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}

	popts := []transport.Option{transport.WithLogger(b.logger)}
	if b.backend != nil {
		popts = append(popts, transport.WithBackend(b.backend))
	}

	pipeline, err := transport.New(cfg, popts...)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if rl := cfg.RateLimit; rl != nil && rl.QPS > 0 {
		burst := rl.Burst
		if burst <= 0 {
			burst = int(math.Ceil(rl.QPS))
		}
		limiter = rate.NewLimiter(rate.Limit(rl.QPS), burst)
	}

	tracer := otel.Tracer(tracerName)
	if b.tracerProvider != nil {
		tracer = b.tracerProvider.Tracer(tracerName)
	}

	return &Client{
		http:     &http.Client{Transport: pipeline},
		pipeline: pipeline,
		limiter:  limiter,
		tracer:   tracer,
		logger:   b.logger,
		timeout:  cfg.Timeout.Duration(),
	}, nil
}

// Do sends the request through the connection pipeline. The request URL is
// interpreted relative to the configured server. The caller's request is
// never modified.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		// The response body outlives Do; tie cancellation to body close.
		defer func() {
			if cancel != nil {
				cancel()
			}
		}()
		req = req.Clone(ctx)
		resp, err := c.do(req)
		if err != nil {
			return nil, err
		}
		resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
		cancel = nil
		return resp, nil
	}
	return c.do(req.Clone(ctx))
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, uuid.New().String())
	}

	ctx, span := c.tracer.Start(ctx, "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("url.path", req.URL.Path),
			attribute.String("server.address", c.pipeline.BaseURL().Host),
		),
	)
	defer span.End()
	req = req.WithContext(ctx)

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observeRequest(req.Method, "error", duration)
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, resp.Status)
	}
	observeRequest(req.Method, fmt.Sprintf("%d", resp.StatusCode), duration)

	c.logger.Debug("request completed",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration),
	)

	return resp, nil
}

// Get issues a GET request for the given path relative to the server.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Post issues a POST request for the given path relative to the server.
func (c *Client) Post(ctx context.Context, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(req)
}

// BaseURL returns a copy of the server base URL.
func (c *Client) BaseURL() string {
	return c.pipeline.BaseURL().String()
}

// AuthKind reports the credential mode the client was built with.
func (c *Client) AuthKind() string {
	return string(c.pipeline.AuthKind())
}

// BackendName reports the TLS connector backend in use.
func (c *Client) BackendName() string {
	return c.pipeline.BackendName()
}

// cancelBody releases the request timeout when the response body is closed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
