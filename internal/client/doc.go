// Package client provides the high-level HTTP client facade built on top
// of the connection pipeline. It layers client-side rate limiting, request
// IDs, tracing, and request metrics over a constructed pipeline.
package client
