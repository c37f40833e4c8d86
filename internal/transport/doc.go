// Package transport composes the request-processing pipeline: the base-URI
// rewrite stage, the credential-injection stage, and the secure transport
// built by a tlsconn backend, applied in that fixed order for every request.
package transport
