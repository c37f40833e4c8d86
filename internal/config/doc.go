// Package config defines the declarative connection configuration consumed
// by the client pipeline: server address, trust material, credential
// configuration, and client-side limits. The configuration is resolved once,
// validated, and treated as immutable for the lifetime of a client.
package config
