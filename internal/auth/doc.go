// Package auth resolves raw credential configuration into exactly one
// authentication mode and provides the token sources backing the refreshable
// mode. Classification is a pure function of the configuration; the only
// mutable state in the package is the cached token inside a Refresher.
package auth
