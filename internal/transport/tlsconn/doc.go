// Package tlsconn builds secure-transport connectors from parsed trust
// material. Three interchangeable backends share one externally observable
// contract (client identity, exclusive root set, verification bypass) while
// keeping their differing verification hook mechanisms localized to their own
// implementations.
package tlsconn
