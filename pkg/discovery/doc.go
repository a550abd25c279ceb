// Package discovery resolves the network-reachable instances of a named
// Kubernetes service from the cluster's Endpoints and Service resources.
// It expands every (subset, address) pair of an Endpoints object into one
// typed Instance record with a representative port, a flat metadata map
// derived from the owning Service, and a security classification.
// Resolution is stateless: every call re-reads the cluster and re-derives
// its result, nothing is cached between calls.
package discovery
