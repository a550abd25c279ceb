package discovery

import (
	"fmt"
	"net"
	"strconv"

	v1 "k8s.io/api/core/v1"
)

// Instance is one resolved service instance: a single address of a single
// endpoint subset, combined with the representative port and the metadata
// derived from the owning Service.
//
// Instances are re-derived on every resolution call and never mutated in
// place. The Metadata map may be shared between instances expanded from the
// same subset; treat it as read-only.
type Instance struct {
	// InstanceID is the UID of the pod backing this address, taken from the
	// address's target reference. Empty when the address carries no
	// back-reference.
	InstanceID string

	// ServiceName is the name of the service this instance belongs to.
	ServiceName string

	// Host is the pod-level address of the instance.
	Host string

	// Port is the representative port selected for the instance's subset.
	Port int32

	// Metadata is the flat key/value mapping composed from the Service's
	// labels, annotations and the subset's named ports, subject to the
	// configured inclusion toggles and key prefixes.
	Metadata map[string]string

	// Secure reports whether the selected port is classified as carrying
	// encrypted traffic.
	Secure bool
}

// Addr returns the instance's host:port address.
func (i Instance) Addr() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(int(i.Port)))
}

// URL returns a URL for the instance, with the scheme chosen from the
// security classification.
func (i Instance) URL() string {
	scheme := "http"
	if i.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, i.Addr())
}

// subsetGroup holds the endpoint subsets found for one namespace. It is an
// intermediate structure, built fresh per resolution call and discarded
// after expansion.
type subsetGroup struct {
	namespace string
	subsets   []v1.EndpointSubset
}

// newSubsetGroup maps one Endpoints object to a namespace-scoped subset
// group. The namespace starts out as the collaborator's default and is only
// replaced by the object's own namespace when the object actually carries
// subsets, so an absent or empty Endpoints still resolves its Service
// lookups against the default namespace.
func newSubsetGroup(endpoints *v1.Endpoints, defaultNamespace string) subsetGroup {
	group := subsetGroup{namespace: defaultNamespace}
	if endpoints != nil && endpoints.Subsets != nil {
		group.namespace = endpoints.Namespace
		group.subsets = endpoints.Subsets
	}
	return group
}
