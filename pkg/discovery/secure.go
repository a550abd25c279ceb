package discovery

import (
	"github.com/go-logr/logr"
)

// securedKey is the label/annotation key that overrides the port-based
// security classification.
const securedKey = "secured"

// truthyValues are the accepted values for the secured label/annotation.
// Matching is case-sensitive; anything else counts as falsy.
var truthyValues = map[string]struct{}{
	"true": {},
	"on":   {},
	"yes":  {},
	"1":    {},
}

// securePortResolver decides whether a service port carries encrypted
// traffic. Pure aside from debug logging: no state, no I/O.
type securePortResolver struct {
	knownSecurePorts map[int32]struct{}
	log              logr.Logger
}

func newSecurePortResolver(knownSecurePorts []int32, log logr.Logger) *securePortResolver {
	known := make(map[int32]struct{}, len(knownSecurePorts))
	for _, port := range knownSecurePorts {
		known[port] = struct{}{}
	}
	return &securePortResolver{knownSecurePorts: known, log: log}
}

// resolve evaluates the classification as an ordered short-circuit: the
// secured label, then the secured annotation, then the known-secure-ports
// allowlist. An absent key is treated like a falsy value.
func (r *securePortResolver) resolve(port int32, serviceName string, serviceLabels, serviceAnnotations map[string]string) bool {
	if isTruthy(serviceLabels[securedKey]) {
		r.log.V(1).Info("service considered secure via 'secured' label",
			"service", serviceName, "port", port)
		return true
	}

	if isTruthy(serviceAnnotations[securedKey]) {
		r.log.V(1).Info("service considered secure via 'secured' annotation",
			"service", serviceName, "port", port)
		return true
	}

	if _, known := r.knownSecurePorts[port]; known {
		r.log.V(1).Info("service considered secure via known https port",
			"service", serviceName, "port", port)
		return true
	}

	return false
}

func isTruthy(value string) bool {
	_, ok := truthyValues[value]
	return ok
}
