package discovery

import (
	"strings"

	"github.com/pkg/errors"
	v1 "k8s.io/api/core/v1"
)

// selectPort picks the single representative port for one endpoint subset.
//
// A single port is returned unconditionally, its name is irrelevant. With
// multiple ports and a configured primary port name, the first
// case-insensitive name match wins; without a configured name any port is
// acceptable and the first one is taken. A configured name that matches
// nothing is a configuration error and fails the resolution.
func selectPort(ports []v1.EndpointPort, primaryPortName string) (v1.EndpointPort, error) {
	if len(ports) == 1 {
		return ports[0], nil
	}

	if primaryPortName == "" {
		if len(ports) == 0 {
			return v1.EndpointPort{}, errors.Wrap(ErrNoMatchingPort, "subset exposes no ports")
		}
		return ports[0], nil
	}

	for _, port := range ports {
		if strings.EqualFold(port.Name, primaryPortName) {
			return port, nil
		}
	}
	return v1.EndpointPort{}, errors.Wrapf(ErrNoMatchingPort, "primary port name %q", primaryPortName)
}
