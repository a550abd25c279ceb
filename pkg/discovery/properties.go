package discovery

import (
	"os"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"
)

// Properties is the configuration surface of the resolver. The zero value
// is not usable directly; start from DefaultProperties.
type Properties struct {
	// AllNamespaces switches the resolver from the collaborator's configured
	// namespace to querying across every namespace.
	AllNamespaces bool `json:"allNamespaces,omitempty"`

	// ServiceLabels is a label selector applied when listing services for
	// the catalog operations. It does not affect instance resolution.
	ServiceLabels map[string]string `json:"serviceLabels,omitempty"`

	// PrimaryPortName breaks ties when a subset exposes multiple ports.
	// Matched case-insensitively against the endpoint port names.
	PrimaryPortName string `json:"primaryPortName,omitempty"`

	// KnownSecurePorts is the allowlist used by the security classifier
	// when neither labels nor annotations decide.
	KnownSecurePorts []int32 `json:"knownSecurePorts,omitempty"`

	// Filter is an optional CEL expression evaluated against each service's
	// name, labels and annotations by the catalog listing. An empty filter
	// matches every service.
	Filter string `json:"filter,omitempty"`

	// Metadata controls how the per-instance metadata map is composed.
	Metadata MetadataProperties `json:"metadata,omitempty"`
}

// MetadataProperties holds the inclusion toggles and key prefixes for the
// metadata composer.
type MetadataProperties struct {
	// AddLabels includes the Service's labels, each key rewritten with
	// LabelsPrefix when it is non-empty.
	AddLabels    bool   `json:"addLabels,omitempty"`
	LabelsPrefix string `json:"labelsPrefix,omitempty"`

	// AddAnnotations includes the Service's annotations, each key rewritten
	// with AnnotationsPrefix when it is non-empty.
	AddAnnotations    bool   `json:"addAnnotations,omitempty"`
	AnnotationsPrefix string `json:"annotationsPrefix,omitempty"`

	// AddPorts includes a name to port-number mapping for every named port
	// of the subset, each key rewritten with PortsPrefix when it is
	// non-empty. Unnamed ports cannot be represented and are skipped.
	AddPorts    bool   `json:"addPorts,omitempty"`
	PortsPrefix string `json:"portsPrefix,omitempty"`
}

// DefaultProperties returns the resolver defaults: single-namespace scope,
// labels, annotations and ports all included in the metadata map, ports
// prefixed with "port.", and 443/8443 as known secure ports.
func DefaultProperties() Properties {
	return Properties{
		KnownSecurePorts: []int32{443, 8443},
		Metadata: MetadataProperties{
			AddLabels:      true,
			AddAnnotations: true,
			AddPorts:       true,
			PortsPrefix:    "port.",
		},
	}
}

// LoadProperties reads a YAML properties document from path and unmarshals
// it over the defaults, so absent fields keep their default values.
func LoadProperties(path string) (Properties, error) {
	props := DefaultProperties()

	data, err := os.ReadFile(path)
	if err != nil {
		return props, errors.Wrapf(err, "reading properties file %s", path)
	}
	if err := yaml.UnmarshalStrict(data, &props); err != nil {
		return props, errors.Wrapf(err, "parsing properties file %s", path)
	}
	return props, nil
}
