package discovery

import (
	"strconv"

	"github.com/go-logr/logr"
	v1 "k8s.io/api/core/v1"
)

// metadataComposer merges service labels, service annotations and per-port
// information into flat string maps, honoring the configured inclusion
// toggles and key prefixes.
type metadataComposer struct {
	props MetadataProperties
	log   logr.Logger
}

// serviceMetadata composes the service-level metadata map shared by every
// instance expanded from one Service: labels first, then annotations, with
// annotations overwriting labels on key collision. Nil input maps are
// treated as empty. The returned map is always freshly allocated.
func (c metadataComposer) serviceMetadata(serviceLabels, serviceAnnotations map[string]string) map[string]string {
	metadata := map[string]string{}

	if c.props.AddLabels {
		labelMetadata := prefixedKeys(serviceLabels, c.props.LabelsPrefix)
		c.log.V(1).Info("adding label metadata", "metadata", labelMetadata)
		mergeInto(metadata, labelMetadata)
	}
	if c.props.AddAnnotations {
		annotationMetadata := prefixedKeys(serviceAnnotations, c.props.AnnotationsPrefix)
		c.log.V(1).Info("adding annotation metadata", "metadata", annotationMetadata)
		mergeInto(metadata, annotationMetadata)
	}

	return metadata
}

// portsMetadata maps every named port of a subset to its port number,
// applying the configured ports prefix. Unnamed ports are skipped since
// they cannot be represented in a name-keyed mapping.
func (c metadataComposer) portsMetadata(ports []v1.EndpointPort) map[string]string {
	named := map[string]string{}
	for _, port := range ports {
		if port.Name == "" {
			continue
		}
		named[port.Name] = strconv.Itoa(int(port.Port))
	}
	return prefixedKeys(named, c.props.PortsPrefix)
}

// prefixedKeys returns a new map holding the entries of in with every key
// rewritten to prefix+key. With an empty prefix the keys are unchanged; a
// fresh map is still returned so callers can merge into it safely.
func prefixedKeys(in map[string]string, prefix string) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[prefix+key] = value
	}
	return out
}

// mergeInto copies src into dst, overwriting colliding keys (last writer
// wins).
func mergeInto(dst, src map[string]string) {
	for key, value := range src {
		dst[key] = value
	}
}

// copyMap returns a shallow copy of in.
func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
