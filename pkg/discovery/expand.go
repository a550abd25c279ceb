package discovery

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"

	"github.com/opsmesh/kube-discovery/pkg/tracing"
)

// expand turns one namespace-scoped subset group into instance records.
// The Service object is fetched once per group; its metadata map is shared
// by every subset and therefore never mutated here, each subset merges its
// port metadata into its own copy. The representative port is selected once
// per subset, all addresses of a subset share the decision.
func (r *Resolver) expand(ctx context.Context, group subsetGroup, serviceName string) ([]Instance, error) {
	instances := []Instance{}
	if len(group.subsets) == 0 {
		return instances, nil
	}

	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.Start(ctx, "Resolver.expand",
			trace.WithAttributes(
				tracing.AttrNamespace.String(group.namespace),
				tracing.AttrSubsetCount.Int(len(group.subsets)),
			))
		defer span.End()
	}

	service, err := r.client.GetService(ctx, group.namespace, serviceName)
	if err != nil {
		return nil, errors.Wrapf(err, "getting service %s/%s", group.namespace, serviceName)
	}
	serviceMetadata := r.compose.serviceMetadata(service.Labels, service.Annotations)

	for _, subset := range group.subsets {
		endpointMetadata := serviceMetadata
		if r.props.Metadata.AddPorts {
			endpointMetadata = copyMap(serviceMetadata)
			portMetadata := r.compose.portsMetadata(subset.Ports)
			r.log.V(1).Info("adding port metadata", "metadata", portMetadata)
			mergeInto(endpointMetadata, portMetadata)
		}

		port, err := selectPort(subset.Ports, r.props.PrimaryPortName)
		if err != nil {
			return nil, err
		}

		for _, address := range subset.Addresses {
			var instanceID string
			if address.TargetRef != nil {
				instanceID = string(address.TargetRef.UID)
			}

			instances = append(instances, Instance{
				InstanceID:  instanceID,
				ServiceName: serviceName,
				Host:        address.IP,
				Port:        port.Port,
				Metadata:    endpointMetadata,
				Secure:      r.secure.resolve(port.Port, service.Name, service.Labels, service.Annotations),
			})
		}
	}
	return instances, nil
}
