package discovery

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
	v1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/opsmesh/kube-discovery/pkg/filter"
	"github.com/opsmesh/kube-discovery/pkg/metrics"
	"github.com/opsmesh/kube-discovery/pkg/tracing"
)

// Resolver turns the cluster's Endpoints/Service resource graph into flat
// lists of service instances. It is stateless aside from read calls to the
// collaborator and safe for concurrent use as long as the collaborator
// tolerates concurrent reads.
type Resolver struct {
	client  Collaborator
	props   Properties
	secure  *securePortResolver
	compose metadataComposer
	pred    filter.Predicate
	log     logr.Logger
	tracer  trace.Tracer
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for debug output. Defaults to a discard
// logger.
func WithLogger(log logr.Logger) Option {
	return func(r *Resolver) {
		r.log = log
	}
}

// WithTracer makes the resolver start a span per resolution call.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Resolver) {
		r.tracer = tracer
	}
}

// NewResolver builds a Resolver for the given collaborator and properties.
// The configured filter expression, if any, is compiled here once; an
// invalid expression fails construction rather than every listing call.
func NewResolver(client Collaborator, props Properties, opts ...Option) (*Resolver, error) {
	pred, err := filter.Compile(props.Filter)
	if err != nil {
		return nil, errors.Wrap(err, "compiling service filter")
	}

	r := &Resolver{
		client: client,
		props:  props,
		pred:   pred,
		log:    logr.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.secure = newSecurePortResolver(props.KnownSecurePorts, r.log)
	r.compose = metadataComposer{props: props.Metadata, log: r.log}
	return r, nil
}

// Instances resolves every reachable instance of the named service. In
// all-namespaces mode the endpoint collections of every namespace are
// expanded and concatenated; otherwise only the collaborator's configured
// namespace is consulted. A service without ready endpoints yields an
// empty, non-nil slice.
//
// Discovery order is preserved as-is: namespace iteration order, then
// subset order, then address order. Duplicate addresses appearing in more
// than one subset are not deduplicated; each subset stands for its own port
// combination and suppressing duplicates would change the observed
// instance count.
func (r *Resolver) Instances(ctx context.Context, serviceName string) (instances []Instance, err error) {
	start := time.Now()
	defer func() {
		metrics.ResolutionDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.ResolutionsTotal.WithLabelValues(metrics.ResultError).Inc()
			return
		}
		metrics.ResolutionsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
		metrics.InstancesDiscovered.Observe(float64(len(instances)))
	}()

	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.Start(ctx, "Resolver.Instances",
			trace.WithAttributes(
				tracing.AttrService.String(serviceName),
				tracing.AttrAllNamespaces.Bool(r.props.AllNamespaces),
			))
		defer func() {
			span.SetAttributes(tracing.AttrInstanceCount.Int(len(instances)))
			span.End()
		}()
	}

	if serviceName == "" {
		return nil, ErrNoServiceName
	}

	endpointsList, err := r.endpointsFor(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	instances = []Instance{}
	for i := range endpointsList {
		group := newSubsetGroup(&endpointsList[i], r.client.Namespace())
		expanded, err := r.expand(ctx, group, serviceName)
		if err != nil {
			return nil, err
		}
		instances = append(instances, expanded...)
	}
	return instances, nil
}

// endpointsFor fetches the endpoint collections to expand for one service
// name, honoring the namespace scope. In single-namespace mode an absent
// Endpoints object is a legitimate empty result, not a failure; every other
// collaborator error propagates so a failed lookup stays distinguishable
// from zero instances.
func (r *Resolver) endpointsFor(ctx context.Context, serviceName string) ([]v1.Endpoints, error) {
	if r.props.AllNamespaces {
		endpointsList, err := r.client.ListEndpoints(ctx, serviceName)
		if err != nil {
			return nil, errors.Wrapf(err, "listing endpoints for service %q across namespaces", serviceName)
		}
		return endpointsList, nil
	}

	endpoints, err := r.client.GetEndpoints(ctx, r.client.Namespace(), serviceName)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return []v1.Endpoints{{}}, nil
		}
		return nil, errors.Wrapf(err, "getting endpoints %s/%s", r.client.Namespace(), serviceName)
	}
	return []v1.Endpoints{*endpoints}, nil
}

// ServiceNames lists the names of the known services, scoped by the
// configured namespace mode and service label selector and filtered by the
// configured filter expression.
func (r *Resolver) ServiceNames(ctx context.Context) ([]string, error) {
	return r.FilteredServiceNames(ctx, r.pred)
}

// FilteredServiceNames lists the known service names matching pred. A nil
// predicate matches every service.
func (r *Resolver) FilteredServiceNames(ctx context.Context, pred filter.Predicate) ([]string, error) {
	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.Start(ctx, "Resolver.ServiceNames",
			trace.WithAttributes(
				tracing.AttrAllNamespaces.Bool(r.props.AllNamespaces),
				tracing.AttrFilter.String(r.props.Filter),
			))
		defer span.End()
	}

	services, err := r.client.ListServices(ctx, r.props.AllNamespaces, r.props.ServiceLabels)
	if err != nil {
		return nil, errors.Wrap(err, "listing services")
	}

	names := make([]string, 0, len(services))
	for i := range services {
		svc := &services[i]
		if pred != nil && !pred(filter.ServiceMeta{
			Name:        svc.Name,
			Labels:      svc.Labels,
			Annotations: svc.Annotations,
		}) {
			continue
		}
		names = append(names, svc.Name)
	}
	return names, nil
}
