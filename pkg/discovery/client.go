package discovery

import (
	"context"

	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
)

// Collaborator is the read-only view of the cluster this package depends
// on. It is the boundary to the cluster API client: transport, auth and
// retry policy all live behind it, never in the resolver.
type Collaborator interface {
	// Namespace returns the client's configured default namespace, used as
	// the fallback scope when endpoint data carries none.
	Namespace() string

	// GetEndpoints fetches the endpoint collection for a service name in
	// one namespace.
	GetEndpoints(ctx context.Context, namespace, name string) (*v1.Endpoints, error)

	// ListEndpoints lists the endpoint collections across all namespaces
	// whose name equals serviceName.
	ListEndpoints(ctx context.Context, serviceName string) ([]v1.Endpoints, error)

	// GetService fetches one Service object.
	GetService(ctx context.Context, namespace, name string) (*v1.Service, error)

	// ListServices lists Service objects, either in the default namespace
	// or across all namespaces, optionally filtered by a label selector.
	ListServices(ctx context.Context, allNamespaces bool, selector map[string]string) ([]v1.Service, error)
}

// clusterCollaborator implements Collaborator on top of a client-go
// clientset.
type clusterCollaborator struct {
	client    kubernetes.Interface
	namespace string
}

// NewCollaborator wraps a client-go clientset and its configured default
// namespace into a Collaborator.
func NewCollaborator(client kubernetes.Interface, namespace string) Collaborator {
	return &clusterCollaborator{client: client, namespace: namespace}
}

func (c *clusterCollaborator) Namespace() string {
	return c.namespace
}

func (c *clusterCollaborator) GetEndpoints(ctx context.Context, namespace, name string) (*v1.Endpoints, error) {
	return c.client.CoreV1().Endpoints(namespace).Get(ctx, name, metav1.GetOptions{})
}

func (c *clusterCollaborator) ListEndpoints(ctx context.Context, serviceName string) ([]v1.Endpoints, error) {
	list, err := c.client.CoreV1().Endpoints(metav1.NamespaceAll).List(ctx, metav1.ListOptions{
		FieldSelector: fields.OneTermEqualSelector("metadata.name", serviceName).String(),
	})
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

func (c *clusterCollaborator) GetService(ctx context.Context, namespace, name string) (*v1.Service, error) {
	return c.client.CoreV1().Services(namespace).Get(ctx, name, metav1.GetOptions{})
}

func (c *clusterCollaborator) ListServices(ctx context.Context, allNamespaces bool, selector map[string]string) ([]v1.Service, error) {
	namespace := c.namespace
	if allNamespaces {
		namespace = metav1.NamespaceAll
	}
	opts := metav1.ListOptions{}
	if len(selector) > 0 {
		opts.LabelSelector = labels.Set(selector).String()
	}
	list, err := c.client.CoreV1().Services(namespace).List(ctx, opts)
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}
