package discovery

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

func serviceFixture(namespace, name string, labels, annotations map[string]string) *v1.Service {
	return &v1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Namespace:   namespace,
			Name:        name,
			Labels:      labels,
			Annotations: annotations,
		},
	}
}

func endpointsFixture(namespace, name string, subsets ...v1.EndpointSubset) *v1.Endpoints {
	return &v1.Endpoints{
		ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name},
		Subsets:    subsets,
	}
}

func address(ip string, podName string) v1.EndpointAddress {
	addr := v1.EndpointAddress{IP: ip}
	if podName != "" {
		addr.TargetRef = &v1.ObjectReference{
			Kind: "Pod",
			Name: podName,
			UID:  types.UID("uid-" + podName),
		}
	}
	return addr
}

var _ = Describe("Resolver", func() {
	var (
		ctx     context.Context
		client  *fake.Clientset
		props   Properties
		objects []runtime.Object
	)

	BeforeEach(func() {
		ctx = context.Background()
		props = DefaultProperties()
		objects = nil
	})

	newResolver := func() *Resolver {
		client = fake.NewClientset(objects...)
		resolver, err := NewResolver(NewCollaborator(client, "ns1"), props)
		Expect(err).NotTo(HaveOccurred())
		return resolver
	}

	Describe("Instances", func() {
		It("rejects an empty service name", func() {
			_, err := newResolver().Instances(ctx, "")
			Expect(err).To(MatchError(ErrNoServiceName))
		})

		It("returns an empty list when the service has no endpoints object", func() {
			objects = append(objects, serviceFixture("ns1", "orders", nil, nil))
			instances, err := newResolver().Instances(ctx, "orders")
			Expect(err).NotTo(HaveOccurred())
			Expect(instances).NotTo(BeNil())
			Expect(instances).To(BeEmpty())
		})

		It("returns an empty list when the endpoints object has no subsets", func() {
			objects = append(objects,
				serviceFixture("ns1", "orders", nil, nil),
				endpointsFixture("ns1", "orders"),
			)
			instances, err := newResolver().Instances(ctx, "orders")
			Expect(err).NotTo(HaveOccurred())
			Expect(instances).To(BeEmpty())
		})

		It("expands every address of a subset into one instance", func() {
			objects = append(objects,
				serviceFixture("ns1", "orders", map[string]string{}, nil),
				endpointsFixture("ns1", "orders", v1.EndpointSubset{
					Addresses: []v1.EndpointAddress{
						address("10.0.0.1", "orders-0"),
						address("10.0.0.2", "orders-1"),
					},
					Ports: []v1.EndpointPort{{Name: "http", Port: 8080}},
				}),
			)

			instances, err := newResolver().Instances(ctx, "orders")
			Expect(err).NotTo(HaveOccurred())
			Expect(instances).To(HaveLen(2))
			for _, instance := range instances {
				Expect(instance.ServiceName).To(Equal("orders"))
				Expect(instance.Port).To(Equal(int32(8080)))
				Expect(instance.Secure).To(BeFalse())
			}
			Expect(instances[0].Host).To(Equal("10.0.0.1"))
			Expect(instances[1].Host).To(Equal("10.0.0.2"))
		})

		It("derives the instance id from the address target reference", func() {
			objects = append(objects,
				serviceFixture("ns1", "orders", nil, nil),
				endpointsFixture("ns1", "orders", v1.EndpointSubset{
					Addresses: []v1.EndpointAddress{
						address("10.0.0.1", "orders-0"),
						address("10.0.0.2", ""),
					},
					Ports: []v1.EndpointPort{{Name: "http", Port: 8080}},
				}),
			)

			instances, err := newResolver().Instances(ctx, "orders")
			Expect(err).NotTo(HaveOccurred())
			Expect(instances[0].InstanceID).To(Equal("uid-orders-0"))
			Expect(instances[1].InstanceID).To(BeEmpty())
		})

		It("classifies a known https port as secure without any markers", func() {
			objects = append(objects,
				serviceFixture("ns1", "orders", map[string]string{}, nil),
				endpointsFixture("ns1", "orders", v1.EndpointSubset{
					Addresses: []v1.EndpointAddress{
						address("10.0.0.1", "orders-0"),
						address("10.0.0.2", "orders-1"),
					},
					Ports: []v1.EndpointPort{{Name: "https", Port: 443}},
				}),
			)

			instances, err := newResolver().Instances(ctx, "orders")
			Expect(err).NotTo(HaveOccurred())
			Expect(instances).To(HaveLen(2))
			for _, instance := range instances {
				Expect(instance.Secure).To(BeTrue())
			}
		})

		It("classifies instances as secure via the secured label", func() {
			objects = append(objects,
				serviceFixture("ns1", "orders", map[string]string{"secured": "true"}, nil),
				endpointsFixture("ns1", "orders", v1.EndpointSubset{
					Addresses: []v1.EndpointAddress{address("10.0.0.1", "orders-0")},
					Ports:     []v1.EndpointPort{{Name: "http", Port: 8080}},
				}),
			)

			instances, err := newResolver().Instances(ctx, "orders")
			Expect(err).NotTo(HaveOccurred())
			Expect(instances[0].Secure).To(BeTrue())
		})

		It("composes metadata from labels, annotations and named ports", func() {
			props.Metadata = MetadataProperties{
				AddLabels:         true,
				AddAnnotations:    true,
				AnnotationsPrefix: "annotation.",
				AddPorts:          true,
				PortsPrefix:       "port.",
			}
			objects = append(objects,
				serviceFixture("ns1", "orders",
					map[string]string{"app": "orders"},
					map[string]string{"owner": "team-a"},
				),
				endpointsFixture("ns1", "orders", v1.EndpointSubset{
					Addresses: []v1.EndpointAddress{address("10.0.0.1", "orders-0")},
					Ports:     []v1.EndpointPort{{Name: "http", Port: 8080}},
				}),
			)

			instances, err := newResolver().Instances(ctx, "orders")
			Expect(err).NotTo(HaveOccurred())
			Expect(instances[0].Metadata).To(Equal(map[string]string{
				"app":              "orders",
				"annotation.owner": "team-a",
				"port.http":        "8080",
			}))
		})

		It("keeps each subset's port metadata out of the other subsets", func() {
			objects = append(objects,
				serviceFixture("ns1", "orders", map[string]string{"app": "orders"}, nil),
				endpointsFixture("ns1", "orders",
					v1.EndpointSubset{
						Addresses: []v1.EndpointAddress{address("10.0.0.1", "orders-0")},
						Ports:     []v1.EndpointPort{{Name: "http", Port: 8080}},
					},
					v1.EndpointSubset{
						Addresses: []v1.EndpointAddress{address("10.0.0.2", "orders-1")},
						Ports:     []v1.EndpointPort{{Name: "grpc", Port: 9090}},
					},
				),
			)

			instances, err := newResolver().Instances(ctx, "orders")
			Expect(err).NotTo(HaveOccurred())
			Expect(instances).To(HaveLen(2))
			Expect(instances[0].Metadata).To(HaveKey("port.http"))
			Expect(instances[0].Metadata).NotTo(HaveKey("port.grpc"))
			Expect(instances[1].Metadata).To(HaveKey("port.grpc"))
			Expect(instances[1].Metadata).NotTo(HaveKey("port.http"))
			// Shared service-level keys survive in both.
			Expect(instances[0].Metadata).To(HaveKeyWithValue("app", "orders"))
			Expect(instances[1].Metadata).To(HaveKeyWithValue("app", "orders"))
		})

		It("propagates duplicate addresses across subsets", func() {
			objects = append(objects,
				serviceFixture("ns1", "orders", nil, nil),
				endpointsFixture("ns1", "orders",
					v1.EndpointSubset{
						Addresses: []v1.EndpointAddress{address("10.0.0.1", "orders-0")},
						Ports:     []v1.EndpointPort{{Name: "http", Port: 8080}},
					},
					v1.EndpointSubset{
						Addresses: []v1.EndpointAddress{address("10.0.0.1", "orders-0")},
						Ports:     []v1.EndpointPort{{Name: "grpc", Port: 9090}},
					},
				),
			)

			instances, err := newResolver().Instances(ctx, "orders")
			Expect(err).NotTo(HaveOccurred())
			Expect(instances).To(HaveLen(2))
			Expect(instances[0].Port).To(Equal(int32(8080)))
			Expect(instances[1].Port).To(Equal(int32(9090)))
		})

		It("selects the primary port per subset", func() {
			props.PrimaryPortName = "http"
			objects = append(objects,
				serviceFixture("ns1", "orders", nil, nil),
				endpointsFixture("ns1", "orders", v1.EndpointSubset{
					Addresses: []v1.EndpointAddress{address("10.0.0.1", "orders-0")},
					Ports: []v1.EndpointPort{
						{Name: "metrics", Port: 9090},
						{Name: "HTTP", Port: 8080},
					},
				}),
			)

			instances, err := newResolver().Instances(ctx, "orders")
			Expect(err).NotTo(HaveOccurred())
			Expect(instances[0].Port).To(Equal(int32(8080)))
		})

		It("fails when the primary port name matches nothing", func() {
			props.PrimaryPortName = "https"
			objects = append(objects,
				serviceFixture("ns1", "orders", nil, nil),
				endpointsFixture("ns1", "orders", v1.EndpointSubset{
					Addresses: []v1.EndpointAddress{address("10.0.0.1", "orders-0")},
					Ports: []v1.EndpointPort{
						{Name: "metrics", Port: 9090},
						{Name: "http", Port: 8080},
					},
				}),
			)

			_, err := newResolver().Instances(ctx, "orders")
			Expect(err).To(MatchError(ErrNoMatchingPort))
		})

		It("surfaces collaborator failures instead of masking them as empty", func() {
			objects = append(objects, serviceFixture("ns1", "orders", nil, nil))
			resolver := newResolver()
			client.PrependReactor("get", "endpoints",
				func(action k8stesting.Action) (bool, runtime.Object, error) {
					return true, nil, fmt.Errorf("transport is down")
				})

			_, err := resolver.Instances(ctx, "orders")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("transport is down"))
		})

		It("surfaces service lookup failures from the expander", func() {
			objects = append(objects,
				endpointsFixture("ns1", "orders", v1.EndpointSubset{
					Addresses: []v1.EndpointAddress{address("10.0.0.1", "orders-0")},
					Ports:     []v1.EndpointPort{{Name: "http", Port: 8080}},
				}),
			)

			// No Service object exists, so the expander's fetch fails.
			_, err := newResolver().Instances(ctx, "orders")
			Expect(err).To(HaveOccurred())
		})

		Context("in all-namespaces mode", func() {
			BeforeEach(func() {
				props.AllNamespaces = true
			})

			It("merges instances from every namespace, each with its own service metadata", func() {
				objects = append(objects,
					serviceFixture("ns1", "cache", map[string]string{"region": "east"}, nil),
					serviceFixture("ns2", "cache", map[string]string{"region": "west"}, nil),
					endpointsFixture("ns1", "cache", v1.EndpointSubset{
						Addresses: []v1.EndpointAddress{address("10.1.0.1", "cache-a")},
						Ports:     []v1.EndpointPort{{Name: "redis", Port: 6379}},
					}),
					endpointsFixture("ns2", "cache", v1.EndpointSubset{
						Addresses: []v1.EndpointAddress{
							address("10.2.0.1", "cache-b"),
							address("10.2.0.2", "cache-c"),
						},
						Ports: []v1.EndpointPort{{Name: "redis", Port: 6379}},
					}),
				)

				instances, err := newResolver().Instances(ctx, "cache")
				Expect(err).NotTo(HaveOccurred())
				Expect(instances).To(HaveLen(3))

				regionByHost := map[string]string{}
				for _, instance := range instances {
					regionByHost[instance.Host] = instance.Metadata["region"]
				}
				Expect(regionByHost).To(Equal(map[string]string{
					"10.1.0.1": "east",
					"10.2.0.1": "west",
					"10.2.0.2": "west",
				}))
			})

			It("surfaces list failures", func() {
				resolver := newResolver()
				client.PrependReactor("list", "endpoints",
					func(action k8stesting.Action) (bool, runtime.Object, error) {
						return true, nil, fmt.Errorf("list blew up")
					})

				_, err := resolver.Instances(ctx, "cache")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("list blew up"))
			})
		})
	})

	Describe("ServiceNames", func() {
		It("lists every service in the configured namespace", func() {
			objects = append(objects,
				serviceFixture("ns1", "orders", nil, nil),
				serviceFixture("ns1", "cache", nil, nil),
				serviceFixture("ns2", "other", nil, nil),
			)

			names, err := newResolver().ServiceNames(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(ConsistOf("orders", "cache"))
		})

		It("applies the configured service label selector", func() {
			props.ServiceLabels = map[string]string{"tier": "backend"}
			objects = append(objects,
				serviceFixture("ns1", "orders", map[string]string{"tier": "backend"}, nil),
				serviceFixture("ns1", "frontend", map[string]string{"tier": "web"}, nil),
			)

			names, err := newResolver().ServiceNames(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(ConsistOf("orders"))
		})

		It("applies the configured filter expression", func() {
			props.Filter = `labels["tier"] == "backend"`
			objects = append(objects,
				serviceFixture("ns1", "orders", map[string]string{"tier": "backend"}, nil),
				serviceFixture("ns1", "frontend", map[string]string{"tier": "web"}, nil),
				serviceFixture("ns1", "bare", nil, nil),
			)

			names, err := newResolver().ServiceNames(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(ConsistOf("orders"))
		})

		It("rejects an invalid filter expression at construction time", func() {
			props.Filter = `labels[`
			client = fake.NewClientset()
			_, err := NewResolver(NewCollaborator(client, "ns1"), props)
			Expect(err).To(HaveOccurred())
		})

		It("matches everything with a nil predicate", func() {
			objects = append(objects,
				serviceFixture("ns1", "orders", nil, nil),
				serviceFixture("ns1", "cache", nil, nil),
			)

			names, err := newResolver().FilteredServiceNames(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(ConsistOf("orders", "cache"))
		})

		It("surfaces list failures", func() {
			resolver := newResolver()
			client.PrependReactor("list", "services",
				func(action k8stesting.Action) (bool, runtime.Object, error) {
					return true, nil, errors.New("boom")
				})

			_, err := resolver.ServiceNames(ctx)
			Expect(err).To(HaveOccurred())
		})
	})
})
