// Package podutils answers whether the process runs inside a Kubernetes
// pod and, if so, which one. The current pod is resolved lazily through the
// API server and memoized for the process lifetime.
package podutils

import (
	"context"
	"os"
	"sync"

	"github.com/go-logr/logr"
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// HostnameEnv is the environment variable carrying the pod name inside a
// cluster.
const HostnameEnv = "HOSTNAME"

const (
	serviceAccountTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"
	serviceAccountCACrtPath = "/var/run/secrets/kubernetes.io/serviceaccount/ca.crt"
)

// PodUtils resolves the pod the current process runs in.
type PodUtils struct {
	client    kubernetes.Interface
	namespace string
	hostname  string
	log       logr.Logger

	// service account marker files; overridable in tests
	tokenPath string
	caCrtPath string

	once sync.Once
	pod  *v1.Pod
}

// New creates a PodUtils bound to the given clientset and namespace. The
// pod name is taken from the HOSTNAME environment variable at construction
// time.
func New(client kubernetes.Interface, namespace string, log logr.Logger) *PodUtils {
	return &PodUtils{
		client:    client,
		namespace: namespace,
		hostname:  os.Getenv(HostnameEnv),
		log:       log,
		tokenPath: serviceAccountTokenPath,
		caCrtPath: serviceAccountCACrtPath,
	}
}

// CurrentPod returns the pod this process runs in, or nil when the process
// does not run inside a cluster. The lookup happens once; later calls
// return the memoized result. Lookup failures are logged and reported as
// "not inside a pod" rather than surfaced, mirroring the fact that callers
// use this as a capability probe, not a data source.
func (p *PodUtils) CurrentPod(ctx context.Context) *v1.Pod {
	p.once.Do(func() {
		if !p.serviceAccountFound() || p.hostname == "" {
			return
		}
		pod, err := p.client.CoreV1().Pods(p.namespace).Get(ctx, p.hostname, metav1.GetOptions{})
		if err != nil {
			p.log.V(1).Info("failed to get current pod; missing serviceaccount permissions?",
				"pod", p.hostname, "error", err.Error())
			return
		}
		p.pod = pod
	})
	return p.pod
}

// IsInsideKubernetes reports whether the process runs inside a cluster,
// judged by whether the current pod can be resolved.
func (p *PodUtils) IsInsideKubernetes(ctx context.Context) bool {
	return p.CurrentPod(ctx) != nil
}

func (p *PodUtils) serviceAccountFound() bool {
	for _, path := range []string{p.tokenPath, p.caCrtPath} {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}
