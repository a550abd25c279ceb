package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	// Namespace is the Prometheus metrics namespace for kube-discovery.
	Namespace = "kube_discovery"
)

var (
	// ResolutionsTotal counts instance resolutions by outcome.
	ResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "resolutions_total",
			Help:      "Total number of instance resolutions by result",
		},
		[]string{"result"},
	)

	// ResolutionDuration measures the duration of instance resolutions in seconds
	ResolutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "resolution_duration_seconds",
			Help:      "Duration of instance resolutions in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// InstancesDiscovered measures how many instances each successful resolution returned
	InstancesDiscovered = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "instances_discovered",
			Help:      "Number of instances returned per successful resolution",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	// CatalogPollsTotal counts catalog watch polls by outcome.
	CatalogPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "catalog_polls_total",
			Help:      "Total number of catalog watch polls by result",
		},
		[]string{"result"},
	)

	// CatalogChangesTotal counts observed catalog state changes (heartbeats).
	CatalogChangesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "catalog_changes_total",
			Help:      "Total number of observed catalog state changes",
		},
	)
)

func init() {
	// Register all metrics with controller-runtime's registry
	metrics.Registry.MustRegister(
		ResolutionsTotal,
		ResolutionDuration,
		InstancesDiscovered,
		CatalogPollsTotal,
		CatalogChangesTotal,
	)
}

// Result constants for labeling resolution and poll outcomes
const (
	ResultSuccess = "success"
	ResultError   = "error"
)
