package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/opsmesh/kube-discovery/pkg/metrics"
)

// ErrWatcherNotStarted is returned when the Watcher has not been started yet.
var ErrWatcherNotStarted = fmt.Errorf("catalog watcher not started")

const (
	// Default duration between periodic catalog polls.
	defaultPollInterval = 30 * time.Second

	// Minimum spacing between event-triggered polls, so a burst of
	// endpoint events does not hammer the API server.
	eventPollInterval = 5 * time.Second

	// Backoff cap for re-establishing a broken endpoints watch.
	watchRetryCap = 30 * time.Second
)

// SignalFunc is called with the current sorted pod-name state whenever the
// catalog changed (the heartbeat). Only pods backing at least one endpoint
// participate; pods without endpoints are invisible to discovery.
type SignalFunc func(podNames []string) error

// Config configures a Watcher.
type Config struct {
	// Namespace scopes the endpoints listing. Empty means all namespaces.
	Namespace string

	// PollInterval is the delay between periodic polls. Zero means the
	// default of 30s.
	PollInterval time.Duration

	// WatchEvents additionally triggers rate-limited polls from an
	// endpoints watch, so changes surface faster than the poll interval.
	WatchEvents bool
}

// Watcher periodically flattens the cluster's endpoint collections into a
// sorted list of backing pod names and signals registered functions when
// that list changes. It is the catalog heartbeat: consumers learn that the
// service landscape moved, not what moved.
type Watcher struct {
	client      kubernetes.Interface
	cfg         Config
	clock       clock.WithTicker
	started     atomic.Bool
	rateLimit   rate.Sometimes
	state       atomic.Pointer[[]string]
	mutex       sync.Mutex
	signalFuncs []SignalFunc
}

// NewWatcher creates a Watcher. Signal functions must be registered before
// Start.
func NewWatcher(client kubernetes.Interface, cfg Config) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Watcher{
		client: client,
		cfg:    cfg,
		clock:  clock.RealClock{},

		// Rate limit to avoid excessive polling on bursts of endpoint events
		rateLimit: rate.Sometimes{Interval: eventPollInterval},
	}
}

// AddSignalFunc registers a function to be called when the catalog state
// changes.
func (w *Watcher) AddSignalFunc(f SignalFunc) {
	w.signalFuncs = append(w.signalFuncs, f)
}

// NeedLeaderElection implements LeaderElectionRunnable; the watcher only
// reads, so every replica may run it.
func (w *Watcher) NeedLeaderElection() bool {
	return false
}

// PodNames returns a copy of the last observed catalog state.
func (w *Watcher) PodNames() ([]string, error) {
	if !w.started.Load() {
		return nil, ErrWatcherNotStarted
	}
	state := w.state.Load()
	if state == nil {
		return []string{}, nil
	}
	out := make([]string, len(*state))
	copy(out, *state)
	return out, nil
}

// Start performs an initial poll, then launches the periodic poll loop and,
// when configured, the event-driven trigger. It returns once the loops are
// launched; they stop when ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.pollAndNotify(ctx)
	w.started.Store(true)

	go w.periodicPoll(ctx)

	if w.cfg.WatchEvents {
		go w.watchEvents(ctx)
	}
	return nil
}

func (w *Watcher) periodicPoll(ctx context.Context) {
	logger := log.FromContext(ctx).WithName("CatalogWatcher.periodicPoll")
	logger.Info("starting periodic catalog poll", "interval", w.cfg.PollInterval)

	ticker := w.clock.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C():
			w.pollAndNotify(ctx)
		case <-ctx.Done():
			logger.Info("stopping periodic catalog poll due to context done")
			return
		}
	}
}

// watchEvents keeps an endpoints watch open and triggers a rate-limited
// poll for every event. The watch is re-established with a capped backoff
// when it breaks.
func (w *Watcher) watchEvents(ctx context.Context) {
	logger := log.FromContext(ctx).WithName("CatalogWatcher.watchEvents")

	backoff := wait.Backoff{
		Duration: time.Second,
		Factor:   2,
		Jitter:   0.1,
		Steps:    10,
		Cap:      watchRetryCap,
	}

	for ctx.Err() == nil {
		watcher, err := w.client.CoreV1().Endpoints(w.cfg.Namespace).Watch(ctx, metav1.ListOptions{})
		if err != nil {
			delay := backoff.Step()
			logger.V(1).Info("failed to open endpoints watch, retrying", "error", err.Error(), "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}

		// A healthy watch resets the reconnect backoff.
		backoff = wait.Backoff{
			Duration: time.Second,
			Factor:   2,
			Jitter:   0.1,
			Steps:    10,
			Cap:      watchRetryCap,
		}

		for range watcher.ResultChan() {
			w.rateLimit.Do(func() { w.pollAndNotify(ctx) })
		}
		watcher.Stop()
	}
}

// pollAndNotify lists the endpoint collections, flattens them into the
// sorted pod-name state and signals when it differs from the previous one.
// Errors are logged and counted, never fatal to the loop: a broken poll
// keeps the previous state.
func (w *Watcher) pollAndNotify(ctx context.Context) {
	logger := log.FromContext(ctx).WithName("CatalogWatcher.pollAndNotify")

	// One poll at a time; an event-triggered poll racing the periodic one
	// would only duplicate work.
	if !w.mutex.TryLock() {
		return
	}
	defer w.mutex.Unlock()

	endpointsList, err := w.client.CoreV1().Endpoints(w.cfg.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		logger.Error(err, "failed to list endpoints for catalog poll")
		metrics.CatalogPollsTotal.WithLabelValues(metrics.ResultError).Inc()
		return
	}
	metrics.CatalogPollsTotal.WithLabelValues(metrics.ResultSuccess).Inc()

	podNames := flattenPodNames(endpointsList.Items)

	previous := w.state.Swap(&podNames)
	if previous != nil && equalStrings(*previous, podNames) {
		return
	}

	logger.V(1).Info("catalog state changed", "podCount", len(podNames))
	metrics.CatalogChangesTotal.Inc()
	for _, f := range w.signalFuncs {
		if err := f(podNames); err != nil {
			logger.Error(err, "catalog signal function failed")
		}
	}
}

// flattenPodNames extracts the backing pod names from every subset address
// carrying a target reference and sorts them. Names are not deduplicated: a
// pod appearing in multiple subsets appears multiple times, matching the
// cardinality the resolver exposes.
func flattenPodNames(endpointsList []v1.Endpoints) []string {
	podNames := []string{}
	for _, endpoints := range endpointsList {
		for _, subset := range endpoints.Subsets {
			for _, address := range subset.Addresses {
				if address.TargetRef == nil {
					continue
				}
				podNames = append(podNames, address.TargetRef.Name)
			}
		}
	}
	sort.Strings(podNames)
	return podNames
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
