// Package metrics defines and registers Prometheus metrics for the
// discovery engine, covering resolution counts/durations, discovered
// instance cardinality, and catalog watch activity.
package metrics
