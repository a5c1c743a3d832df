// Package metrics exposes the controller's Prometheus metrics: reconcile
// cycle counters and durations per tier, instance and replica gauges,
// storage binding counters, and the topology degraded flag. Collectors
// register themselves at package init; Handler serves them.
package metrics
