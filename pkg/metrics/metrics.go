package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Reconciliation metrics
	ReconcileCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_reconcile_cycles_total",
			Help: "Total number of reconciliation cycles by tier",
		},
		[]string{"tier"},
	)

	ReconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strata_reconcile_duration_seconds",
			Help:    "Reconciliation cycle duration in seconds by tier",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tier"},
	)

	InstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strata_instances_total",
			Help: "Number of instances by tier and state",
		},
		[]string{"tier", "state"},
	)

	InstancesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_instances_created_total",
			Help: "Total number of instances created by tier",
		},
		[]string{"tier"},
	)

	InstancesFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_instances_failed_total",
			Help: "Total number of instance failures by tier",
		},
		[]string{"tier"},
	)

	// Storage metrics
	VolumesBound = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_volumes_bound",
			Help: "Number of storage volumes currently bound",
		},
	)

	BindAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_bind_attempts_total",
			Help: "Total number of storage bind attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Secret metrics
	MaterializationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_secret_materializations_total",
			Help: "Total number of secret materializations by outcome",
		},
		[]string{"outcome"},
	)

	// Topology metrics
	TopologyDegraded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_topology_degraded",
			Help: "Whether the topology is degraded (1 = degraded)",
		},
	)

	TierReadyReplicas = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strata_tier_ready_replicas",
			Help: "Ready replicas by tier",
		},
		[]string{"tier"},
	)

	TierDesiredReplicas = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strata_tier_desired_replicas",
			Help: "Desired replicas by tier",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(ReconcileCyclesTotal)
	prometheus.MustRegister(ReconcileDuration)
	prometheus.MustRegister(InstancesTotal)
	prometheus.MustRegister(InstancesCreated)
	prometheus.MustRegister(InstancesFailed)
	prometheus.MustRegister(VolumesBound)
	prometheus.MustRegister(BindAttemptsTotal)
	prometheus.MustRegister(MaterializationsTotal)
	prometheus.MustRegister(TopologyDegraded)
	prometheus.MustRegister(TierReadyReplicas)
	prometheus.MustRegister(TierDesiredReplicas)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
