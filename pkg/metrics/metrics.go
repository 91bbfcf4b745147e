package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Catalog metrics
	NamespacesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vanguard_namespaces_total",
			Help: "Total number of namespaces",
		},
	)

	TablesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vanguard_tables_total",
			Help: "Total number of tables by state",
		},
		[]string{"state"},
	)

	TabletsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vanguard_tablets_total",
			Help: "Total number of tablets by state",
		},
		[]string{"state"},
	)

	TabletServersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vanguard_tablet_servers_total",
			Help: "Total number of live tablet servers",
		},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vanguard_raft_is_leader",
			Help: "Whether this master holds Raft leadership (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vanguard_raft_peers_total",
			Help: "Total number of Raft peers in the master quorum",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vanguard_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vanguard_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Load Balancer metrics
	BalancerRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vanguard_balancer_run_duration_seconds",
			Help:    "Time taken for one load balancer run in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	BalancerRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vanguard_balancer_runs_total",
			Help: "Total number of load balancer runs completed",
		},
	)

	BalancerActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vanguard_balancer_actions_total",
			Help: "Total number of load balancer actions taken by kind",
		},
		[]string{"action"},
	)

	// Snapshot metrics
	SnapshotCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vanguard_snapshot_create_duration_seconds",
			Help:    "Time taken to create a snapshot in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotRestoreDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vanguard_snapshot_restore_duration_seconds",
			Help:    "Time taken to restore a snapshot in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vanguard_snapshots_total",
			Help: "Total number of snapshots by state",
		},
		[]string{"state"},
	)

	// CDC / xCluster metrics
	CDCStreamsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vanguard_cdc_streams_total",
			Help: "Total number of CDC streams by state",
		},
		[]string{"state"},
	)

	UniverseReplicationsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vanguard_universe_replications_total",
			Help: "Total number of universe replication relationships by state",
		},
		[]string{"state"},
	)

	XClusterSafeTimeLagSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vanguard_xcluster_safe_time_lag_seconds",
			Help: "Lag between wall clock and xCluster safe time, by universe",
		},
		[]string{"universe_id"},
	)

	CDCCleanupCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vanguard_cdc_cleanup_cycles_total",
			Help: "Total number of CDC stream garbage-collection cycles completed",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vanguard_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vanguard_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Heartbeat metrics
	HeartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vanguard_heartbeats_total",
			Help: "Total number of tablet-server heartbeats received by status",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		NamespacesTotal,
		TablesTotal,
		TabletsTotal,
		TabletServersTotal,
		RaftLeader,
		RaftPeers,
		RaftAppliedIndex,
		RaftApplyDuration,
		BalancerRunDuration,
		BalancerRunsTotal,
		BalancerActionsTotal,
		SnapshotCreateDuration,
		SnapshotRestoreDuration,
		SnapshotsTotal,
		CDCStreamsTotal,
		UniverseReplicationsTotal,
		XClusterSafeTimeLagSeconds,
		CDCCleanupCyclesTotal,
		APIRequestsTotal,
		APIRequestDuration,
		HeartbeatsTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
