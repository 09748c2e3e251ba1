package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Consensus metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "prism_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftTerm = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "prism_raft_term",
			Help: "Current Raft term observed by this node",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "prism_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "prism_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftCommitIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "prism_raft_commit_index",
			Help: "Last committed Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "prism_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftElectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_raft_elections_total",
			Help: "Total number of elections observed by this node",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prism_raft_apply_duration_seconds",
			Help:    "Time taken to apply a committed Raft log entry",
			Buckets: prometheus.DefBuckets,
		},
	)

	RaftCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_raft_commands_total",
			Help: "Total number of commands submitted by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// Blob store metrics
	BlobCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "prism_blobstore_blobs_total",
			Help: "Total number of distinct blobs stored",
		},
	)

	BlobBytesStored = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "prism_blobstore_bytes_stored",
			Help: "Total stored (post-processing) bytes across all blobs",
		},
	)

	BlobDedupSavedBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "prism_blobstore_dedup_saved_bytes",
			Help: "Bytes avoided by content-addressed deduplication",
		},
	)

	BlobIntegrityFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_blobstore_integrity_failures_total",
			Help: "Total number of checksum mismatches detected on retrieve/verify",
		},
	)

	BlobGCReclaimedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_blobstore_gc_reclaimed_bytes_total",
			Help: "Total bytes reclaimed by garbage collection",
		},
	)

	BlobOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prism_blobstore_operation_duration_seconds",
			Help:    "Blob store operation duration by operation name",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// CRDT kernel metrics
	CRDTSlotsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "prism_crdtkernel_slots_total",
			Help: "Total number of registered CRDT slots by kind",
		},
		[]string{"kind"},
	)

	CRDTMergesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_crdtkernel_merges_total",
			Help: "Total number of remote merges by kind",
		},
		[]string{"kind"},
	)

	CRDTSyncMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_crdtkernel_sync_messages_total",
			Help: "Total anti-entropy sync messages by kind and direction",
		},
		[]string{"message_kind", "direction"},
	)

	CRDTAntiEntropyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prism_crdtkernel_anti_entropy_cycle_seconds",
			Help:    "Time taken for one anti-entropy sweep across known peers",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Coordinator metrics
	CoordinatorCommandLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prism_coordinator_command_latency_seconds",
			Help:    "End-to-end latency of submit_command from submit to applied",
			Buckets: prometheus.DefBuckets,
		},
	)

	CoordinatorLeadershipChangesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_coordinator_leadership_changes_total",
			Help: "Total number of observed leadership changes",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RaftLeader,
		RaftTerm,
		RaftPeers,
		RaftLogIndex,
		RaftCommitIndex,
		RaftAppliedIndex,
		RaftElectionsTotal,
		RaftApplyDuration,
		RaftCommandsTotal,
		BlobCount,
		BlobBytesStored,
		BlobDedupSavedBytes,
		BlobIntegrityFailures,
		BlobGCReclaimedBytes,
		BlobOpDuration,
		CRDTSlotsTotal,
		CRDTMergesTotal,
		CRDTSyncMessagesTotal,
		CRDTAntiEntropyDuration,
		CoordinatorCommandLatency,
		CoordinatorLeadershipChangesTotal,
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
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
