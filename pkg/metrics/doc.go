/*
Package metrics provides Prometheus metrics collection and exposition for PRISM.

The metrics package defines and registers all PRISM metrics using the Prometheus
client library, providing observability into cluster health, resource utilization,
operation latency, and system performance. Metrics are exposed via HTTP endpoint
for scraping by Prometheus servers.

# Architecture

PRISM's metrics system follows Prometheus best practices with comprehensive
instrumentation across all components:

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  │  - Automatic Go runtime metrics             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Types                   │          │
	│  │                                              │          │
	│  │  Gauge: Instant values (node count)         │          │
	│  │  Counter: Monotonic increases (requests)    │          │
	│  │  Histogram: Distributions (latency)         │          │
	│  │  Summary: Quantiles (percentiles)           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Raft: Leader status, term, log index, peers│          │
	│  │  Blob store: Counts, bytes, GC, integrity   │          │
	│  │  CRDT kernel: Slots, merges, sync messages  │          │
	│  │  Coordinator: Command latency, leadership   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Prometheus Server                   │          │
	│  │  - Scrapes /metrics every 15s               │          │
	│  │  - Stores time series data                  │          │
	│  │  - Provides PromQL query interface          │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry
  - All metrics registered at package init
  - Automatic collection of Go runtime metrics
  - Thread-safe for concurrent updates

Gauge Metrics:
  - Instant value that can go up or down
  - Examples: peer count, blob count, Raft leader status
  - Operations: Set, Inc, Dec, Add, Sub

Counter Metrics:
  - Monotonically increasing value
  - Examples: elections total, CRDT merges total
  - Operations: Inc, Add (cannot decrease)

Histogram Metrics:
  - Distribution of observed values
  - Buckets for latency percentiles (p50, p95, p99)
  - Examples: Raft apply duration, blob operation duration
  - Includes: sum, count, buckets

Timer Helper:
  - Convenience wrapper for timing operations
  - Start timer, observe duration to histogram
  - Supports label values for histogram vectors

# Metrics Catalog

Raft Metrics:

prism_raft_is_leader:
  - Type: Gauge
  - Description: Whether this node is the Raft leader (1=leader, 0=follower)
  - Example: prism_raft_is_leader 1

prism_raft_term:
  - Type: Gauge
  - Description: Current Raft term observed by this node
  - Example: prism_raft_term 7

prism_raft_peers_total:
  - Type: Gauge
  - Description: Total Raft peers in the cluster
  - Example: prism_raft_peers_total 3

prism_raft_log_index / prism_raft_commit_index / prism_raft_applied_index:
  - Type: Gauge
  - Description: Current, committed, and applied Raft log index
  - Example: prism_raft_log_index 1543

prism_raft_elections_total:
  - Type: Counter
  - Description: Total elections observed by this node

prism_raft_apply_duration_seconds:
  - Type: Histogram
  - Description: Time to apply a committed Raft log entry

prism_raft_commands_total{kind, outcome}:
  - Type: CounterVec
  - Description: Total commands submitted, by command kind and outcome
  - Labels: kind, outcome

Blob Store Metrics:

prism_blobstore_blobs_total:
  - Type: Gauge
  - Description: Total number of distinct blobs stored

prism_blobstore_bytes_stored:
  - Type: Gauge
  - Description: Total stored (post-compression/encryption) bytes across all blobs

prism_blobstore_dedup_saved_bytes:
  - Type: Gauge
  - Description: Bytes avoided by content-addressed deduplication

prism_blobstore_integrity_failures_total:
  - Type: Counter
  - Description: Total checksum mismatches detected on retrieve/verify

prism_blobstore_gc_reclaimed_bytes_total:
  - Type: Counter
  - Description: Total bytes reclaimed by garbage collection

prism_blobstore_operation_duration_seconds{operation}:
  - Type: HistogramVec
  - Description: Blob store operation duration by operation name
  - Labels: operation

CRDT Kernel Metrics:

prism_crdtkernel_slots_total{kind}:
  - Type: GaugeVec
  - Description: Total registered CRDT slots, by kind
  - Labels: kind

prism_crdtkernel_merges_total{kind}:
  - Type: CounterVec
  - Description: Total remote merges applied, by kind
  - Labels: kind

prism_crdtkernel_sync_messages_total{message_kind, direction}:
  - Type: CounterVec
  - Description: Total anti-entropy sync messages, by message kind and direction
  - Labels: message_kind, direction

prism_crdtkernel_anti_entropy_cycle_seconds:
  - Type: Histogram
  - Description: Time taken for one anti-entropy sweep across known peers

Coordinator Metrics:

prism_coordinator_command_latency_seconds:
  - Type: Histogram
  - Description: End-to-end latency of SubmitCommand, from submit to applied

prism_coordinator_leadership_changes_total:
  - Type: Counter
  - Description: Total observed leadership changes

# Usage

Updating Gauge Metrics:

	import "github.com/prism-io/prism/pkg/metrics"

	// Set absolute value
	metrics.RaftPeers.Set(3)

	// Increment/decrement
	metrics.BlobCount.Inc()
	metrics.BlobCount.Dec()

Updating Counter Metrics:

	// Increment by 1
	metrics.RaftElectionsTotal.Inc()

	// Add arbitrary value
	metrics.RaftCommandsTotal.WithLabelValues("crdt-merge", "ok").Add(1)

Recording Histogram Observations:

	// Direct observation
	metrics.CRDTAntiEntropyDuration.Observe(0.125) // 125ms

	// Using Timer helper
	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(metrics.RaftApplyDuration)

Using Timer with Labels:

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDurationVec(metrics.BlobOpDuration, "put")

Complete Example:

	package main

	import (
		"net/http"
		"time"
		"github.com/prism-io/prism/pkg/metrics"
	)

	func main() {
		// Update cluster metrics
		metrics.RaftPeers.Set(3)
		metrics.BlobCount.Set(10)
		metrics.CRDTSlotsTotal.WithLabelValues("or-set").Set(30)

		// Time an operation
		timer := metrics.NewTimer()
		applyEntry()
		timer.ObserveDuration(metrics.RaftApplyDuration)

		// Expose metrics endpoint
		http.Handle("/metrics", metrics.Handler())
		http.ListenAndServe(":9090", nil)
	}

	func applyEntry() {
		// Raft apply logic
		time.Sleep(100 * time.Millisecond)
	}

# Integration Points

This package integrates with:

  - pkg/consensus: Updates Raft leadership, term, and log metrics
  - pkg/blobstore: Updates blob count, dedup, and GC metrics
  - pkg/crdtkernel: Updates slot, merge, and anti-entropy metrics
  - pkg/coordinator: Updates command latency and leadership-change metrics
  - Prometheus: Scrapes /metrics endpoint

# Design Patterns

Package Init Registration:
  - All metrics registered in init() function
  - MustRegister panics on duplicate registration
  - Ensures metrics available before main()
  - No runtime registration needed

Label Discipline:
  - Use WithLabelValues for cardinality-bounded labels
  - Avoid high-cardinality labels (IDs, timestamps)
  - Document label values in metric description
  - Keep label count low (< 5 per metric)

Timer Pattern:
  - Create timer at operation start
  - Defer or explicitly call ObserveDuration
  - Automatically calculates elapsed time
  - Supports both simple and vector histograms

Global Metrics:
  - Package-level variables for all metrics
  - Accessible from any PRISM package
  - Thread-safe concurrent updates
  - No initialization required by callers

# Performance Characteristics

Metric Update Overhead:
  - Gauge set/inc: ~50ns per operation
  - Counter inc: ~50ns per operation
  - Histogram observe: ~200ns per operation
  - Labels: +100ns per label value
  - Negligible impact on hot path

Memory Usage:
  - Per metric: ~1KB baseline
  - Per label combination: ~100 bytes
  - Histogram buckets: ~50 bytes each
  - Total: ~1-5MB for typical PRISM cluster

Scrape Performance:
  - Metrics gathering: ~1-5ms for full scrape
  - HTTP response: ~10ms for typical metric set
  - Recommendation: Scrape interval ≥ 15s
  - Concurrent scrapes: Safe (read-only)

Cardinality Management:
  - Low cardinality: role, status, state (< 10 values)
  - Medium cardinality: method, host (< 100 values)
  - Avoid: blob hashes, timestamps (unbounded)
  - Best practice: Aggregate high-cardinality in logs

# Troubleshooting

Common Issues:

Missing Metrics:
  - Symptom: Metric not appearing in /metrics output
  - Check: Metric registered in init() function
  - Check: MustRegister called (panics if duplicate)
  - Solution: Verify metric variable is exported

High Cardinality:
  - Symptom: Prometheus memory usage grows
  - Cause: Using IDs or unbounded values as labels
  - Check: Label cardinality (count unique combinations)
  - Solution: Remove high-cardinality labels, aggregate differently

Histogram Bucket Mismatch:
  - Symptom: No data in desired percentiles
  - Cause: Buckets don't cover observed value range
  - Check: Histogram sum / count for average
  - Solution: Customize buckets for value range

Stale Metrics:
  - Symptom: Metrics not updating
  - Cause: Code not calling metric update methods
  - Check: Add logging around metric updates
  - Solution: Instrument code paths correctly

# Monitoring

Prometheus Queries (PromQL):

Raft Health:
  - Has leader: max(prism_raft_is_leader) > 0
  - Leader changes: changes(prism_raft_is_leader[10m])
  - Log lag: prism_raft_log_index - prism_raft_applied_index
  - Peer count: prism_raft_peers_total

Blob Store Health:
  - Dedup ratio: prism_blobstore_dedup_saved_bytes / prism_blobstore_bytes_stored
  - Integrity failure rate: rate(prism_blobstore_integrity_failures_total[5m])
  - GC reclaim rate: rate(prism_blobstore_gc_reclaimed_bytes_total[1h])

CRDT Sync Health:
  - Merge rate by kind: rate(prism_crdtkernel_merges_total[1m])
  - p95 anti-entropy cycle time: histogram_quantile(0.95, prism_crdtkernel_anti_entropy_cycle_seconds_bucket)

Coordinator Performance:
  - p95 command latency: histogram_quantile(0.95, prism_coordinator_command_latency_seconds_bucket)
  - Leadership change rate: rate(prism_coordinator_leadership_changes_total[1h])

# Alerting Rules

Recommended Prometheus alerts:

No Raft Leader:
  - Alert: max(prism_raft_is_leader) == 0
  - Description: Cluster has no Raft leader
  - Action: Check peer connectivity, quorum status

Frequent Leader Changes:
  - Alert: changes(prism_raft_is_leader[10m]) > 3
  - Description: Leader changed more than 3 times in 10 minutes
  - Action: Check network latency between peers

Blob Integrity Failures:
  - Alert: rate(prism_blobstore_integrity_failures_total[5m]) > 0
  - Description: A retrieved blob failed its BLAKE3 checksum
  - Action: Check disk integrity, compare against a peer's blob store

High Command Latency:
  - Alert: histogram_quantile(0.95, prism_coordinator_command_latency_seconds_bucket) > 1
  - Description: p95 SubmitCommand latency > 1 second
  - Action: Check Raft apply duration, disk I/O on the leader

# Grafana Dashboards

Recommended dashboard panels:

Raft Health:
  - Single stat: Leader status (yes/no)
  - Time series: Log index, commit index, and applied index
  - Single stat: Peer count
  - Time series: Leader changes

Blob Store:
  - Gauge: Total blobs and bytes stored
  - Time series: Dedup saved bytes
  - Time series: GC reclaimed bytes

CRDT Kernel:
  - Time series: Merges per second by kind
  - Heatmap: Anti-entropy cycle time distribution

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
  - PromQL tutorial: https://prometheus.io/docs/prometheus/latest/querying/basics/
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
