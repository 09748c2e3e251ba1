package metrics

import "time"

// Source is the subset of the Coordinator this collector pulls periodic
// gauge snapshots from. Defined here (rather than importing
// pkg/coordinator directly) to avoid a metrics->coordinator->metrics
// import cycle, since the Coordinator itself pushes most counters
// straight to the package vars above as they happen.
type Source interface {
	BlobStatistics() BlobStats
	CommandLatency() time.Duration
	LeadershipChanges() uint64
}

// BlobStats mirrors the blob store fields this collector turns into gauges.
type BlobStats struct {
	TotalBlocks       int64
	TotalStoredBytes  int64
	DedupSavedBytes   int64
	IntegrityFailures int64
}

// Collector periodically pulls the point-in-time statistics that aren't
// already pushed to Prometheus at the moment they change: it sets the blob
// store gauges, observes the latest command latency, and advances the
// integrity-failure and leadership-change counters by the delta since the
// last poll. Counters
// that are naturally push-based (RaftCommandsTotal, CRDTMergesTotal,
// CRDTSyncMessagesTotal, ...) are incremented at their call sites instead
// and never touched here.
type Collector struct {
	source Source
	stopCh chan struct{}

	lastIntegrityFailures int64
	lastLeadershipChanges uint64
}

// NewCollector builds a Collector pulling periodic snapshots from source.
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectBlobMetrics()
	c.collectCoordinatorMetrics()
}

func (c *Collector) collectBlobMetrics() {
	stats := c.source.BlobStatistics()
	BlobCount.Set(float64(stats.TotalBlocks))
	BlobBytesStored.Set(float64(stats.TotalStoredBytes))
	BlobDedupSavedBytes.Set(float64(stats.DedupSavedBytes))

	// IntegrityFailures is a cumulative counter on the blob store side;
	// only advance the Prometheus counter by the delta since last poll.
	if delta := stats.IntegrityFailures - c.lastIntegrityFailures; delta > 0 {
		BlobIntegrityFailures.Add(float64(delta))
	}
	c.lastIntegrityFailures = stats.IntegrityFailures
}

func (c *Collector) collectCoordinatorMetrics() {
	CoordinatorCommandLatency.Observe(c.source.CommandLatency().Seconds())

	changes := c.source.LeadershipChanges()
	if delta := changes - c.lastLeadershipChanges; delta > 0 {
		CoordinatorLeadershipChangesTotal.Add(float64(delta))
	}
	c.lastLeadershipChanges = changes
}
