package blobstore

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/prism-io/prism/pkg/metrics"
	"github.com/prism-io/prism/pkg/prismerr"
	"github.com/prism-io/prism/pkg/types"
)

// RootProvider supplies the current GC root set: hashes that must survive a
// sweep regardless of refcount, because some external structure (a CRDT
// container snapshot, a pending log entry) still references them without
// the blob store's own refcount tracking it.
type RootProvider func() map[string]struct{}

// GCLoop runs periodic garbage collection against a Store, consulting a
// RootProvider for the current root set each sweep.
type GCLoop struct {
	store    *BoltStore
	interval time.Duration
	roots    RootProvider
	stopCh   chan struct{}
}

// NewGCLoop builds a GC loop over store, sweeping every interval and
// protecting whatever roots reports at sweep time.
func NewGCLoop(store *BoltStore, interval time.Duration, roots RootProvider) *GCLoop {
	return &GCLoop{
		store:    store,
		interval: interval,
		roots:    roots,
		stopCh:   make(chan struct{}),
	}
}

func (g *GCLoop) Start() {
	if g.interval <= 0 {
		return
	}
	go g.run()
}

func (g *GCLoop) Stop() {
	close(g.stopCh)
}

func (g *GCLoop) run() {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.store.logger.Info().Dur("interval", g.interval).Msg("blob store GC loop started")

	for {
		select {
		case <-ticker.C:
			roots := map[string]struct{}{}
			if g.roots != nil {
				roots = g.roots()
			}
			reclaimed, err := g.store.GC(roots)
			if err != nil {
				g.store.logger.Error().Err(err).Msg("blob store GC sweep failed")
				continue
			}
			g.store.logger.Debug().Int64("reclaimed_bytes", reclaimed).Msg("blob store GC sweep complete")
		case <-g.stopCh:
			g.store.logger.Info().Msg("blob store GC loop stopped")
			return
		}
	}
}

// GC reclaims blocks whose refcount is zero and which are absent from
// roots. A block present in roots survives even at refcount zero — the
// root set stands in for a reference the store's own bookkeeping cannot
// see (e.g. a CRDT snapshot pointer held outside the store).
func (s *BoltStore) GC(roots map[string]struct{}) (int64, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.BlobOpDuration, "gc")

	s.mu.Lock()
	defer s.mu.Unlock()

	type candidate struct {
		hash string
		size int64
	}
	var toRemove []candidate

	if err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).ForEach(func(k, v []byte) error {
			var meta types.BlobMetadata
			if err := json.Unmarshal(v, &meta); err != nil {
				return nil // skip corrupt entries; repair is a separate operation
			}
			hash := string(k)
			if meta.Refcount > 0 {
				return nil
			}
			if _, rooted := roots[hash]; rooted {
				return nil
			}
			toRemove = append(toRemove, candidate{hash: hash, size: meta.StoredSize})
			return nil
		})
	}); err != nil {
		return 0, prismerr.Wrap(prismerr.KindTransient, "gc_scan_failed", "scan blob metadata for GC", err)
	}

	var reclaimed int64
	if err := s.db.Update(func(tx *bolt.Tx) error {
		for _, c := range toRemove {
			key := keyFor(c.hash)
			if err := tx.Bucket(bucketData).Delete(key); err != nil {
				return fmt.Errorf("delete data %s: %w", c.hash, err)
			}
			if err := tx.Bucket(bucketMeta).Delete(key); err != nil {
				return fmt.Errorf("delete meta %s: %w", c.hash, err)
			}
			reclaimed += c.size
		}
		return nil
	}); err != nil {
		return 0, prismerr.Wrap(prismerr.KindTransient, "gc_delete_failed", "delete unreferenced blobs", err)
	}

	atomic.AddInt64(&s.stats.totalBlocks, -int64(len(toRemove)))
	atomic.AddInt64(&s.stats.totalStoredBytes, -reclaimed)
	metrics.BlobGCReclaimedBytes.Add(float64(reclaimed))
	metrics.BlobCount.Sub(float64(len(toRemove)))
	metrics.BlobBytesStored.Sub(float64(reclaimed))

	return reclaimed, nil
}
