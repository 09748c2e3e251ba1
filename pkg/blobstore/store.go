// Package blobstore is PRISM's content-addressed blob store: BLAKE3 hashes
// address deduplicated, optionally compressed and encrypted content, backed
// by bbolt in a data:/meta: key layout.
package blobstore

import (
	"time"

	"github.com/prism-io/prism/pkg/types"
)

// Config tunes a Store's processing pipeline.
type Config struct {
	CompressionEnabled bool
	CompressionKind    types.BlobCompressionKind
	CompressionLevel   int

	EncryptionEnabled bool
	EncryptionKind    types.BlobEncryptionKind
	KeyPurpose        string

	// GCInterval is how often the background GC sweep runs. Zero disables
	// the periodic loop; callers can still invoke GC directly.
	GCInterval time.Duration
}

// DefaultConfig mirrors the reference CAS defaults: zstd compression on,
// encryption off, a conservative compression level, hourly GC.
func DefaultConfig() Config {
	return Config{
		CompressionEnabled: true,
		CompressionKind:    types.CompressionZstd,
		CompressionLevel:   6,
		EncryptionEnabled:  false,
		EncryptionKind:     types.EncryptionNone,
		GCInterval:         time.Hour,
	}
}

// StoreResult reports the outcome of a Put.
type StoreResult struct {
	Hash         string
	IsNew        bool
	OriginalSize int64
	StoredSize   int64
}

// Statistics summarizes store-wide counters for metrics and diagnostics.
type Statistics struct {
	TotalBlocks        int64
	TotalStoredBytes   int64
	DedupSavedBytes    int64
	CompressionSavedBytes int64
	ReadOperations     int64
	WriteOperations    int64
	IntegrityFailures  int64
}

// DeduplicationRatio is saved bytes as a fraction of total logical bytes.
func (s Statistics) DeduplicationRatio() float64 {
	total := s.TotalStoredBytes + s.DedupSavedBytes
	if total == 0 {
		return 0
	}
	return float64(s.DedupSavedBytes) / float64(total)
}

// Store is the content-addressed blob interface the Coordinator and GC loop
// depend on.
type Store interface {
	// Put stores content, returning its address and whether it was newly
	// written (false means an existing block's refcount was bumped).
	Put(content []byte) (StoreResult, error)
	// Get retrieves and verifies content by its BLAKE3 hash address.
	Get(hash string) ([]byte, error)
	// Metadata returns the metadata record for hash without reading the
	// content body.
	Metadata(hash string) (types.BlobMetadata, error)
	// Release decrements hash's refcount; a GC sweep reclaims blocks whose
	// refcount reaches zero and are not in the GC root set.
	Release(hash string) error
	// VerifyIntegrity recomputes hash's storage checksum and reports
	// whether it still matches the recorded one.
	VerifyIntegrity(hash string) (bool, error)
	// GC reclaims unreferenced, non-rooted blocks and returns bytes freed.
	GC(roots map[string]struct{}) (int64, error)
	// Statistics reports cumulative store counters.
	Statistics() Statistics
	Close() error
}
