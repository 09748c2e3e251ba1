package blobstore

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prism-io/prism/pkg/keymanager"
	"github.com/prism-io/prism/pkg/log"
	"github.com/prism-io/prism/pkg/metrics"
	"github.com/prism-io/prism/pkg/prismerr"
	"github.com/prism-io/prism/pkg/types"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketData = []byte("data")
	bucketMeta = []byte("meta")
)

// BoltStore is the bbolt-backed Store implementation: one "data" bucket
// keyed by hex(hash) holding processed bytes, one "meta" bucket keyed the
// same way holding the JSON-encoded types.BlobMetadata, written atomically
// in a single transaction per Put/Release/GC step.
type BoltStore struct {
	db     *bolt.DB
	cfg    Config
	keys   *keymanager.Manager
	logger zerolog.Logger

	mu    sync.Mutex // serializes refcount read-modify-write across Put/Release/GC
	stats statistics
}

type statistics struct {
	totalBlocks           int64
	totalStoredBytes      int64
	dedupSavedBytes       int64
	compressionSavedBytes int64
	readOperations        int64
	writeOperations       int64
	integrityFailures     int64
}

// NewBoltStore opens (creating if absent) a bbolt-backed blob store rooted
// at dataDir/blobstore.db.
func NewBoltStore(dataDir string, cfg Config, keys *keymanager.Manager) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "blobstore.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, prismerr.Wrap(prismerr.KindFatal, "open_failed", "open blob store database", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketData, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, prismerr.Wrap(prismerr.KindFatal, "init_failed", "initialize blob store buckets", err)
	}

	return &BoltStore{
		db:     db,
		cfg:    cfg,
		keys:   keys,
		logger: log.WithComponent("blobstore"),
	}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

// Put stores content, deduplicating on its BLAKE3 address.
func (s *BoltStore) Put(content []byte) (StoreResult, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.BlobOpDuration, "put")

	hash := ContentHash(content)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readMeta(hash)
	if err == nil {
		existing.Refcount++
		existing.LastAccessed = time.Now()
		if err := s.writeMeta(hash, existing); err != nil {
			return StoreResult{}, err
		}
		atomic.AddInt64(&s.stats.dedupSavedBytes, existing.OriginalSize)
		metrics.BlobDedupSavedBytes.Add(float64(existing.OriginalSize))
		return StoreResult{Hash: hash, IsNew: false, OriginalSize: existing.OriginalSize, StoredSize: existing.StoredSize}, nil
	}
	if !prismerr.IsKind(err, prismerr.KindPrecondition) {
		return StoreResult{}, err
	}

	processed, meta, err := s.process(content, hash)
	if err != nil {
		return StoreResult{}, err
	}
	meta.Refcount = 1
	meta.CreatedAt = time.Now()
	meta.LastAccessed = meta.CreatedAt

	if err := s.db.Update(func(tx *bolt.Tx) error {
		metaBytes, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		key := keyFor(hash)
		if err := tx.Bucket(bucketData).Put(key, processed); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(key, metaBytes)
	}); err != nil {
		return StoreResult{}, prismerr.Wrap(prismerr.KindTransient, "write_failed", "write blob data and metadata", err)
	}

	atomic.AddInt64(&s.stats.totalBlocks, 1)
	atomic.AddInt64(&s.stats.totalStoredBytes, meta.StoredSize)
	atomic.AddInt64(&s.stats.writeOperations, 1)
	if meta.OriginalSize > meta.StoredSize {
		atomic.AddInt64(&s.stats.compressionSavedBytes, meta.OriginalSize-meta.StoredSize)
	}
	metrics.BlobCount.Inc()
	metrics.BlobBytesStored.Add(float64(meta.StoredSize))

	return StoreResult{Hash: hash, IsNew: true, OriginalSize: meta.OriginalSize, StoredSize: meta.StoredSize}, nil
}

// process compresses then encrypts content in pipeline order, producing
// the bytes written to storage and the metadata describing how to reverse
// the transform.
func (s *BoltStore) process(content []byte, hash string) ([]byte, types.BlobMetadata, error) {
	meta := types.BlobMetadata{
		Hash:         hash,
		OriginalSize: int64(len(content)),
		Compression:  types.CompressionNone,
		Encryption:   types.EncryptionNone,
	}

	processed := content
	if s.cfg.CompressionEnabled {
		out, err := compress(processed, s.cfg.CompressionLevel)
		if err != nil {
			return nil, types.BlobMetadata{}, err
		}
		processed = out
		meta.Compression = s.cfg.CompressionKind
		meta.CompressionLevel = s.cfg.CompressionLevel
	}

	if s.cfg.EncryptionEnabled {
		key, err := s.keys.ActiveKey(s.cfg.KeyPurpose)
		if err != nil {
			return nil, types.BlobMetadata{}, prismerr.Wrap(prismerr.KindFatal, "key_unavailable", "fetch active blob encryption key", err)
		}
		out, err := seal(s.cfg.EncryptionKind, key, processed)
		if err != nil {
			return nil, types.BlobMetadata{}, err
		}
		processed = out
		meta.Encryption = s.cfg.EncryptionKind
		meta.KeyPurpose = key.ID
	}

	meta.StoredSize = int64(len(processed))
	meta.StorageChecksum = ContentHash(processed)
	return processed, meta, nil
}

// unprocess reverses process: decrypt then decompress.
func (s *BoltStore) unprocess(processed []byte, meta types.BlobMetadata) ([]byte, error) {
	data := processed
	if meta.Encryption != types.EncryptionNone {
		key, err := s.keys.KeyByID(meta.KeyPurpose)
		if err != nil {
			return nil, prismerr.Wrap(prismerr.KindFatal, "key_unavailable", "fetch blob decryption key", err)
		}
		out, err := open(meta.Encryption, key, data)
		if err != nil {
			return nil, err
		}
		data = out
	}
	if meta.Compression != types.CompressionNone {
		out, err := decompress(data)
		if err != nil {
			return nil, err
		}
		data = out
	}
	return data, nil
}

// Get retrieves and verifies content by hash.
func (s *BoltStore) Get(hash string) ([]byte, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.BlobOpDuration, "get")

	meta, err := s.readMeta(hash)
	if err != nil {
		return nil, err
	}

	var processed []byte
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketData).Get(keyFor(hash))
		if v == nil {
			return prismerr.New(prismerr.KindPrecondition, "blob_not_found", fmt.Sprintf("no stored content for hash %s", hash))
		}
		processed = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if actual := ContentHash(processed); actual != meta.StorageChecksum {
		atomic.AddInt64(&s.stats.integrityFailures, 1)
		metrics.BlobIntegrityFailures.Inc()
		return nil, prismerr.New(prismerr.KindConsistency, "integrity_check_failed",
			fmt.Sprintf("storage checksum mismatch for %s: expected %s, got %s", hash, meta.StorageChecksum, actual))
	}

	content, err := s.unprocess(processed, meta)
	if err != nil {
		return nil, err
	}

	meta.LastAccessed = time.Now()
	_ = s.writeMeta(hash, meta)
	atomic.AddInt64(&s.stats.readOperations, 1)
	return content, nil
}

func (s *BoltStore) Metadata(hash string) (types.BlobMetadata, error) {
	return s.readMeta(hash)
}

// Release decrements hash's refcount. Reclamation happens in GC, not here,
// so a mistaken Release can still be recovered until the next sweep.
func (s *BoltStore) Release(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.readMeta(hash)
	if err != nil {
		return err
	}
	if meta.Refcount > 0 {
		meta.Refcount--
	}
	return s.writeMeta(hash, meta)
}

// VerifyIntegrity recomputes hash's storage checksum without decrypting or
// decompressing the content.
func (s *BoltStore) VerifyIntegrity(hash string) (bool, error) {
	meta, err := s.readMeta(hash)
	if err != nil {
		return false, err
	}
	var processed []byte
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketData).Get(keyFor(hash))
		if v == nil {
			return prismerr.New(prismerr.KindPrecondition, "blob_not_found", fmt.Sprintf("no stored content for hash %s", hash))
		}
		processed = v
		return nil
	})
	if err != nil {
		return false, err
	}
	ok := ContentHash(processed) == meta.StorageChecksum
	if !ok {
		atomic.AddInt64(&s.stats.integrityFailures, 1)
		metrics.BlobIntegrityFailures.Inc()
	}
	return ok, nil
}

func (s *BoltStore) Statistics() Statistics {
	return Statistics{
		TotalBlocks:           atomic.LoadInt64(&s.stats.totalBlocks),
		TotalStoredBytes:      atomic.LoadInt64(&s.stats.totalStoredBytes),
		DedupSavedBytes:       atomic.LoadInt64(&s.stats.dedupSavedBytes),
		CompressionSavedBytes: atomic.LoadInt64(&s.stats.compressionSavedBytes),
		ReadOperations:        atomic.LoadInt64(&s.stats.readOperations),
		WriteOperations:       atomic.LoadInt64(&s.stats.writeOperations),
		IntegrityFailures:     atomic.LoadInt64(&s.stats.integrityFailures),
	}
}

func (s *BoltStore) readMeta(hash string) (types.BlobMetadata, error) {
	var meta types.BlobMetadata
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(keyFor(hash))
		if v == nil {
			return prismerr.New(prismerr.KindPrecondition, "blob_not_found", fmt.Sprintf("no metadata for hash %s", hash))
		}
		return json.Unmarshal(v, &meta)
	})
	return meta, err
}

func (s *BoltStore) writeMeta(hash string, meta types.BlobMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return prismerr.Wrap(prismerr.KindFatal, "encode_failed", "encode blob metadata", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyFor(hash), data)
	})
}

func keyFor(hash string) []byte {
	// hash is already hex; re-decoding and re-encoding would be wasted
	// work, so the bucket key is just the hex string's bytes.
	return []byte(hash)
}
