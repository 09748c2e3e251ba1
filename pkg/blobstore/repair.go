package blobstore

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/prism-io/prism/pkg/prismerr"
)

// Repair attempts to recover the correct content for hash given copies
// collected from other replicas holding the same blob. If any copy
// already hashes correctly, that copy is accepted and stored locally. If
// none do, a byte-wise majority vote is taken across the copies, position
// by position, and the result is accepted only if it too hashes
// correctly — a repaired candidate that still does not verify means the
// copies disagree beyond what a majority vote can recover, and Repair
// fails rather than writing unverified bytes.
func (s *BoltStore) Repair(hash string, copies [][]byte) ([]byte, error) {
	if len(copies) == 0 {
		return nil, prismerr.New(prismerr.KindResource, "no_repair_copies", "no replica copies supplied for repair")
	}

	for _, c := range copies {
		if ContentHash(c) == hash {
			if err := s.storeVerifiedCopy(hash, c); err != nil {
				return nil, err
			}
			return c, nil
		}
	}

	if len(copies) < 2 {
		return nil, prismerr.New(prismerr.KindConsistency, "repair_insufficient_copies",
			fmt.Sprintf("single corrupt copy for %s and no majority to vote across", hash))
	}

	candidate, err := majorityVote(copies)
	if err != nil {
		return nil, err
	}

	if ContentHash(candidate) != hash {
		return nil, prismerr.New(prismerr.KindConsistency, "repair_failed",
			fmt.Sprintf("majority-vote candidate for %s still does not hash correctly", hash))
	}

	if err := s.storeVerifiedCopy(hash, candidate); err != nil {
		return nil, err
	}
	return candidate, nil
}

// majorityVote reconstructs content by taking, at each byte position, the
// value that appears most often across copies. Copies of differing length
// cannot be voted across meaningfully and are rejected up front.
func majorityVote(copies [][]byte) ([]byte, error) {
	length := len(copies[0])
	for _, c := range copies[1:] {
		if len(c) != length {
			return nil, prismerr.New(prismerr.KindConsistency, "repair_length_mismatch",
				"replica copies differ in length, cannot majority-vote byte-wise")
		}
	}

	out := make([]byte, length)
	var counts [256]int
	for i := 0; i < length; i++ {
		for j := range counts {
			counts[j] = 0
		}
		for _, c := range copies {
			counts[c[i]]++
		}
		best := byte(0)
		bestCount := -1
		for v, n := range counts {
			if n > bestCount {
				bestCount = n
				best = byte(v)
			}
		}
		out[i] = best
	}
	return out, nil
}

// storeVerifiedCopy runs repaired, hash-verified content through the
// store's current processing pipeline and rewrites its data and metadata,
// keeping the existing refcount and timestamps.
func (s *BoltStore) storeVerifiedCopy(hash string, content []byte) error {
	meta, err := s.readMeta(hash)
	if err != nil {
		return err
	}
	processed, fresh, err := s.process(content, hash)
	if err != nil {
		return err
	}
	meta.Compression = fresh.Compression
	meta.CompressionLevel = fresh.CompressionLevel
	meta.Encryption = fresh.Encryption
	meta.KeyPurpose = fresh.KeyPurpose
	meta.StorageChecksum = fresh.StorageChecksum
	meta.StoredSize = fresh.StoredSize

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return prismerr.Wrap(prismerr.KindFatal, "encode_failed", "encode repaired blob metadata", err)
	}

	key := keyFor(hash)
	if err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketData).Put(key, processed); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(key, metaBytes)
	}); err != nil {
		return prismerr.Wrap(prismerr.KindTransient, "write_failed", "write repaired blob", err)
	}
	return nil
}
