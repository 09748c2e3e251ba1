package blobstore

import (
	"bytes"
	"testing"

	bolt "go.etcd.io/bbolt"

	"github.com/prism-io/prism/pkg/keymanager"
	"github.com/prism-io/prism/pkg/types"
)

func newTestStore(t *testing.T, cfg Config) *BoltStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewBoltStore(dir, cfg, keymanager.New())
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t, DefaultConfig())
	content := []byte("hello PRISM blob store")

	res, err := s.Put(content)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !res.IsNew {
		t.Fatal("expected first put to be new")
	}

	got, err := s.Get(res.Hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("round trip mismatch: got %q, want %q", got, content)
	}
}

func TestPutDeduplicates(t *testing.T) {
	s := newTestStore(t, DefaultConfig())
	content := []byte("duplicate me")

	r1, err := s.Put(content)
	if err != nil {
		t.Fatalf("put 1: %v", err)
	}
	r2, err := s.Put(content)
	if err != nil {
		t.Fatalf("put 2: %v", err)
	}
	if r1.Hash != r2.Hash {
		t.Fatalf("expected identical hashes, got %s and %s", r1.Hash, r2.Hash)
	}
	if r2.IsNew {
		t.Fatal("second put of identical content should not be new")
	}

	meta, err := s.Metadata(r1.Hash)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if meta.Refcount != 2 {
		t.Fatalf("expected refcount 2 after two puts, got %d", meta.Refcount)
	}
}

func TestEncryptionRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EncryptionEnabled = true
	cfg.EncryptionKind = types.EncryptionAES256GCM
	cfg.KeyPurpose = "blob"

	s := newTestStore(t, cfg)
	content := []byte("secret payload")

	res, err := s.Put(content)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(res.Hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("encrypted round trip mismatch")
	}
}

func TestGCReclaimsUnreferenced(t *testing.T) {
	s := newTestStore(t, DefaultConfig())
	content := []byte("garbage")

	res, err := s.Put(content)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Release(res.Hash); err != nil {
		t.Fatalf("Release: %v", err)
	}

	reclaimed, err := s.GC(map[string]struct{}{})
	if err != nil {
		t.Fatalf("GC: %v", err)
	}
	if reclaimed == 0 {
		t.Fatal("expected GC to reclaim the unreferenced block")
	}

	if _, err := s.Get(res.Hash); err == nil {
		t.Fatal("expected Get to fail after GC reclaimed the block")
	}
}

func TestGCSkipsRootedBlocks(t *testing.T) {
	s := newTestStore(t, DefaultConfig())
	content := []byte("rooted")

	res, err := s.Put(content)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Release(res.Hash); err != nil {
		t.Fatalf("Release: %v", err)
	}

	roots := map[string]struct{}{res.Hash: {}}
	if _, err := s.GC(roots); err != nil {
		t.Fatalf("GC: %v", err)
	}

	if _, err := s.Get(res.Hash); err != nil {
		t.Fatalf("expected rooted block to survive GC, got error: %v", err)
	}
}

func TestVerifyIntegrityDetectsCorruption(t *testing.T) {
	s := newTestStore(t, DefaultConfig())
	content := []byte("integrity check me")

	res, err := s.Put(content)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	ok, err := s.VerifyIntegrity(res.Hash)
	if err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
	if !ok {
		t.Fatal("expected freshly stored content to verify")
	}

	if err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketData)
		stored := append([]byte(nil), b.Get(keyFor(res.Hash))...)
		stored[0] ^= 0xFF
		return b.Put(keyFor(res.Hash), stored)
	}); err != nil {
		t.Fatalf("corrupt stored bytes: %v", err)
	}
	ok, err = s.VerifyIntegrity(res.Hash)
	if err != nil {
		t.Fatalf("VerifyIntegrity after corruption: %v", err)
	}
	if ok {
		t.Fatal("expected corrupted content to fail verification")
	}
}

func TestRepairAcceptsAnyCorrectCopy(t *testing.T) {
	s := newTestStore(t, DefaultConfig())
	content := []byte("repairable content")
	res, err := s.Put(content)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	corrupt := append([]byte(nil), content...)
	corrupt[0] ^= 0xFF

	repaired, err := s.Repair(res.Hash, [][]byte{corrupt, content})
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if !bytes.Equal(repaired, content) {
		t.Fatal("expected repair to recover the correct copy")
	}
}

func TestRepairMajorityVote(t *testing.T) {
	s := newTestStore(t, DefaultConfig())
	content := []byte("majority wins")
	hash := ContentHash(content)

	corruptA := append([]byte(nil), content...)
	corruptA[3] ^= 0x01
	corruptB := append([]byte(nil), content...)
	corruptB[7] ^= 0x02
	corruptC := append([]byte(nil), content...)
	corruptC[10] ^= 0x04

	// Need at least one entry for Repair to pre-register metadata on.
	if _, err := s.Put(content); err != nil {
		t.Fatalf("Put: %v", err)
	}

	repaired, err := s.Repair(hash, [][]byte{corruptA, corruptB, corruptC})
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if !bytes.Equal(repaired, content) {
		t.Fatalf("expected majority vote to recover original content")
	}
}

func TestRepairFailsWithoutMajority(t *testing.T) {
	s := newTestStore(t, DefaultConfig())
	content := []byte("no quorum")
	hash := ContentHash(content)

	if _, err := s.Put(content); err != nil {
		t.Fatalf("Put: %v", err)
	}

	corruptA := append([]byte(nil), content...)
	corruptA[0] ^= 0xFF
	corruptB := append([]byte(nil), content...)
	corruptB[0] ^= 0x0F // differs from both original and corruptA at position 0

	_, err := s.Repair(hash, [][]byte{corruptA, corruptB})
	if err == nil {
		t.Fatal("expected repair to fail when no candidate hashes correctly")
	}
}
