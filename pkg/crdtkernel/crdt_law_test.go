package crdtkernel

import (
	"testing"
	"time"

	"github.com/prism-io/prism/pkg/types"
)

func nodeA() types.NodeId { return types.NewNodeId() }

func ts(node types.NodeId, physical time.Time, logical uint64) types.HybridTimestamp {
	return types.HybridTimestamp{Physical: physical, Logical: logical, Node: node}
}

func TestGCounterLaws(t *testing.T) {
	n1, n2 := nodeA(), nodeA()
	a := NewGCounter()
	a.Increment(n1, 3)
	b := NewGCounter()
	b.Increment(n2, 5)

	ab := a.Clone()
	ab.Merge(b)
	ba := b.Clone()
	ba.Merge(a)
	if ab.Value() != ba.Value() {
		t.Fatalf("merge not commutative: %d vs %d", ab.Value(), ba.Value())
	}
	if ab.Value() != 8 {
		t.Fatalf("expected value 8, got %d", ab.Value())
	}

	idempotent := ab.Clone()
	idempotent.Merge(ab)
	if idempotent.Value() != ab.Value() {
		t.Fatalf("merge not idempotent: %d vs %d", idempotent.Value(), ab.Value())
	}
}

func TestPNCounterIncDec(t *testing.T) {
	n1 := nodeA()
	c := NewPNCounter()
	c.Increment(n1, 10)
	c.Decrement(n1, 4)
	if c.Value() != 6 {
		t.Fatalf("expected value 6, got %d", c.Value())
	}
}

func TestGSetUnionIdempotent(t *testing.T) {
	a := NewGSet()
	a.Add("x")
	b := NewGSet()
	b.Add("y")

	a.Merge(b)
	if !a.Contains("x") || !a.Contains("y") {
		t.Fatalf("expected union of both elements, got %v", a.Members())
	}

	a.Merge(a.Clone())
	if len(a.Members()) != 2 {
		t.Fatalf("merge not idempotent, got %v", a.Members())
	}
}

func TestTwoPhaseSetCannotReAdd(t *testing.T) {
	s := NewTwoPhaseSet()
	s.Add("x")
	s.Remove("x")
	s.Add("x")
	if s.Contains("x") {
		t.Fatal("two-phase set must not allow re-adding a removed element")
	}
}

func TestLWWRegisterKeepsGreaterTimestamp(t *testing.T) {
	n1, n2 := nodeA(), nodeA()
	now := time.Now()
	r := NewLWWRegister()
	r.Set("first", ts(n1, now, 0))
	r.Set("second", ts(n2, now.Add(time.Second), 0))
	if r.Value != "second" {
		t.Fatalf("expected later write to win, got %q", r.Value)
	}

	r.Set("stale", ts(n1, now, 0))
	if r.Value != "second" {
		t.Fatalf("stale write must not overwrite, got %q", r.Value)
	}
}

func TestMVRegisterCollapsesOnDominatingWrite(t *testing.T) {
	n1 := nodeA()
	r := NewMVRegister()
	c1 := types.NewVectorClock().Increment(n1)
	r.Set("a", c1, n1)

	c2 := c1.Clone().Increment(n1)
	r.Set("b", c2, n1)

	vals := r.Values()
	if len(vals) != 1 || vals[0] != "b" {
		t.Fatalf("expected dominating write to collapse to single value 'b', got %v", vals)
	}
}

func TestMVRegisterKeepsConcurrentValues(t *testing.T) {
	n1, n2 := nodeA(), nodeA()
	r1 := NewMVRegister()
	c1 := types.NewVectorClock().Increment(n1)
	r1.Set("from-1", c1, n1)

	r2 := NewMVRegister()
	c2 := types.NewVectorClock().Increment(n2)
	r2.Set("from-2", c2, n2)

	r1.Merge(r2)
	vals := r1.Values()
	if len(vals) != 2 {
		t.Fatalf("expected 2 concurrent values preserved, got %v", vals)
	}
}

func TestORSetConcurrentAddWins(t *testing.T) {
	s1 := NewORSet()
	s1.Add("x", "tag-1")

	s2 := s1.Clone()
	s2.Remove("x")

	s3 := s1.Clone()
	s3.Add("x", "tag-2")

	s2.Merge(s3)
	if !s2.Contains("x") {
		t.Fatal("concurrent add must win over a remove that did not observe it")
	}
}

func TestORSetRemoveAfterObserve(t *testing.T) {
	s := NewORSet()
	s.Add("x", "tag-1")
	s.Remove("x")
	if s.Contains("x") {
		t.Fatal("remove observing the only add tag must remove the element")
	}
}

func TestRGAOrderAndTombstone(t *testing.T) {
	n1 := nodeA()
	base := time.Now()
	r := NewRGA()
	id1 := ts(n1, base, 0)
	id2 := ts(n1, base.Add(time.Second), 0)
	id3 := ts(n1, base.Add(2*time.Second), 0)

	r.InsertAfter(nil, id1, "a")
	r.InsertAfter(&id1, id2, "b")
	r.InsertAfter(&id2, id3, "c")

	vals := r.Values()
	if len(vals) != 3 || vals[0] != "a" || vals[1] != "b" || vals[2] != "c" {
		t.Fatalf("expected sequential order [a b c], got %v", vals)
	}

	r.Remove(id2)
	vals = r.Values()
	if len(vals) != 2 || vals[0] != "a" || vals[1] != "c" {
		t.Fatalf("expected tombstoned element dropped from output, got %v", vals)
	}
}

func TestRGAMergeKeepsTombstone(t *testing.T) {
	n1 := nodeA()
	id1 := ts(n1, time.Now(), 0)
	a := NewRGA()
	a.InsertAfter(nil, id1, "x")

	b := a.Clone()
	b.Remove(id1)

	a.Merge(b)
	if len(a.Values()) != 0 {
		t.Fatalf("expected merge to adopt remote tombstone, got %v", a.Values())
	}
}

func TestContainerMergeRejectsKindMismatch(t *testing.T) {
	a, _ := NewContainer(types.CRDTKindGCounter)
	b, _ := NewContainer(types.CRDTKindGSet)
	if err := a.Merge(b); err == nil {
		t.Fatal("expected kind mismatch error")
	}
}

func TestContainerSnapshotRoundTrip(t *testing.T) {
	n1 := nodeA()
	c, _ := NewContainer(types.CRDTKindGCounter)
	c.GCounter.Increment(n1, 7)
	c.touch(n1)

	data, err := c.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	restored, err := LoadSnapshot(data)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if restored.GCounter.Value() != 7 {
		t.Fatalf("expected restored value 7, got %d", restored.GCounter.Value())
	}
}

func TestKernelRegisterAndMergeRemote(t *testing.T) {
	self := nodeA()
	k := New(self)
	if _, err := k.Register("votes", types.CRDTKindGCounter); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := k.GCounterIncrement("votes", 4); err != nil {
		t.Fatalf("increment: %v", err)
	}

	remoteNode := nodeA()
	remote, _ := NewContainer(types.CRDTKindGCounter)
	remote.GCounter.Increment(remoteNode, 9)
	remote.touch(remoteNode)

	if err := k.MergeRemote("votes", remote); err != nil {
		t.Fatalf("merge remote: %v", err)
	}

	c, ok := k.Get("votes")
	if !ok {
		t.Fatal("expected slot to exist")
	}
	if c.GCounter.Value() != 13 {
		t.Fatalf("expected merged value 13, got %d", c.GCounter.Value())
	}
}

func TestKernelRegisterRejectsKindChange(t *testing.T) {
	k := New(nodeA())
	if _, err := k.Register("s", types.CRDTKindGSet); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := k.Register("s", types.CRDTKindGCounter); err == nil {
		t.Fatal("expected kind mismatch error on re-register")
	}
}

func TestNeedsSyncBoundary(t *testing.T) {
	n1, n2 := nodeA(), nodeA()
	local := types.NewVectorClock().Increment(n1)
	remote := local.Clone()

	if needsSync(local, remote, "h", "h") {
		t.Fatal("equal hash must never require sync")
	}
	if needsSync(local, remote, "h1", "h2") {
		t.Fatal("equal clocks with differing hash should not occur, but dominance check must not force a sync when neither side dominates")
	}

	remote = remote.Increment(n2)
	if !needsSync(local, remote, "h1", "h2") {
		t.Fatal("remote dominating local with differing hash must require sync")
	}
	if needsSync(remote, local, "h2", "h1") {
		t.Fatal("local dominating remote must not require the dominating side to sync")
	}
}
