package crdtkernel

import "github.com/prism-io/prism/pkg/types"

// GCounter is a grow-only counter: each replica tracks its own
// monotonically increasing contribution, and merge takes the per-replica
// max. Value is the sum across all replicas.
type GCounter struct {
	Counts map[types.NodeId]uint64 `json:"counts"`
}

// NewGCounter returns an empty counter.
func NewGCounter() *GCounter {
	return &GCounter{Counts: make(map[types.NodeId]uint64)}
}

func (c *GCounter) Kind() types.CRDTKind { return types.CRDTKindGCounter }

// Increment adds delta to this replica's own contribution.
func (c *GCounter) Increment(node types.NodeId, delta uint64) {
	c.Counts[node] += delta
}

// Value returns the current total across all replicas.
func (c *GCounter) Value() uint64 {
	var total uint64
	for _, v := range c.Counts {
		total += v
	}
	return total
}

// Merge folds other into c by taking, per replica, the larger contribution.
// Idempotent, commutative, associative: per-key max is a semilattice join.
func (c *GCounter) Merge(other *GCounter) {
	for node, v := range other.Counts {
		if v > c.Counts[node] {
			c.Counts[node] = v
		}
	}
}

func (c *GCounter) Clone() *GCounter {
	out := NewGCounter()
	for k, v := range c.Counts {
		out.Counts[k] = v
	}
	return out
}
