package crdtkernel

import "github.com/prism-io/prism/pkg/types"

// PNCounter supports increment and decrement by composing two GCounters:
// value = inc.Value() - dec.Value(). Each side merges independently.
type PNCounter struct {
	Inc *GCounter `json:"inc"`
	Dec *GCounter `json:"dec"`
}

func NewPNCounter() *PNCounter {
	return &PNCounter{Inc: NewGCounter(), Dec: NewGCounter()}
}

func (c *PNCounter) Kind() types.CRDTKind { return types.CRDTKindPNCounter }

func (c *PNCounter) Increment(node types.NodeId, delta uint64) {
	c.Inc.Increment(node, delta)
}

func (c *PNCounter) Decrement(node types.NodeId, delta uint64) {
	c.Dec.Increment(node, delta)
}

// Value returns inc - dec as a signed total.
func (c *PNCounter) Value() int64 {
	return int64(c.Inc.Value()) - int64(c.Dec.Value())
}

func (c *PNCounter) Merge(other *PNCounter) {
	c.Inc.Merge(other.Inc)
	c.Dec.Merge(other.Dec)
}

func (c *PNCounter) Clone() *PNCounter {
	return &PNCounter{Inc: c.Inc.Clone(), Dec: c.Dec.Clone()}
}
