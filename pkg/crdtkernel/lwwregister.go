package crdtkernel

import "github.com/prism-io/prism/pkg/types"

// LWWRegister holds a single value tagged with the HybridTimestamp and
// NodeId of its writer. Merge keeps whichever tuple (Timestamp, Node) is
// greater — deterministic because HybridTimestamp.Less tie-breaks on
// NodeId when Physical and Logical are equal.
type LWWRegister struct {
	Value     string               `json:"value"`
	Timestamp types.HybridTimestamp `json:"timestamp"`
}

func NewLWWRegister() *LWWRegister {
	return &LWWRegister{}
}

func (r *LWWRegister) Kind() types.CRDTKind { return types.CRDTKindLWWRegister }

// Set overwrites the register with a new value tagged ts, but only if ts
// wins against the current tag — callers racing a stale write do not
// clobber a newer one even before a merge round-trip.
func (r *LWWRegister) Set(value string, ts types.HybridTimestamp) {
	if r.Timestamp.Less(ts) {
		r.Value = value
		r.Timestamp = ts
	}
}

func (r *LWWRegister) Merge(other *LWWRegister) {
	if r.Timestamp.Less(other.Timestamp) {
		r.Value = other.Value
		r.Timestamp = other.Timestamp
	}
}

func (r *LWWRegister) Clone() *LWWRegister {
	return &LWWRegister{Value: r.Value, Timestamp: r.Timestamp}
}
