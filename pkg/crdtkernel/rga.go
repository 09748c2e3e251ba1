package crdtkernel

import (
	"fmt"
	"sort"

	"github.com/prism-io/prism/pkg/types"
)

// rgaID is the string key form of a types.HybridTimestamp, used to index
// RGA nodes and their predecessor links.
func rgaID(ts types.HybridTimestamp) string {
	return fmt.Sprintf("%d.%d.%s", ts.Physical.UnixNano(), ts.Logical, ts.Node.String())
}

// RGANode is one element of a replicated growable array: a tombstoned
// sequence keyed by (HybridTimestamp, NodeId) id, linked to its insertion
// predecessor.
type RGANode struct {
	ID          types.HybridTimestamp  `json:"id"`
	Value       string                 `json:"value"`
	Predecessor *types.HybridTimestamp `json:"predecessor,omitempty"` // nil = head
	Tombstone   bool                   `json:"tombstone"`
}

// RGA is a sequence CRDT. Order is recovered by a depth-first traversal
// from the head sentinel: siblings sharing a predecessor are ordered by
// descending (timestamp, nodeId) so the newest concurrent insert at a
// position sorts first, matching every replica's traversal regardless of
// delivery order. Removed elements are tombstoned, never deleted, so a
// merge can never resurrect or reorder a concurrently-removed node.
type RGA struct {
	Nodes map[string]*RGANode `json:"nodes"`
}

func NewRGA() *RGA {
	return &RGA{Nodes: make(map[string]*RGANode)}
}

func (r *RGA) Kind() types.CRDTKind { return types.CRDTKindRGA }

// InsertAfter inserts value with identity id immediately after predecessor
// (nil predecessor means "at the head").
func (r *RGA) InsertAfter(predecessor *types.HybridTimestamp, id types.HybridTimestamp, value string) {
	r.Nodes[rgaID(id)] = &RGANode{ID: id, Value: value, Predecessor: predecessor}
}

// Remove tombstones the node identified by id, if present.
func (r *RGA) Remove(id types.HybridTimestamp) {
	if n, ok := r.Nodes[rgaID(id)]; ok {
		n.Tombstone = true
	}
}

// Merge folds other's nodes into r: unseen nodes are added verbatim;
// nodes present on both sides keep their tombstone if either side set it.
func (r *RGA) Merge(other *RGA) {
	for key, n := range other.Nodes {
		existing, ok := r.Nodes[key]
		if !ok {
			cp := *n
			r.Nodes[key] = &cp
			continue
		}
		if n.Tombstone {
			existing.Tombstone = true
		}
	}
}

// Values returns the live (non-tombstoned) sequence in document order.
func (r *RGA) Values() []string {
	children := make(map[string][]*RGANode) // predecessor key ("" = head) -> children
	for _, n := range r.Nodes {
		key := ""
		if n.Predecessor != nil {
			key = rgaID(*n.Predecessor)
		}
		children[key] = append(children[key], n)
	}
	for key := range children {
		nodes := children[key]
		sort.Slice(nodes, func(i, j int) bool {
			return nodes[j].ID.Less(nodes[i].ID) // descending
		})
		children[key] = nodes
	}

	var out []string
	var visit func(predKey string)
	visit = func(predKey string) {
		for _, n := range children[predKey] {
			if !n.Tombstone {
				out = append(out, n.Value)
			}
			visit(rgaID(n.ID))
		}
	}
	visit("")
	return out
}

func (r *RGA) Clone() *RGA {
	out := NewRGA()
	for k, n := range r.Nodes {
		cp := *n
		out.Nodes[k] = &cp
	}
	return out
}
