package crdtkernel

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prism-io/prism/pkg/prismerr"
	"github.com/prism-io/prism/pkg/types"
	"lukechampine.com/blake3"
)

// Container wraps exactly one CRDT kind plus the metadata every kernel
// slot tracks. This is the closed sum type the kernel registry stores:
// Kind names which single pointer field is populated, and every dispatch
// site switches over Kind exhaustively rather than type-asserting an
// interface{} or consulting a reflection-based registry.
type Container struct {
	Kind types.CRDTKind `json:"kind"`

	GCounter    *GCounter    `json:"g_counter,omitempty"`
	PNCounter   *PNCounter   `json:"pn_counter,omitempty"`
	GSet        *GSet        `json:"g_set,omitempty"`
	TwoPhaseSet *TwoPhaseSet `json:"two_phase_set,omitempty"`
	LWWRegister *LWWRegister `json:"lww_register,omitempty"`
	MVRegister  *MVRegister  `json:"mv_register,omitempty"`
	ORSet       *ORSet       `json:"or_set,omitempty"`
	RGA         *RGA         `json:"rga,omitempty"`

	CreatedAt      time.Time         `json:"created_at"`
	ModifiedAt     time.Time         `json:"modified_at"`
	LastModifier   types.NodeId      `json:"last_modifier"`
	VersionVector  types.VectorClock `json:"version_vector"`
	ContentHash    string            `json:"content_hash"`
	SizeBytes      int64             `json:"size_bytes"`
	OperationCount uint64            `json:"operation_count"`
}

// NewContainer allocates an empty container of the given kind.
func NewContainer(kind types.CRDTKind) (*Container, error) {
	c := &Container{Kind: kind, VersionVector: types.NewVectorClock(), CreatedAt: time.Now()}
	switch kind {
	case types.CRDTKindGCounter:
		c.GCounter = NewGCounter()
	case types.CRDTKindPNCounter:
		c.PNCounter = NewPNCounter()
	case types.CRDTKindGSet:
		c.GSet = NewGSet()
	case types.CRDTKindTwoPhaseSet:
		c.TwoPhaseSet = NewTwoPhaseSet()
	case types.CRDTKindLWWRegister:
		c.LWWRegister = NewLWWRegister()
	case types.CRDTKindMVRegister:
		c.MVRegister = NewMVRegister()
	case types.CRDTKindORSet:
		c.ORSet = NewORSet()
	case types.CRDTKindRGA:
		c.RGA = NewRGA()
	default:
		return nil, prismerr.New(prismerr.KindPrecondition, "unknown_crdt_kind", fmt.Sprintf("no such CRDT kind %q", kind))
	}
	return c, nil
}

// Merge folds other into c in place. Both containers must carry the same
// Kind; every kind's Merge is idempotent, commutative, and associative, so
// the container-level merge inherits those properties.
func (c *Container) Merge(other *Container) error {
	if c.Kind != other.Kind {
		return prismerr.New(prismerr.KindConsistency, "kind_mismatch",
			fmt.Sprintf("cannot merge %s into %s", other.Kind, c.Kind))
	}

	switch c.Kind {
	case types.CRDTKindGCounter:
		c.GCounter.Merge(other.GCounter)
	case types.CRDTKindPNCounter:
		c.PNCounter.Merge(other.PNCounter)
	case types.CRDTKindGSet:
		c.GSet.Merge(other.GSet)
	case types.CRDTKindTwoPhaseSet:
		c.TwoPhaseSet.Merge(other.TwoPhaseSet)
	case types.CRDTKindLWWRegister:
		c.LWWRegister.Merge(other.LWWRegister)
	case types.CRDTKindMVRegister:
		c.MVRegister.Merge(other.MVRegister)
	case types.CRDTKindORSet:
		c.ORSet.Merge(other.ORSet)
	case types.CRDTKindRGA:
		c.RGA.Merge(other.RGA)
	default:
		return prismerr.New(prismerr.KindFatal, "invariant_violation", fmt.Sprintf("unhandled CRDT kind %q in merge", c.Kind))
	}

	c.VersionVector.Update(other.VersionVector)
	c.ModifiedAt = time.Now()
	c.OperationCount++
	c.recomputeHash()
	return nil
}

// touch records a local mutation: bumps the version vector for node,
// updates timestamps/counters, and recomputes the content hash.
func (c *Container) touch(node types.NodeId) {
	c.VersionVector.Increment(node)
	c.LastModifier = node
	c.ModifiedAt = time.Now()
	c.OperationCount++
	c.recomputeHash()
}

func (c *Container) recomputeHash() {
	data, err := json.Marshal(c.payload())
	if err != nil {
		return
	}
	c.SizeBytes = int64(len(data))
	sum := blake3.Sum256(data)
	c.ContentHash = hex.EncodeToString(sum[:])
}

// payload returns just the kind-specific state, excluding metadata, so the
// content hash reflects data equality rather than bookkeeping fields.
func (c *Container) payload() any {
	switch c.Kind {
	case types.CRDTKindGCounter:
		return c.GCounter
	case types.CRDTKindPNCounter:
		return c.PNCounter
	case types.CRDTKindGSet:
		return c.GSet
	case types.CRDTKindTwoPhaseSet:
		return c.TwoPhaseSet
	case types.CRDTKindLWWRegister:
		return c.LWWRegister
	case types.CRDTKindMVRegister:
		return c.MVRegister
	case types.CRDTKindORSet:
		return c.ORSet
	case types.CRDTKindRGA:
		return c.RGA
	default:
		return nil
	}
}

// Snapshot serializes the container to bytes; byte-stable for equal state
// since Go's encoding/json writes map keys in sorted order, and our maps
// use string/NodeId keys that marshal deterministically.
func (c *Container) Snapshot() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, prismerr.Wrap(prismerr.KindFatal, "snapshot_encode_failed", "encode CRDT container snapshot", err)
	}
	return data, nil
}

// LoadSnapshot restores a container from bytes produced by Snapshot,
// verifying the restored content hash recomputes to the same value
// recorded at serialization time.
func LoadSnapshot(data []byte) (*Container, error) {
	var c Container
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, prismerr.Wrap(prismerr.KindConsistency, "snapshot_decode_failed", "decode CRDT container snapshot", err)
	}
	expected := c.ContentHash
	c.recomputeHash()
	if expected != "" && expected != c.ContentHash {
		return nil, prismerr.New(prismerr.KindConsistency, "hash_mismatch", "restored CRDT container content hash does not verify")
	}
	return &c, nil
}

func (c *Container) Clone() *Container {
	cp := *c
	cp.VersionVector = c.VersionVector.Clone()
	switch c.Kind {
	case types.CRDTKindGCounter:
		cp.GCounter = c.GCounter.Clone()
	case types.CRDTKindPNCounter:
		cp.PNCounter = c.PNCounter.Clone()
	case types.CRDTKindGSet:
		cp.GSet = c.GSet.Clone()
	case types.CRDTKindTwoPhaseSet:
		cp.TwoPhaseSet = c.TwoPhaseSet.Clone()
	case types.CRDTKindLWWRegister:
		cp.LWWRegister = c.LWWRegister.Clone()
	case types.CRDTKindMVRegister:
		cp.MVRegister = c.MVRegister.Clone()
	case types.CRDTKindORSet:
		cp.ORSet = c.ORSet.Clone()
	case types.CRDTKindRGA:
		cp.RGA = c.RGA.Clone()
	}
	return &cp
}
