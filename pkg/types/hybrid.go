package types

import "time"

// HybridTimestamp combines a physical wall-clock reading with a logical
// counter and the producing NodeId, giving every event a total order even
// across replicas with skewed clocks. Tie-break order is (Physical,
// Logical, NodeId) ascending = earlier; LWW registers keep the greater
// tuple, and ties on (Physical, Logical) are broken by the greater NodeId
// so the result is deterministic across replicas.
type HybridTimestamp struct {
	Physical time.Time `json:"physical"`
	Logical  uint64    `json:"logical"`
	Node     NodeId    `json:"node"`
}

// Less reports whether h sorts strictly before other under the
// (Physical, Logical, NodeId) tuple order.
func (h HybridTimestamp) Less(other HybridTimestamp) bool {
	if !h.Physical.Equal(other.Physical) {
		return h.Physical.Before(other.Physical)
	}
	if h.Logical != other.Logical {
		return h.Logical < other.Logical
	}
	return h.Node.Less(other.Node)
}

// Tick produces the next local HybridTimestamp for a new event on this
// replica, given the current wall-clock reading.
func (h HybridTimestamp) Tick(now time.Time) HybridTimestamp {
	newPhysical := h.Physical
	if now.After(newPhysical) {
		newPhysical = now
	}

	var logical uint64
	if newPhysical.After(h.Physical) {
		logical = 0
	} else {
		logical = h.Logical + 1
	}

	return HybridTimestamp{Physical: newPhysical, Logical: logical, Node: h.Node}
}

// Update merges a remote HybridTimestamp into h on message receipt,
// following the standard hybrid logical clock merge rule: physical time
// is the max of both sides and the local wall clock; the logical counter
// resets to zero if physical time strictly advanced past both inputs,
// otherwise increments the logical counter of whichever side supplied the
// winning physical time (or the max of both, if they tied).
func (h HybridTimestamp) Update(remote HybridTimestamp, now time.Time) HybridTimestamp {
	newPhysical := h.Physical
	if remote.Physical.After(newPhysical) {
		newPhysical = remote.Physical
	}
	if now.After(newPhysical) {
		newPhysical = now
	}

	selfTied := newPhysical.Equal(h.Physical)
	remoteTied := newPhysical.Equal(remote.Physical)

	var logical uint64
	switch {
	case selfTied && remoteTied:
		logical = h.Logical
		if remote.Logical > logical {
			logical = remote.Logical
		}
		logical++
	case selfTied:
		logical = h.Logical + 1
	case remoteTied:
		logical = remote.Logical + 1
	default:
		logical = 0
	}

	return HybridTimestamp{Physical: newPhysical, Logical: logical, Node: h.Node}
}
