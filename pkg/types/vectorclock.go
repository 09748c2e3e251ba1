package types

// VectorClock maps a NodeId to the number of events that replica has
// produced. Absent entries are implicitly zero.
type VectorClock map[NodeId]uint64

// NewVectorClock returns an empty clock.
func NewVectorClock() VectorClock {
	return make(VectorClock)
}

// Clone returns an independent copy.
func (vc VectorClock) Clone() VectorClock {
	out := make(VectorClock, len(vc))
	for k, v := range vc {
		out[k] = v
	}
	return out
}

// Increment bumps the counter for node by one and returns the receiver.
func (vc VectorClock) Increment(node NodeId) VectorClock {
	vc[node]++
	return vc
}

// Update merges other into vc by taking, for every node, the larger of the
// two counters. It mutates and returns the receiver.
func (vc VectorClock) Update(other VectorClock) VectorClock {
	for node, count := range other {
		if count > vc[node] {
			vc[node] = count
		}
	}
	return vc
}

// LessOrEqual reports whether vc[n] <= other[n] for every node n (vc <= other).
func (vc VectorClock) LessOrEqual(other VectorClock) bool {
	for node, count := range vc {
		if count > other[node] {
			return false
		}
	}
	return true
}

// Dominates reports whether vc > other: vc <= other does not hold in
// reverse, i.e. other happens-before vc (other <= vc and other != vc).
func (vc VectorClock) Dominates(other VectorClock) bool {
	return other.LessOrEqual(vc) && !vc.Equal(other)
}

// HappensBefore reports whether vc causally precedes other: vc <= other
// and vc != other.
func (vc VectorClock) HappensBefore(other VectorClock) bool {
	return vc.LessOrEqual(other) && !vc.Equal(other)
}

// Concurrent reports whether neither clock is <= the other. Equal clocks
// are not concurrent.
func (vc VectorClock) Concurrent(other VectorClock) bool {
	return !vc.LessOrEqual(other) && !other.LessOrEqual(vc)
}

// Equal reports whether vc and other carry identical (node, count) pairs,
// ignoring explicit zero entries.
func (vc VectorClock) Equal(other VectorClock) bool {
	for node, count := range vc {
		if count != 0 && other[node] != count {
			return false
		}
	}
	for node, count := range other {
		if count != 0 && vc[node] != count {
			return false
		}
	}
	return true
}
