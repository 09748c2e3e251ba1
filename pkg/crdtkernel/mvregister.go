package crdtkernel

import "github.com/prism-io/prism/pkg/types"

// MVElement is one surviving concurrent write in an MVRegister.
type MVElement struct {
	Value  string            `json:"value"`
	Clock  types.VectorClock `json:"clock"`
	Author types.NodeId      `json:"author"`
}

// MVRegister (multi-value register) keeps every write not causally
// dominated by another: concurrent writes are all retained for the
// application to resolve, while a write that causally supersedes all
// current values collapses the set to just itself.
type MVRegister struct {
	Elements []MVElement `json:"elements"`
}

func NewMVRegister() *MVRegister {
	return &MVRegister{}
}

func (r *MVRegister) Kind() types.CRDTKind { return types.CRDTKindMVRegister }

// Values returns the current set of concurrent values.
func (r *MVRegister) Values() []string {
	out := make([]string, len(r.Elements))
	for i, e := range r.Elements {
		out[i] = e.Value
	}
	return out
}

// Set writes a new value tagged with the given (already-incremented)
// vector clock, then prunes anything the new write causally dominates.
func (r *MVRegister) Set(value string, clock types.VectorClock, author types.NodeId) {
	r.Elements = append(r.Elements, MVElement{Value: value, Clock: clock.Clone(), Author: author})
	r.prune()
}

func (r *MVRegister) Merge(other *MVRegister) {
	r.Elements = append(r.Elements, other.Elements...)
	r.prune()
}

// prune drops any element causally dominated by another surviving
// element, leaving only the maximal antichain — the set of genuinely
// concurrent writes.
func (r *MVRegister) prune() {
	survivors := make([]MVElement, 0, len(r.Elements))
	for i, e := range r.Elements {
		dominated := false
		for j, f := range r.Elements {
			if i == j {
				continue
			}
			if f.Clock.Dominates(e.Clock) {
				dominated = true
				break
			}
			// Break exact duplicates (same clock, same author) down to one copy.
			if i < j && f.Clock.Equal(e.Clock) && f.Author == e.Author && f.Value == e.Value {
				dominated = true
				break
			}
		}
		if !dominated {
			survivors = append(survivors, e)
		}
	}
	r.Elements = survivors
}

func (r *MVRegister) Clone() *MVRegister {
	out := &MVRegister{Elements: make([]MVElement, len(r.Elements))}
	for i, e := range r.Elements {
		out.Elements[i] = MVElement{Value: e.Value, Clock: e.Clock.Clone(), Author: e.Author}
	}
	return out
}
