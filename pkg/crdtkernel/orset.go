package crdtkernel

import "github.com/prism-io/prism/pkg/types"

// ORSet (observed-remove set) tags every add with a unique token; a remove
// only cancels the tags it has actually observed. A concurrent add and
// remove of the same element therefore resolves as add-wins: the
// concurrent add's tag was never observed by the remove, so it survives.
type ORSet struct {
	AddTags     map[string]map[string]struct{} `json:"add_tags"`     // element -> tags
	RemovedTags map[string]map[string]struct{} `json:"removed_tags"` // element -> tags
}

func NewORSet() *ORSet {
	return &ORSet{
		AddTags:     make(map[string]map[string]struct{}),
		RemovedTags: make(map[string]map[string]struct{}),
	}
}

func (s *ORSet) Kind() types.CRDTKind { return types.CRDTKindORSet }

// Add tags element with a fresh, caller-supplied unique token (NodeId plus
// a local counter is the usual choice).
func (s *ORSet) Add(element, tag string) {
	if s.AddTags[element] == nil {
		s.AddTags[element] = make(map[string]struct{})
	}
	s.AddTags[element][tag] = struct{}{}
}

// Remove cancels every add-tag this replica currently observes for
// element. Any add-tag arriving later via merge was concurrent with this
// remove and is not cancelled.
func (s *ORSet) Remove(element string) {
	tags, ok := s.AddTags[element]
	if !ok {
		return
	}
	if s.RemovedTags[element] == nil {
		s.RemovedTags[element] = make(map[string]struct{})
	}
	for tag := range tags {
		s.RemovedTags[element][tag] = struct{}{}
	}
}

func (s *ORSet) Contains(element string) bool {
	add := s.AddTags[element]
	removed := s.RemovedTags[element]
	for tag := range add {
		if _, isRemoved := removed[tag]; !isRemoved {
			return true
		}
	}
	return false
}

func (s *ORSet) Members() []string {
	var out []string
	for element := range s.AddTags {
		if s.Contains(element) {
			out = append(out, element)
		}
	}
	return out
}

func (s *ORSet) Merge(other *ORSet) {
	for element, tags := range other.AddTags {
		if s.AddTags[element] == nil {
			s.AddTags[element] = make(map[string]struct{})
		}
		for tag := range tags {
			s.AddTags[element][tag] = struct{}{}
		}
	}
	for element, tags := range other.RemovedTags {
		if s.RemovedTags[element] == nil {
			s.RemovedTags[element] = make(map[string]struct{})
		}
		for tag := range tags {
			s.RemovedTags[element][tag] = struct{}{}
		}
	}
}

func (s *ORSet) Clone() *ORSet {
	out := NewORSet()
	for element, tags := range s.AddTags {
		out.AddTags[element] = make(map[string]struct{}, len(tags))
		for tag := range tags {
			out.AddTags[element][tag] = struct{}{}
		}
	}
	for element, tags := range s.RemovedTags {
		out.RemovedTags[element] = make(map[string]struct{}, len(tags))
		for tag := range tags {
			out.RemovedTags[element][tag] = struct{}{}
		}
	}
	return out
}
