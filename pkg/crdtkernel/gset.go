package crdtkernel

import "github.com/prism-io/prism/pkg/types"

// GSet is a grow-only set: merge is union, elements are never removed.
type GSet struct {
	Elements map[string]struct{} `json:"elements"`
}

func NewGSet() *GSet {
	return &GSet{Elements: make(map[string]struct{})}
}

func (s *GSet) Kind() types.CRDTKind { return types.CRDTKindGSet }

func (s *GSet) Add(v string) {
	s.Elements[v] = struct{}{}
}

func (s *GSet) Contains(v string) bool {
	_, ok := s.Elements[v]
	return ok
}

func (s *GSet) Members() []string {
	out := make([]string, 0, len(s.Elements))
	for v := range s.Elements {
		out = append(out, v)
	}
	return out
}

func (s *GSet) Merge(other *GSet) {
	for v := range other.Elements {
		s.Elements[v] = struct{}{}
	}
}

func (s *GSet) Clone() *GSet {
	out := NewGSet()
	for v := range s.Elements {
		out.Elements[v] = struct{}{}
	}
	return out
}
