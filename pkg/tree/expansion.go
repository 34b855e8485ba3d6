package tree

import (
	"sort"
	"sync"

	"github.com/kraitsura/refnet/pkg/model"
)

// ExpansionSet holds the ids of nodes whose children should be materialized.
// It survives rebuilds and is only changed through the Session state machine.
type ExpansionSet struct {
	mu  sync.RWMutex
	ids map[model.NodeID]struct{}
}

// NewExpansionSet creates a set seeded with the given ids.
func NewExpansionSet(seed ...model.NodeID) *ExpansionSet {
	s := &ExpansionSet{ids: make(map[model.NodeID]struct{}, len(seed))}
	for _, id := range seed {
		s.ids[id] = struct{}{}
	}
	return s
}

// Add marks id as expanded.
func (s *ExpansionSet) Add(id model.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

// Remove marks id as collapsed.
func (s *ExpansionSet) Remove(id model.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

// Has reports whether id is expanded.
func (s *ExpansionSet) Has(id model.NodeID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Toggle flips membership and returns the new state.
func (s *ExpansionSet) Toggle(id model.NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Clear removes every member.
func (s *ExpansionSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[model.NodeID]struct{})
}

// Len returns the number of members.
func (s *ExpansionSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// AddAll adds every node of m matching pred and returns how many were new.
// Only already-materialized nodes are considered.
func (s *ExpansionSet) AddAll(m Mapping, pred func(*model.TreeNode) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for id, node := range m {
		if !pred(node) {
			continue
		}
		if _, ok := s.ids[id]; !ok {
			s.ids[id] = struct{}{}
			added++
		}
	}
	return added
}

// IDs returns the members in ascending order.
func (s *ExpansionSet) IDs() []model.NodeID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]model.NodeID, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
