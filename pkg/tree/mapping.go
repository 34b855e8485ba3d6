package tree

import (
	"fmt"
	"sort"

	"github.com/kraitsura/refnet/pkg/model"
)

// Mapping is the output of one build: node id -> materialized node.
type Mapping map[model.NodeID]*model.TreeNode

// MappingStats summarizes a mapping for the stats bar.
type MappingStats struct {
	Users     int `json:"users"` // nodes in the mapping
	Depth     int `json:"depth"` // distinct levels
	Failed    int `json:"failed"`
	Expanded  int `json:"expanded"`
	Collapsed int `json:"collapsed"`
	Leaves    int `json:"leaves"`
}

// Stats counts nodes per derived state.
func (m Mapping) Stats() MappingStats {
	levels := make(map[int]bool)
	var s MappingStats
	for _, n := range m {
		s.Users++
		levels[n.Level] = true
		switch n.State() {
		case model.StateFailed:
			s.Failed++
		case model.StateExpanded:
			s.Expanded++
		case model.StateCollapsed:
			s.Collapsed++
		case model.StateLeaf:
			s.Leaves++
		}
	}
	s.Depth = len(levels)
	return s
}

// Root returns the traversal root, or nil for an empty mapping.
func (m Mapping) Root() *model.TreeNode {
	for _, n := range m {
		if n.Branch == model.BranchRoot {
			return n
		}
	}
	return nil
}

// Children returns the materialized children of id, left before right.
// Only children whose parent link points back at id count, so a node reached
// first through another parent is not listed twice.
func (m Mapping) Children(id model.NodeID) []*model.TreeNode {
	parent, ok := m[id]
	if !ok {
		return nil
	}
	var out []*model.TreeNode
	for _, childID := range []model.NodeID{parent.Links.LeftID, parent.Links.RightID} {
		if childID.IsZero() {
			continue
		}
		if child, ok := m[childID]; ok && child.ParentID == id {
			out = append(out, child)
		}
	}
	return out
}

// BuildChildrenMap creates a parent -> children index from the ParentID fields.
func (m Mapping) BuildChildrenMap() map[model.NodeID][]model.NodeID {
	children := make(map[model.NodeID][]model.NodeID)
	for _, n := range m {
		if n.ParentID.IsZero() {
			continue
		}
		children[n.ParentID] = append(children[n.ParentID], n.ID)
	}
	for parent, ids := range children {
		sort.Slice(ids, func(i, j int) bool {
			return m[ids[i]].Position.X < m[ids[j]].Position.X
		})
		children[parent] = ids
	}
	return children
}

// LevelOrder returns the nodes sorted by level, then left-to-right position,
// then id for a stable order.
func (m Mapping) LevelOrder() []*model.TreeNode {
	nodes := make([]*model.TreeNode, 0, len(m))
	for _, n := range m {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Level != nodes[j].Level {
			return nodes[i].Level < nodes[j].Level
		}
		if nodes[i].Position.X != nodes[j].Position.X {
			return nodes[i].Position.X < nodes[j].Position.X
		}
		return nodes[i].ID < nodes[j].ID
	})
	return nodes
}

// OutlineItem is one row of a depth-first outline.
type OutlineItem struct {
	Node   *model.TreeNode
	Depth  int
	IsLast bool // last child of its parent
}

// Outline flattens the mapping depth-first (root, left subtree, right subtree).
func (m Mapping) Outline() []OutlineItem {
	root := m.Root()
	if root == nil {
		return nil
	}
	var out []OutlineItem
	var walk func(n *model.TreeNode, depth int, last bool)
	walk = func(n *model.TreeNode, depth int, last bool) {
		out = append(out, OutlineItem{Node: n, Depth: depth, IsLast: last})
		kids := m.Children(n.ID)
		for i, c := range kids {
			walk(c, depth+1, i == len(kids)-1)
		}
	}
	walk(root, 0, true)
	return out
}

// Validate checks the structural invariants of a build: exactly one root,
// every non-root node has a materialized parent one level up, and collapsed
// or failed nodes have no materialized children.
func (m Mapping) Validate() error {
	if len(m) == 0 {
		return nil
	}
	roots := 0
	for id, n := range m {
		if id != n.ID {
			return fmt.Errorf("mapping key %d holds node %d", id, n.ID)
		}
		if err := n.Validate(); err != nil {
			return err
		}
		if n.Branch == model.BranchRoot {
			roots++
			if n.Level != 0 {
				return fmt.Errorf("root %d at level %d", n.ID, n.Level)
			}
			continue
		}
		parent, ok := m[n.ParentID]
		if !ok {
			return fmt.Errorf("node %d: parent %d not materialized", n.ID, n.ParentID)
		}
		if n.Level != parent.Level+1 {
			return fmt.Errorf("node %d: level %d, parent %d at level %d", n.ID, n.Level, parent.ID, parent.Level)
		}
		if !parent.Expanded || parent.FetchFailed {
			return fmt.Errorf("node %d: parent %d is not expanded", n.ID, parent.ID)
		}
	}
	if roots != 1 {
		return fmt.Errorf("mapping has %d roots, want 1", roots)
	}
	return nil
}
