package loader

import (
	"fmt"
	"sort"

	"github.com/kraitsura/refnet/pkg/model"
)

// Edge is a parent -> child link found in the fixture.
type Edge struct {
	Parent model.NodeID
	Child  model.NodeID
	Branch model.Branch
}

// Report describes the shape of a fixture as seen from one root.
type Report struct {
	Root model.NodeID

	// Reachable lists every id reachable from Root, in breadth-first order.
	Reachable []model.NodeID
	Depth     int

	// Dangling are links to children that have no directs entry. The viewer
	// shows those children as leaves.
	Dangling []Edge

	// Converging are links to a child that was already reached through
	// another parent. The viewer keeps the first parent only.
	Converging []Edge

	// Unreachable are directs entries that cannot be reached from Root.
	Unreachable []model.NodeID

	// Failing are reachable ids configured to fail their lookup.
	Failing []model.NodeID
}

// OK reports whether the fixture is a proper tree from Root.
func (r *Report) OK() bool {
	return len(r.Converging) == 0 && len(r.Unreachable) == 0
}

// AnalyzeFixture walks the fixture breadth-first from root following every
// link, regardless of expansion, and reports structural problems.
func AnalyzeFixture(root model.NodeID, f *Fixture) (*Report, error) {
	if root.IsZero() {
		return nil, fmt.Errorf("root id cannot be zero")
	}
	if _, ok := f.Directs[root]; !ok {
		return nil, fmt.Errorf("root %d has no directs entry", root)
	}

	r := &Report{Root: root}
	seen := map[model.NodeID]bool{root: true}
	level := map[model.NodeID]int{root: 0}

	queue := []model.NodeID{root}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		r.Reachable = append(r.Reachable, current)
		r.Depth = max(r.Depth, level[current]+1)
		if f.Failing[current] {
			r.Failing = append(r.Failing, current)
		}

		links := f.Directs[current]
		for _, e := range []Edge{
			{Parent: current, Child: links.LeftID, Branch: model.BranchLeft},
			{Parent: current, Child: links.RightID, Branch: model.BranchRight},
		} {
			if e.Child.IsZero() {
				continue
			}
			if seen[e.Child] {
				r.Converging = append(r.Converging, e)
				continue
			}
			seen[e.Child] = true
			level[e.Child] = level[current] + 1
			if _, ok := f.Directs[e.Child]; !ok {
				r.Dangling = append(r.Dangling, e)
			}
			queue = append(queue, e.Child)
		}
	}

	for id := range f.Directs {
		if !seen[id] {
			r.Unreachable = append(r.Unreachable, id)
		}
	}
	sort.Slice(r.Unreachable, func(i, j int) bool { return r.Unreachable[i] < r.Unreachable[j] })

	return r, nil
}
