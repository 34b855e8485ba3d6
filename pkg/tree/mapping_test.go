package tree

import (
	"context"
	"testing"

	"github.com/kraitsura/refnet/pkg/model"
)

func buildFor(t *testing.T, f *fakeContract, expanded ...model.NodeID) Mapping {
	t.Helper()
	b := newTestBuilder(f, NewExpansionSet(expanded...), BuildOptions{Budget: 100})
	res, err := b.Build(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	return res.Mapping
}

func TestMapping_Stats(t *testing.T) {
	f := fullTree(15)
	f.fail(3)
	m := buildFor(t, f, 1, 2)

	s := m.Stats()
	// 1 expanded, 2 expanded, 3 failed, 4 and 5 collapsed
	if s.Users != 5 {
		t.Errorf("Users = %d, want 5", s.Users)
	}
	if s.Depth != 3 {
		t.Errorf("Depth = %d, want 3", s.Depth)
	}
	if s.Expanded != 2 || s.Failed != 1 || s.Collapsed != 2 || s.Leaves != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestMapping_EmptyStats(t *testing.T) {
	var m Mapping
	if s := m.Stats(); s != (MappingStats{}) {
		t.Errorf("empty Stats() = %+v", s)
	}
	if m.Root() != nil {
		t.Error("empty mapping should have no root")
	}
	if m.Outline() != nil {
		t.Error("empty mapping should have no outline")
	}
	if err := m.Validate(); err != nil {
		t.Errorf("empty Validate: %v", err)
	}
}

func TestMapping_OutlineIsDepthFirstLeftFirst(t *testing.T) {
	m := buildFor(t, fullTree(7), 1, 2, 3)

	var got []model.NodeID
	for _, item := range m.Outline() {
		got = append(got, item.Node.ID)
	}
	want := []model.NodeID{1, 2, 4, 5, 3, 6, 7}
	if len(got) != len(want) {
		t.Fatalf("Outline() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Outline() = %v, want %v", got, want)
		}
	}

	items := m.Outline()
	if !items[3].IsLast || items[2].IsLast {
		t.Error("IsLast should mark the right child only")
	}
	if items[2].Depth != 2 {
		t.Errorf("depth of node 4 = %d, want 2", items[2].Depth)
	}
}

func TestMapping_ChildrenSkipsConvergingDuplicate(t *testing.T) {
	f := newFakeContract().link(1, 2, 3).link(2, 4, 0).link(3, 4, 0)
	m := buildFor(t, f, 1, 2, 3)

	if kids := m.Children(2); len(kids) != 1 || kids[0].ID != 4 {
		t.Errorf("Children(2) = %v", kids)
	}
	if kids := m.Children(3); len(kids) != 0 {
		t.Errorf("Children(3) = %d nodes, want 0 (4 belongs to 2)", len(kids))
	}
	if kids := m.Children(99); kids != nil {
		t.Errorf("Children(unknown) = %v", kids)
	}
}

func TestMapping_LevelOrderAndChildrenMap(t *testing.T) {
	m := buildFor(t, fullTree(7), 1, 2, 3)

	var order []model.NodeID
	for _, n := range m.LevelOrder() {
		order = append(order, n.ID)
	}
	want := []model.NodeID{1, 2, 3, 4, 5, 6, 7}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("LevelOrder() = %v, want %v", order, want)
		}
	}

	children := m.BuildChildrenMap()
	if got := children[3]; len(got) != 2 || got[0] != 6 || got[1] != 7 {
		t.Errorf("children[3] = %v, want [6 7]", got)
	}
	if _, ok := children[4]; ok {
		t.Error("leaf 4 should not appear as a parent")
	}
}

func TestMapping_ValidateCatchesBrokenInvariants(t *testing.T) {
	cases := []struct {
		name string
		m    Mapping
	}{
		{"missing parent", Mapping{
			1: {ID: 1, Branch: model.BranchRoot},
			3: {ID: 3, ParentID: 2, Branch: model.BranchLeft, Level: 1},
		}},
		{"wrong level", Mapping{
			1: {ID: 1, Branch: model.BranchRoot, Expanded: true, HasChildren: true, Links: model.DirectLinks{LeftID: 2}},
			2: {ID: 2, ParentID: 1, Branch: model.BranchLeft, Level: 2},
		}},
		{"collapsed parent", Mapping{
			1: {ID: 1, Branch: model.BranchRoot, HasChildren: true, Links: model.DirectLinks{LeftID: 2}},
			2: {ID: 2, ParentID: 1, Branch: model.BranchLeft, Level: 1},
		}},
		{"two roots", Mapping{
			1: {ID: 1, Branch: model.BranchRoot},
			2: {ID: 2, Branch: model.BranchRoot},
		}},
		{"key mismatch", Mapping{
			1: {ID: 7, Branch: model.BranchRoot},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.m.Validate(); err == nil {
				t.Error("expected Validate error")
			}
		})
	}
}
