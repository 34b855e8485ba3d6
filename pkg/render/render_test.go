package render

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kraitsura/refnet/pkg/model"
	"github.com/kraitsura/refnet/pkg/tree"
)

type staticDirects map[model.NodeID]model.DirectLinks

var errLookup = errors.New("execution reverted")

func (s staticDirects) GetDirects(_ context.Context, id model.NodeID) (model.DirectLinks, error) {
	if id == 5 {
		return model.DirectLinks{}, errLookup
	}
	return s[id], nil
}

// sampleMapping: 1 -> (2, 3), 2 -> (4, 5), 3 -> (6, -); 2 expanded, 5 fails.
func sampleMapping(t *testing.T) tree.Mapping {
	t.Helper()
	src := staticDirects{
		1: {LeftID: 2, RightID: 3},
		2: {LeftID: 4, RightID: 5},
		3: {LeftID: 6},
	}
	b := tree.NewBuilder(tree.NewDirectsCache(src), tree.NewExpansionSet(1, 2), tree.BuildOptions{
		Budget: 50,
		Layout: tree.WideProfile.Layout,
	})
	res, err := b.Build(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	return res.Mapping
}

func TestNormalize(t *testing.T) {
	m := sampleMapping(t)
	scene := Normalize(m, 1)

	if len(scene.Nodes) != 5 {
		t.Fatalf("scene has %d nodes, want 5", len(scene.Nodes))
	}
	if len(scene.Edges) != 4 {
		t.Errorf("scene has %d edges, want 4", len(scene.Edges))
	}

	// Spans 2*1280 wide: 4 at -1920, 3 at +1280.
	wantWidth := (1280.0 + 1920.0) + CanvasPadding
	if scene.Width != wantWidth {
		t.Errorf("Width = %v, want %v", scene.Width, wantWidth)
	}

	root := scene.Nodes[0]
	if root.Node.ID != 1 || root.Y != TopMargin {
		t.Errorf("root placed at %+v, want y=%d", root, TopMargin)
	}
	for _, p := range scene.Nodes {
		if p.X < CanvasPadding/2-1 || p.X > scene.Width-CanvasPadding/2+1 {
			t.Errorf("node %d x=%v outside padded canvas", p.Node.ID, p.X)
		}
	}
	for _, e := range scene.Edges {
		if e.Y2-e.Y1 != tree.WideLevelHeight-NodeHeight {
			t.Errorf("edge %d->%d spans %v, want %v", e.Parent, e.Child, e.Y2-e.Y1, tree.WideLevelHeight-NodeHeight)
		}
	}
}

func TestNormalize_MinimumWidth(t *testing.T) {
	m := tree.Mapping{1: {ID: 1, Branch: model.BranchRoot}}
	scene := Normalize(m, 1)
	if scene.Width != MinCanvasWidth {
		t.Errorf("Width = %v, want %v", scene.Width, MinCanvasWidth)
	}
	if scene.Nodes[0].X != MinCanvasWidth/2 {
		t.Errorf("single node x = %v, want centered", scene.Nodes[0].X)
	}

	empty := Normalize(nil, 0)
	if !empty.Empty() || empty.Width != MinCanvasWidth {
		t.Errorf("empty scene = %+v", empty)
	}
}

func TestBadgesAndSummary(t *testing.T) {
	m := sampleMapping(t)

	cases := []struct {
		id      model.NodeID
		badges  string
		summary string
	}{
		{1, "you −", ""},
		{2, "−", ""},
		{3, "+", "6 / --"},
		{4, "", ""},
		{5, "!", ""},
	}
	for _, tc := range cases {
		n := m[tc.id]
		if got := strings.Join(Badges(n, 1), " "); got != tc.badges {
			t.Errorf("Badges(%d) = %q, want %q", tc.id, got, tc.badges)
		}
		if got := ChildrenSummary(n); got != tc.summary {
			t.Errorf("ChildrenSummary(%d) = %q, want %q", tc.id, got, tc.summary)
		}
	}
}

func TestSVGRenderer_ClickableNodes(t *testing.T) {
	m := sampleMapping(t)
	var buf bytes.Buffer
	r := SVGRenderer{
		Title:     "Network of 1",
		ToggleURL: func(id model.NodeID) string { return "/toggle/" + id.String() },
	}
	if err := r.Render(&buf, m, 1); err != nil {
		t.Fatalf("Render error: %v", err)
	}
	out := buf.String()

	for _, want := range []string{"<svg", "Network of 1", `/toggle/2`, `/toggle/3`, "node-5", "Users: 5"} {
		if !strings.Contains(out, want) {
			t.Errorf("svg output missing %q", want)
		}
	}
	// Leaves and failed nodes are not links.
	for _, unwanted := range []string{"/toggle/4", "/toggle/5"} {
		if strings.Contains(out, unwanted) {
			t.Errorf("svg output should not contain %q", unwanted)
		}
	}
}

func TestPNGRenderer(t *testing.T) {
	var buf bytes.Buffer
	if err := (PNGRenderer{}).Render(&buf, sampleMapping(t), 1); err != nil {
		t.Fatalf("Render error: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 3400 {
		t.Errorf("width = %d, want 3400", img.Bounds().Dx())
	}
}

func TestTextRenderer(t *testing.T) {
	var buf bytes.Buffer
	if err := (TextRenderer{}).Render(&buf, sampleMapping(t), 1); err != nil {
		t.Fatalf("Render error: %v", err)
	}
	want := strings.Join([]string{
		"1 [you −]",
		"├── L 2 [−]",
		"│   ├── L 4",
		"│   └── R 5 [!]",
		"└── R 3 [+] (6 / --)",
		"",
		"users: 5  depth: 3  failed: 1",
		"",
	}, "\n")
	if got := buf.String(); got != want {
		t.Errorf("outline mismatch:\n got:\n%s\nwant:\n%s", got, want)
	}
}

func TestSaveSnapshot(t *testing.T) {
	m := sampleMapping(t)
	tmp := t.TempDir()

	for _, name := range []string{"tree.svg", "tree.png", "tree.txt"} {
		t.Run(name, func(t *testing.T) {
			out := filepath.Join(tmp, "nested", name)
			if err := SaveSnapshot(SnapshotOptions{Path: out, Mapping: m, FocusID: 1}); err != nil {
				t.Fatalf("SaveSnapshot error: %v", err)
			}
			info, err := os.Stat(out)
			if err != nil {
				t.Fatalf("output not created: %v", err)
			}
			if info.Size() == 0 {
				t.Fatal("output file is empty")
			}
		})
	}
}

func TestSaveSnapshot_InvalidFormat(t *testing.T) {
	err := SaveSnapshot(SnapshotOptions{
		Path:    filepath.Join(t.TempDir(), "tree.gif"),
		Mapping: tree.Mapping{},
	})
	if err == nil {
		t.Fatal("expected error for invalid format")
	}
	if err := SaveSnapshot(SnapshotOptions{}); err == nil {
		t.Fatal("expected error for missing path")
	}
}
