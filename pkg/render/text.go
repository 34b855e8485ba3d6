package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/xlab/treeprint"

	"github.com/kraitsura/refnet/pkg/model"
	"github.com/kraitsura/refnet/pkg/tree"
)

// TextRenderer prints the tree as an indented outline, left subtree first.
//
//	1 [you −]
//	├── L 2 [+] (4 / 5)
//	└── R 3 [!]
type TextRenderer struct{}

// Render implements Renderer.
func (TextRenderer) Render(w io.Writer, m tree.Mapping, focus model.NodeID) error {
	bw := bufio.NewWriter(w)
	root := m.Root()
	if root == nil {
		fmt.Fprintln(bw, "(empty tree)")
		return bw.Flush()
	}

	out := treeprint.NewWithRoot(OutlineLabel(root, focus))
	var add func(branch treeprint.Tree, id model.NodeID)
	add = func(branch treeprint.Tree, id model.NodeID) {
		for _, child := range m.Children(id) {
			label := OutlineLabel(child, focus)
			if len(m.Children(child.ID)) == 0 {
				branch.AddNode(label)
				continue
			}
			add(branch.AddBranch(label), child.ID)
		}
	}
	add(out, root.ID)
	bw.WriteString(out.String())

	s := m.Stats()
	fmt.Fprintf(bw, "\nusers: %d  depth: %d  failed: %d\n", s.Users, s.Depth, s.Failed)
	return bw.Flush()
}

// OutlineLabel is the one-line description of a node used by text outputs.
func OutlineLabel(n *model.TreeNode, focus model.NodeID) string {
	var b strings.Builder
	switch n.Branch {
	case model.BranchLeft:
		b.WriteString("L ")
	case model.BranchRight:
		b.WriteString("R ")
	}
	b.WriteString(n.ID.String())
	if badges := Badges(n, focus); len(badges) > 0 {
		b.WriteString(" [" + strings.Join(badges, " ") + "]")
	}
	if summary := ChildrenSummary(n); summary != "" {
		b.WriteString(" (" + summary + ")")
	}
	return b.String()
}
