// Package render draws a built tree. Renderers only consume a tree.Mapping;
// node positions come from the layout and are translated onto a canvas here.
package render

import (
	"io"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/kraitsura/refnet/pkg/model"
	"github.com/kraitsura/refnet/pkg/tree"
)

// Canvas geometry in pixels.
const (
	MinCanvasWidth = 800
	CanvasPadding  = 200 // added to the horizontal span
	TopMargin      = 50
	NodeWidth      = 110
	NodeHeight     = 70
	nodeHalfHeight = NodeHeight / 2
)

// Renderer writes a mapping in some output format. focus marks the user the
// tree was built for.
type Renderer interface {
	Render(w io.Writer, m tree.Mapping, focus model.NodeID) error
}

// PlacedNode is a node with its canvas coordinates (box center).
type PlacedNode struct {
	Node *model.TreeNode
	X, Y float64
}

// Edge connects the bottom of a parent box to the top of a child box.
type Edge struct {
	Parent, Child  model.NodeID
	X1, Y1, X2, Y2 float64
}

// Scene is a mapping translated onto a canvas.
type Scene struct {
	Width, Height float64
	FocusID       model.NodeID
	Nodes         []PlacedNode // level order
	Edges         []Edge
	Stats         tree.MappingStats
}

// Empty reports whether there is nothing to draw.
func (s *Scene) Empty() bool {
	return len(s.Nodes) == 0
}

// Normalize centers the tree horizontally and shifts it down so the topmost
// node sits TopMargin below the edge. The canvas is at least MinCanvasWidth
// wide.
func Normalize(m tree.Mapping, focus model.NodeID) *Scene {
	s := &Scene{FocusID: focus, Stats: m.Stats()}
	nodes := m.LevelOrder()
	if len(nodes) == 0 {
		s.Width = MinCanvasWidth
		s.Height = 2 * TopMargin
		return s
	}

	xs := make([]float64, len(nodes))
	ys := make([]float64, len(nodes))
	for i, n := range nodes {
		xs[i] = n.Position.X
		ys[i] = n.Position.Y
	}
	minX, maxX := floats.Min(xs), floats.Max(xs)
	minY, maxY := floats.Min(ys), floats.Max(ys)

	centerX := (minX + maxX) / 2
	offsetY := math.Abs(minY) + TopMargin
	s.Width = math.Max(MinCanvasWidth, (maxX-minX)+CanvasPadding)
	s.Height = maxY + offsetY + nodeHalfHeight + TopMargin

	place := func(p model.Position) (float64, float64) {
		return p.X - centerX + s.Width/2, p.Y + offsetY
	}

	s.Nodes = make([]PlacedNode, 0, len(nodes))
	for _, n := range nodes {
		x, y := place(n.Position)
		s.Nodes = append(s.Nodes, PlacedNode{Node: n, X: x, Y: y})

		parent, ok := m[n.ParentID]
		if n.ParentID.IsZero() || !ok {
			continue
		}
		px, py := place(parent.Position)
		s.Edges = append(s.Edges, Edge{
			Parent: parent.ID,
			Child:  n.ID,
			X1:     px,
			Y1:     py + nodeHalfHeight,
			X2:     x,
			Y2:     y - nodeHalfHeight,
		})
	}
	return s
}

// Badges returns the markers shown on a node, in display order.
func Badges(n *model.TreeNode, focus model.NodeID) []string {
	var out []string
	if n.ID == focus {
		out = append(out, "you")
	}
	if b := n.State().Badge(); b != "" {
		out = append(out, b)
	}
	return out
}

// ChildrenSummary is the "left / right" hint on collapsed nodes, "" otherwise.
func ChildrenSummary(n *model.TreeNode) string {
	if n.State() != model.StateCollapsed {
		return ""
	}
	return slot(n.Links.LeftID) + " / " + slot(n.Links.RightID)
}

func slot(id model.NodeID) string {
	if id.IsZero() {
		return "--"
	}
	return id.String()
}
