package render

import (
	"fmt"
	"io"
	"math"
	"strings"

	svg "github.com/ajstarks/svgo"

	"github.com/kraitsura/refnet/pkg/model"
	"github.com/kraitsura/refnet/pkg/tree"
)

// Node colors by state.
var stateFill = map[model.NodeState]string{
	model.StateExpanded:  "#10b981",
	model.StateCollapsed: "#3b82f6",
	model.StateLeaf:      "#64748b",
	model.StateFailed:    "#ef4444",
}

const (
	edgeColor   = "#3b82f6"
	focusStroke = "#f59e0b"
	background  = "#0f172a"
	textColor   = "#f8fafc"
)

// SVGRenderer draws the tree as a standalone SVG document. When ToggleURL is
// set, nodes with children are wrapped in links to ToggleURL(id).
type SVGRenderer struct {
	Title     string
	ToggleURL func(id model.NodeID) string
}

// Render implements Renderer.
func (r SVGRenderer) Render(w io.Writer, m tree.Mapping, focus model.NodeID) error {
	scene := Normalize(m, focus)
	canvas := svg.New(w)
	canvas.Start(px(scene.Width), px(scene.Height))
	if r.Title != "" {
		canvas.Title(r.Title)
	}
	canvas.Rect(0, 0, px(scene.Width), px(scene.Height), "fill:"+background)

	if scene.Empty() {
		canvas.Text(px(scene.Width/2), TopMargin, "No users found", "fill:"+textColor+";font-family:sans-serif;font-size:16px;text-anchor:middle")
		canvas.End()
		return nil
	}

	canvas.Text(12, 24, fmt.Sprintf("Users: %d  Depth: %d", scene.Stats.Users, scene.Stats.Depth),
		"fill:"+textColor+";font-family:sans-serif;font-size:14px")

	canvas.Gid("edges")
	for _, e := range scene.Edges {
		canvas.Line(px(e.X1), px(e.Y1), px(e.X2), px(e.Y2), "stroke:"+edgeColor+";stroke-width:3")
	}
	canvas.Gend()

	canvas.Gid("nodes")
	for _, p := range scene.Nodes {
		r.node(canvas, p, focus)
	}
	canvas.Gend()

	canvas.End()
	return nil
}

func (r SVGRenderer) node(canvas *svg.SVG, p PlacedNode, focus model.NodeID) {
	n := p.Node
	clickable := r.ToggleURL != nil && n.HasChildren
	if clickable {
		action := "expand"
		if n.Expanded {
			action = "collapse"
		}
		canvas.Link(r.ToggleURL(n.ID), fmt.Sprintf("%s %d", action, n.ID))
	}

	x := px(p.X - NodeWidth/2)
	y := px(p.Y - nodeHalfHeight)
	style := "fill:" + stateFill[n.State()]
	if n.ID == focus {
		style += ";stroke:" + focusStroke + ";stroke-width:4"
	}
	canvas.Gid(fmt.Sprintf("node-%d", n.ID))
	canvas.Roundrect(x, y, NodeWidth, NodeHeight, 10, 10, style)

	font := "fill:" + textColor + ";font-family:sans-serif;text-anchor:middle;"
	cx := px(p.X)
	canvas.Text(cx, y+18, n.ID.String(), font+"font-size:14px;font-weight:bold")
	canvas.Text(cx, y+34, "up: "+slot(n.ParentID), font+"font-size:11px")
	canvas.Text(cx, y+48, "L: "+slot(n.Links.LeftID)+"  R: "+slot(n.Links.RightID), font+"font-size:11px")
	if badges := Badges(n, focus); len(badges) > 0 {
		canvas.Text(cx, y+63, strings.Join(badges, " "), font+"font-size:11px")
	}
	if summary := ChildrenSummary(n); summary != "" {
		canvas.Text(cx, y+NodeHeight+14, summary, font+"font-size:10px")
	}
	canvas.Gend()

	if clickable {
		canvas.LinkEnd()
	}
}

func px(v float64) int {
	return int(math.Round(v))
}
