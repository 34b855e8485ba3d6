package render

import (
	"fmt"
	"io"
	"math"
	"strings"

	"git.sr.ht/~sbinet/gg"
	"golang.org/x/image/font/basicfont"

	"github.com/kraitsura/refnet/pkg/model"
	"github.com/kraitsura/refnet/pkg/tree"
)

// MaxPNGDimension caps the longer side of a PNG; larger scenes are scaled down.
const MaxPNGDimension = 8192

// PNGRenderer rasterizes the tree.
type PNGRenderer struct{}

// Render implements Renderer.
func (PNGRenderer) Render(w io.Writer, m tree.Mapping, focus model.NodeID) error {
	scene := Normalize(m, focus)

	scale := 1.0
	if longest := math.Max(scene.Width, scene.Height); longest > MaxPNGDimension {
		scale = MaxPNGDimension / longest
	}
	width := int(math.Ceil(scene.Width * scale))
	height := int(math.Ceil(scene.Height * scale))

	dc := gg.NewContext(width, height)
	dc.SetHexColor(background)
	dc.Clear()
	dc.Scale(scale, scale)
	dc.SetFontFace(basicfont.Face7x13)

	if scene.Empty() {
		dc.SetHexColor(textColor)
		dc.DrawStringAnchored("No users found", scene.Width/2, TopMargin, 0.5, 0.5)
		return dc.EncodePNG(w)
	}

	dc.SetHexColor(textColor)
	dc.DrawStringAnchored(fmt.Sprintf("Users: %d  Depth: %d", scene.Stats.Users, scene.Stats.Depth), 12, 20, 0, 0.5)

	dc.SetHexColor(edgeColor)
	dc.SetLineWidth(3)
	for _, e := range scene.Edges {
		dc.DrawLine(e.X1, e.Y1, e.X2, e.Y2)
		dc.Stroke()
	}

	for _, p := range scene.Nodes {
		n := p.Node
		x, y := p.X-NodeWidth/2, p.Y-nodeHalfHeight

		dc.SetHexColor(stateFill[n.State()])
		dc.DrawRoundedRectangle(x, y, NodeWidth, NodeHeight, 10)
		dc.Fill()
		if n.ID == focus {
			dc.SetHexColor(focusStroke)
			dc.SetLineWidth(4)
			dc.DrawRoundedRectangle(x, y, NodeWidth, NodeHeight, 10)
			dc.Stroke()
		}

		dc.SetHexColor(textColor)
		dc.DrawStringAnchored(n.ID.String(), p.X, y+14, 0.5, 0.5)
		dc.DrawStringAnchored("up: "+slot(n.ParentID), p.X, y+30, 0.5, 0.5)
		dc.DrawStringAnchored("L: "+slot(n.Links.LeftID)+" R: "+slot(n.Links.RightID), p.X, y+44, 0.5, 0.5)
		if badges := Badges(n, focus); len(badges) > 0 {
			dc.DrawStringAnchored(strings.Join(badges, " "), p.X, y+60, 0.5, 0.5)
		}
		if summary := ChildrenSummary(n); summary != "" {
			dc.DrawStringAnchored(summary, p.X, y+NodeHeight+12, 0.5, 0.5)
		}
	}

	return dc.EncodePNG(w)
}
