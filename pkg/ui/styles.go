package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/kraitsura/refnet/pkg/model"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLOR PALETTE - Dracula-inspired, with node-state colors
// ══════════════════════════════════════════════════════════════════════════════

var (
	ColorText        = lipgloss.Color("#F8F8F2")
	ColorSubtext     = lipgloss.Color("#BFBFBF")
	ColorMuted       = lipgloss.Color("#6272A4")
	ColorBgHighlight = lipgloss.Color("#44475A")

	ColorPrimary = lipgloss.Color("#BD93F9")
	ColorInfo    = lipgloss.Color("#8BE9FD")
	ColorSuccess = lipgloss.Color("#50FA7B")
	ColorWarning = lipgloss.Color("#FFB86C")
	ColorDanger  = lipgloss.Color("#FF5555")
	ColorFocus   = lipgloss.Color("#FF79C6")
)

// Theme carries the renderer and semantic colors every view draws with.
type Theme struct {
	Renderer *lipgloss.Renderer

	Primary   lipgloss.AdaptiveColor
	Secondary lipgloss.AdaptiveColor
	Subtext   lipgloss.AdaptiveColor
	Border    lipgloss.AdaptiveColor

	Expanded  lipgloss.AdaptiveColor
	Collapsed lipgloss.AdaptiveColor
	Leaf      lipgloss.AdaptiveColor
	Failed    lipgloss.AdaptiveColor
	Focus     lipgloss.AdaptiveColor
}

// DefaultTheme returns the viewer palette bound to r. A nil r uses the
// default renderer.
func DefaultTheme(r *lipgloss.Renderer) Theme {
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	return Theme{
		Renderer:  r,
		Primary:   lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: string(ColorPrimary)},
		Secondary: lipgloss.AdaptiveColor{Light: "#4A5A8C", Dark: string(ColorMuted)},
		Subtext:   lipgloss.AdaptiveColor{Light: "#555555", Dark: string(ColorSubtext)},
		Border:    lipgloss.AdaptiveColor{Light: "#CCCCCC", Dark: string(ColorBgHighlight)},
		Expanded:  lipgloss.AdaptiveColor{Light: "#1E8C3A", Dark: string(ColorSuccess)},
		Collapsed: lipgloss.AdaptiveColor{Light: "#2B7A99", Dark: string(ColorInfo)},
		Leaf:      lipgloss.AdaptiveColor{Light: "#777777", Dark: string(ColorSubtext)},
		Failed:    lipgloss.AdaptiveColor{Light: "#C62828", Dark: string(ColorDanger)},
		Focus:     lipgloss.AdaptiveColor{Light: "#C2185B", Dark: string(ColorFocus)},
	}
}

// StateColor returns the color used for a node in state s.
func (t Theme) StateColor(s model.NodeState) lipgloss.AdaptiveColor {
	switch s {
	case model.StateExpanded:
		return t.Expanded
	case model.StateCollapsed:
		return t.Collapsed
	case model.StateFailed:
		return t.Failed
	default:
		return t.Leaf
	}
}

// RenderStateBadge returns the colored state marker of a node, padded to one
// cell so rows line up.
func (t Theme) RenderStateBadge(s model.NodeState) string {
	badge := s.Badge()
	if badge == "" {
		badge = "·"
	}
	return t.Renderer.NewStyle().Foreground(t.StateColor(s)).Bold(true).Render(badge)
}
