package tree

import (
	"fmt"
	"math"

	"github.com/kraitsura/refnet/pkg/model"
)

// Layout constants. The wide values match a desktop-sized canvas, the compact
// ones a narrow screen.
const (
	// DefaultFoldDepth is the level after which horizontal spacing stops halving.
	DefaultFoldDepth = 5

	// WideSpacingBase is the spacing unit between siblings at and below the fold depth.
	WideSpacingBase = 40

	// WideLevelHeight is the vertical distance between levels.
	WideLevelHeight = 120

	// WideBudget is the traversal budget for wide screens.
	WideBudget = 500

	// CompactSpacingBase, CompactLevelHeight and CompactBudget are the narrow-screen counterparts.
	CompactSpacingBase = 25
	CompactLevelHeight = 80
	CompactBudget      = 100

	// CompactBreakpoint is the terminal width (columns) below which the compact profile is used.
	CompactBreakpoint = 96
)

// Layout computes node coordinates from the parent, its level and the branch side.
type Layout struct {
	SpacingBase float64
	LevelHeight float64
	FoldDepth   int
}

// Validate rejects layouts that would stack nodes on top of each other.
func (l Layout) Validate() error {
	if l.SpacingBase <= 0 {
		return fmt.Errorf("spacing base must be positive, got %v", l.SpacingBase)
	}
	if l.LevelHeight <= 0 {
		return fmt.Errorf("level height must be positive, got %v", l.LevelHeight)
	}
	if l.FoldDepth < 0 {
		return fmt.Errorf("fold depth cannot be negative, got %d", l.FoldDepth)
	}
	return nil
}

// Spacing is the horizontal offset from a node at level to its children.
// It halves with each level until FoldDepth and stays constant after that.
func (l Layout) Spacing(level int) float64 {
	if level < 0 {
		level = 0
	}
	exp := l.FoldDepth - min(level, l.FoldDepth)
	return l.SpacingBase * math.Pow(2, float64(exp))
}

// ChildPosition places a child of a node at parent/parentLevel on the given side.
// Left children move left, right children move right; anything else stays on
// the parent's column.
func (l Layout) ChildPosition(parent model.Position, parentLevel int, branch model.Branch) model.Position {
	pos := model.Position{X: parent.X, Y: parent.Y + l.LevelHeight}
	switch branch {
	case model.BranchLeft:
		pos.X -= l.Spacing(parentLevel)
	case model.BranchRight:
		pos.X += l.Spacing(parentLevel)
	}
	return pos
}

// Profile bundles a layout with the traversal budget for a device class.
type Profile struct {
	Name   string
	Layout Layout
	Budget int
}

var (
	// WideProfile is used on desktop-sized outputs.
	WideProfile = Profile{
		Name:   "wide",
		Layout: Layout{SpacingBase: WideSpacingBase, LevelHeight: WideLevelHeight, FoldDepth: DefaultFoldDepth},
		Budget: WideBudget,
	}

	// CompactProfile is used on narrow outputs.
	CompactProfile = Profile{
		Name:   "compact",
		Layout: Layout{SpacingBase: CompactSpacingBase, LevelHeight: CompactLevelHeight, FoldDepth: DefaultFoldDepth},
		Budget: CompactBudget,
	}
)

// ProfileForWidth picks a profile from the output width in columns.
// Unknown widths (<= 0) get the wide profile.
func ProfileForWidth(cols int) Profile {
	if cols > 0 && cols < CompactBreakpoint {
		return CompactProfile
	}
	return WideProfile
}

// ProfileByName resolves "wide", "compact" or "auto" (with the given width).
func ProfileByName(name string, cols int) (Profile, error) {
	switch name {
	case "", "auto":
		return ProfileForWidth(cols), nil
	case WideProfile.Name:
		return WideProfile, nil
	case CompactProfile.Name:
		return CompactProfile, nil
	}
	return Profile{}, fmt.Errorf("unknown layout profile %q (want auto, wide or compact)", name)
}
