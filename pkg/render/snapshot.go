package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kraitsura/refnet/pkg/model"
	"github.com/kraitsura/refnet/pkg/tree"
)

// SnapshotOptions configures SaveSnapshot.
type SnapshotOptions struct {
	Path    string
	Format  string // "svg", "png" or "txt"; empty infers from Path
	Mapping tree.Mapping
	FocusID model.NodeID
	Title   string
}

// ForFormat returns the renderer for "svg", "png" or "txt".
func ForFormat(format string) (Renderer, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "svg":
		return SVGRenderer{}, nil
	case "png":
		return PNGRenderer{}, nil
	case "txt", "text":
		return TextRenderer{}, nil
	}
	return nil, fmt.Errorf("unsupported snapshot format %q (want svg, png or txt)", format)
}

// SaveSnapshot renders the mapping to opts.Path.
func SaveSnapshot(opts SnapshotOptions) error {
	if opts.Path == "" {
		return fmt.Errorf("snapshot path is required")
	}
	format := opts.Format
	if format == "" {
		format = filepath.Ext(opts.Path)
	}
	r, err := ForFormat(format)
	if err != nil {
		return err
	}
	if s, ok := r.(SVGRenderer); ok {
		s.Title = opts.Title
		r = s
	}

	if dir := filepath.Dir(opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot directory: %w", err)
		}
	}
	f, err := os.Create(opts.Path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := r.Render(f, opts.Mapping, opts.FocusID); err != nil {
		f.Close()
		return fmt.Errorf("render %s: %w", opts.Path, err)
	}
	return f.Close()
}
