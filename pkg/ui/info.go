package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/dustin/go-humanize"

	"github.com/kraitsura/refnet/pkg/contract"
	"github.com/kraitsura/refnet/pkg/model"
)

// infoMarkdown describes the selected node. The focus node also gets the
// contract record of the focus user, the only record the viewer holds.
func infoMarkdown(node *model.TreeNode, focus *model.UserRecord, lastErr error) string {
	var b strings.Builder

	if lastErr != nil {
		kind := contract.Classify(lastErr)
		fmt.Fprintf(&b, "> **%s**\n\n", kind.Message())
	}

	if focus != nil && !focus.IsRegistered() {
		fmt.Fprintf(&b, "## %s\n\n%s\n", shortAddress(focus.Address), contract.KindNotRegistered.Message())
		return b.String()
	}
	if node == nil {
		b.WriteString("_No node selected._\n")
		return b.String()
	}

	fmt.Fprintf(&b, "## User %s\n\n", node.ID)
	b.WriteString("| Field | Value |\n|---|---|\n")
	row := func(k, v string) { fmt.Fprintf(&b, "| %s | %s |\n", k, v) }

	row("Branch", string(node.Branch))
	row("Level", humanize.Comma(int64(node.Level)))
	if !node.ParentID.IsZero() {
		row("Parent", node.ParentID.String())
	}
	row("State", string(node.State()))
	if node.HasChildren {
		row("Children", idOrDash(node.Links.LeftID)+" / "+idOrDash(node.Links.RightID))
	}
	if node.FetchFailed {
		row("Lookup", "failed, press r to retry")
	}

	if node.IsFocus && focus != nil {
		b.WriteString("\n### Account\n\n")
		b.WriteString("| Field | Value |\n|---|---|\n")
		row("Address", "`"+focus.Address+"`")
		row("Upline", idOrDash(focus.UplineID))
		row("Left / right", humanize.Comma(int64(focus.LeftCount))+" / "+humanize.Comma(int64(focus.RightCount)))
		row("Saved left / right", humanize.Comma(int64(focus.SaveLeft))+" / "+humanize.Comma(int64(focus.SaveRight)))
		row("Balance", humanize.Comma(int64(focus.BalanceCount)))
		row("Special balance", humanize.Comma(int64(focus.SpecialBalanceCount)))
		row("Miner rewards", model.FormatEther(focus.TotalMinerRewards, 2)+" MATIC")
		row("Entry price", model.FormatEther(focus.EntryPrice, 2)+" MATIC")
		status := "User"
		if focus.IsMiner {
			status = "Miner"
		}
		row("Status", status)
	}
	return b.String()
}

func idOrDash(id model.NodeID) string {
	if id.IsZero() {
		return "--"
	}
	return id.String()
}

func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// infoRenderer caches a glamour renderer per wrap width.
type infoRenderer struct {
	width int
	r     *glamour.TermRenderer
}

// Render turns markdown into styled terminal text. If glamour fails the
// markdown is returned as is.
func (ir *infoRenderer) Render(md string, width int) string {
	if width < 20 {
		width = 20
	}
	if ir.r == nil || ir.width != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return md
		}
		ir.r, ir.width = r, width
	}
	out, err := ir.r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}
