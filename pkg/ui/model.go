// Package ui is the terminal front-end of the referral tree viewer.
//
// The tree is shown as an outline, left subtree first. Every action goes
// through tree.Session and runs off the update loop; results come back as
// messages tagged with a sequence number so that an answer to an older
// action never overwrites a newer one.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/kraitsura/refnet/pkg/contract"
	"github.com/kraitsura/refnet/pkg/model"
	"github.com/kraitsura/refnet/pkg/tree"
)

const (
	headerLines = 2
	footerLines = 2
)

// buildMsg carries the outcome of a session action.
type buildMsg struct {
	seq     uint64
	trigger string
	res     *tree.Result
	err     error
}

// ReloadedMsg tells the model the session was refreshed from outside, for
// example after the fixture file changed.
type ReloadedMsg struct {
	Result *tree.Result
	Err    error
}

// row is one outline line with its precomputed tree prefix.
type row struct {
	item   tree.OutlineItem
	prefix string
}

// Option configures a Model.
type Option func(*Model)

// WithContext sets the context session actions run under.
func WithContext(ctx context.Context) Option {
	return func(m *Model) { m.ctx = ctx }
}

// WithAddress makes Init load the given focus address.
func WithAddress(address string) Option {
	return func(m *Model) { m.address = address }
}

// WithTheme overrides the default theme.
func WithTheme(t Theme) Option {
	return func(m *Model) { m.theme = t }
}

// WithClipboard replaces the system clipboard writer.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) { m.copy = write }
}

// WithProfileName labels the header with the layout profile in use.
func WithProfileName(name string) Option {
	return func(m *Model) { m.profile = name }
}

// Model is the bubbletea model of the tree viewer.
type Model struct {
	session *tree.Session
	ctx     context.Context
	address string
	profile string
	copy    func(string) error

	theme   Theme
	keys    keyMap
	help    help.Model
	spinner spinner.Model
	overlay HelpOverlayModel
	jump    *jumpModel
	info    viewport.Model
	infoR   infoRenderer

	rows   []row
	cursor int
	scroll int

	width    int
	height   int
	showInfo bool

	loading bool
	seq     uint64
	lastErr error
	status  string
}

// New creates a model over session.
func New(session *tree.Session, opts ...Option) *Model {
	m := &Model{
		session:  session,
		ctx:      context.Background(),
		copy:     clipboard.WriteAll,
		theme:    DefaultTheme(nil),
		keys:     defaultKeyMap(),
		help:     help.New(),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		info:     viewport.New(40, 10),
		width:    100,
		height:   30,
		showInfo: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.overlay = NewHelpOverlayModel(m.keys, m.theme)
	m.spinner.Style = m.theme.Renderer.NewStyle().Foreground(m.theme.Primary)
	m.setRows(session.Current().Mapping)
	m.layoutInfo()
	return m
}

// Init starts the initial load when an address was given.
func (m *Model) Init() tea.Cmd {
	if m.address == "" {
		return nil
	}
	addr := m.address
	return m.run(model.TriggerLoad, func(ctx context.Context) (*tree.Result, error) {
		return m.session.Load(ctx, addr)
	})
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.layoutInfo()
		m.ensureVisible()
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case buildMsg:
		m.handleBuild(msg)
		return m, nil

	case ReloadedMsg:
		if msg.Err != nil {
			m.lastErr = msg.Err
			m.status = "reload failed: " + msg.Err.Error()
		} else if msg.Result != nil {
			m.lastErr = nil
			m.setRows(msg.Result.Mapping)
			m.status = "fixture reloaded"
		}
		m.refreshInfo()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.overlay.IsVisible() {
		var cmd tea.Cmd
		m.overlay, cmd = m.overlay.Update(msg)
		return m, cmd
	}

	if m.jump != nil {
		j, cmd := m.jump.Update(msg)
		if j.Done() {
			if t := j.Chosen(); t != nil {
				m.moveTo(t.Row)
			}
			m.jump = nil
			return m, nil
		}
		m.jump = &j
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.overlay.Toggle()
	case key.Matches(msg, m.keys.Up):
		m.moveTo(m.cursor - 1)
	case key.Matches(msg, m.keys.Down):
		m.moveTo(m.cursor + 1)
	case key.Matches(msg, m.keys.Top):
		m.moveTo(0)
	case key.Matches(msg, m.keys.Bottom):
		m.moveTo(len(m.rows) - 1)
	case key.Matches(msg, m.keys.Parent):
		m.moveToParent()
	case key.Matches(msg, m.keys.Toggle):
		return m, m.toggleSelected(nil)
	case key.Matches(msg, m.keys.Expand):
		want := model.StateCollapsed
		return m, m.toggleSelected(&want)
	case key.Matches(msg, m.keys.Collapse):
		if n := m.Selected(); n != nil && n.State() != model.StateExpanded {
			m.moveToParent()
			return m, nil
		}
		want := model.StateExpanded
		return m, m.toggleSelected(&want)
	case key.Matches(msg, m.keys.ExpandAll):
		return m, m.run(model.TriggerExpandAll, m.session.ExpandAll)
	case key.Matches(msg, m.keys.CollapseAll):
		return m, m.run(model.TriggerCollapseAll, m.session.CollapseAll)
	case key.Matches(msg, m.keys.Refresh):
		return m, m.run(model.TriggerRefresh, m.session.Refresh)
	case key.Matches(msg, m.keys.Jump):
		m.openJump()
	case key.Matches(msg, m.keys.Yank):
		m.yank()
	case key.Matches(msg, m.keys.Info):
		m.showInfo = !m.showInfo
		m.layoutInfo()
	default:
		if m.showInfo {
			var cmd tea.Cmd
			m.info, cmd = m.info.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

// run starts a session action off the update loop.
func (m *Model) run(trigger string, op func(context.Context) (*tree.Result, error)) tea.Cmd {
	m.seq++
	seq := m.seq
	m.loading = true
	m.status = ""
	ctx := m.ctx
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		res, err := op(ctx)
		return buildMsg{seq: seq, trigger: trigger, res: res, err: err}
	})
}

func (m *Model) handleBuild(msg buildMsg) {
	if msg.seq != m.seq {
		// answer to an action the user already replaced
		return
	}
	m.loading = false
	switch {
	case errors.Is(msg.err, tree.ErrSuperseded):
		return
	case msg.err != nil:
		m.lastErr = msg.err
		m.status = contract.Classify(msg.err).Message()
		m.setRows(m.session.Current().Mapping)
	default:
		m.lastErr = nil
		m.setRows(msg.res.Mapping)
		if msg.res.Stats.Truncated {
			m.status = fmt.Sprintf("showing the first %d users, expand further to see more", msg.res.Stats.Visited)
		}
	}
	m.refreshInfo()
}

func (m *Model) toggleSelected(want *model.NodeState) tea.Cmd {
	n := m.Selected()
	if n == nil {
		return nil
	}
	state := n.State()
	if state == model.StateLeaf {
		m.status = fmt.Sprintf("user %s has no directs", n.ID)
		return nil
	}
	if want != nil && state != *want {
		return nil
	}
	id := n.ID
	return m.run(model.TriggerToggle, func(ctx context.Context) (*tree.Result, error) {
		return m.session.Toggle(ctx, id)
	})
}

func (m *Model) openJump() {
	targets := make([]jumpTarget, len(m.rows))
	for i, r := range m.rows {
		targets[i] = jumpTarget{ID: r.item.Node.ID, Label: r.item.Node.ID.String(), Row: i}
	}
	j := newJumpModel(targets, m.theme)
	m.jump = &j
}

// yank copies the selected id, or the focus address on the focus row.
func (m *Model) yank() {
	n := m.Selected()
	if n == nil {
		return
	}
	text := n.ID.String()
	if focus := m.session.Focus(); n.IsFocus && focus != nil && focus.Address != "" {
		text = focus.Address
	}
	if err := m.copy(text); err != nil {
		m.status = "clipboard unavailable: " + err.Error()
		return
	}
	m.status = "copied " + text
}

// setRows replaces the outline, keeping the cursor on the same node when it
// survived the rebuild.
func (m *Model) setRows(mapping tree.Mapping) {
	var selected model.NodeID
	if n := m.Selected(); n != nil {
		selected = n.ID
	}

	items := mapping.Outline()
	m.rows = make([]row, len(items))
	// open[d] is true while the ancestor at depth d+1 has siblings below it
	var open []bool
	for i, item := range items {
		if item.Depth > 0 {
			open = append(open[:item.Depth-1], !item.IsLast)
		}
		var prefix strings.Builder
		for d := 0; d < item.Depth-1; d++ {
			if open[d] {
				prefix.WriteString("│  ")
			} else {
				prefix.WriteString("   ")
			}
		}
		if item.Depth > 0 {
			if item.IsLast {
				prefix.WriteString("└─ ")
			} else {
				prefix.WriteString("├─ ")
			}
		}
		m.rows[i] = row{item: item, prefix: prefix.String()}
	}

	m.cursor = 0
	for i, r := range m.rows {
		if r.item.Node.ID == selected {
			m.cursor = i
			break
		}
	}
	m.ensureVisible()
}

func (m *Model) moveTo(i int) {
	if len(m.rows) == 0 {
		return
	}
	if i < 0 {
		i = 0
	}
	if i >= len(m.rows) {
		i = len(m.rows) - 1
	}
	if i == m.cursor {
		return
	}
	m.cursor = i
	m.ensureVisible()
	m.refreshInfo()
}

func (m *Model) moveToParent() {
	n := m.Selected()
	if n == nil || n.ParentID.IsZero() {
		return
	}
	for i, r := range m.rows {
		if r.item.Node.ID == n.ParentID {
			m.moveTo(i)
			return
		}
	}
}

// Selected returns the node under the cursor, or nil.
func (m *Model) Selected() *model.TreeNode {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return nil
	}
	return m.rows[m.cursor].item.Node
}

// Loading reports whether an action is in flight.
func (m *Model) Loading() bool {
	return m.loading
}

// Status returns the message shown in the footer.
func (m *Model) Status() string {
	return m.status
}

func (m *Model) compact() bool {
	return m.width < tree.CompactBreakpoint
}

func (m *Model) bodyHeight() int {
	h := m.height - headerLines - footerLines
	if m.jump != nil {
		h -= lipgloss.Height(m.jump.View())
	}
	if h < 3 {
		h = 3
	}
	return h
}

// ensureVisible adjusts scroll to keep cursor visible
func (m *Model) ensureVisible() {
	visible := m.bodyHeight()
	if m.compact() && m.showInfo {
		visible = visible / 2
		if visible < 3 {
			visible = 3
		}
	}
	if m.cursor < m.scroll {
		m.scroll = m.cursor
	} else if m.cursor >= m.scroll+visible {
		m.scroll = m.cursor - visible + 1
	}
	maxScroll := len(m.rows) - visible
	if maxScroll < 0 {
		maxScroll = 0
	}
	if m.scroll > maxScroll {
		m.scroll = maxScroll
	}
	if m.scroll < 0 {
		m.scroll = 0
	}
}

// treeWidth is the outline width; the info panel takes the rest on wide
// terminals.
func (m *Model) treeWidth() int {
	if !m.showInfo || m.compact() {
		return m.width
	}
	return m.width * 55 / 100
}

func (m *Model) layoutInfo() {
	w := m.width - m.treeWidth() - 1
	h := m.bodyHeight()
	if m.compact() {
		w = m.width
		h = m.bodyHeight() - m.bodyHeight()/2
	}
	if w < 20 {
		w = 20
	}
	m.info.Width = w
	m.info.Height = h
	m.refreshInfo()
}

func (m *Model) refreshInfo() {
	if !m.showInfo {
		return
	}
	md := infoMarkdown(m.Selected(), m.session.Focus(), m.lastErr)
	m.info.SetContent(m.infoR.Render(md, m.info.Width-2))
	m.info.GotoTop()
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.overlay.IsVisible() {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.overlay.View())
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	body := m.renderTree(m.treeWidth(), m.bodyHeight())
	switch {
	case m.showInfo && m.compact():
		treeH := m.bodyHeight() / 2
		body = m.renderTree(m.width, treeH) + "\n" + m.info.View()
	case m.showInfo:
		divider := m.theme.Renderer.NewStyle().Foreground(m.theme.Border).
			Render(strings.TrimRight(strings.Repeat("│\n", m.bodyHeight()), "\n"))
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, divider, m.info.View())
	}
	b.WriteString(body)
	b.WriteString("\n")

	if m.jump != nil {
		b.WriteString(m.jump.View())
		b.WriteString("\n")
	}
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m *Model) renderHeader() string {
	t := m.theme
	titleStyle := t.Renderer.NewStyle().Bold(true).Foreground(t.Primary)
	statsStyle := t.Renderer.NewStyle().Foreground(t.Subtext)

	title := "Referral network"
	if focus := m.session.Focus(); focus.IsRegistered() {
		title = "Referral network of user " + focus.ID.String()
	}

	res := m.session.Current()
	s := res.Mapping.Stats()
	stats := fmt.Sprintf("users %d · depth %d", s.Users, s.Depth)
	if s.Failed > 0 {
		stats += fmt.Sprintf(" · failed %d", s.Failed)
	}
	if res.Stats.Truncated {
		stats += " · truncated"
	}
	if m.profile != "" {
		stats += " · " + m.profile
	}

	line := titleStyle.Render("◆ "+title) + "  " + statsStyle.Render(stats)
	if m.loading {
		line += "  " + m.spinner.View()
	}
	sep := t.Renderer.NewStyle().Foreground(t.Border).Render(strings.Repeat("─", max(m.width, 1)))
	return line + "\n" + sep
}

func (m *Model) renderTree(width, height int) string {
	t := m.theme
	var lines []string

	if len(m.rows) == 0 {
		msg := "Nothing loaded yet."
		if focus := m.session.Focus(); focus != nil && !focus.IsRegistered() {
			msg = contract.KindNotRegistered.Message()
		} else if m.loading {
			msg = "Loading…"
		}
		lines = append(lines, t.Renderer.NewStyle().Foreground(t.Subtext).Render(runewidth.Truncate(msg, width, "…")))
	}

	end := m.scroll + height
	if end > len(m.rows) {
		end = len(m.rows)
	}
	for i := m.scroll; i < end; i++ {
		lines = append(lines, m.renderRow(i, width))
	}
	for len(lines) < height {
		lines = append(lines, "")
	}

	return t.Renderer.NewStyle().Width(width).Render(strings.Join(lines, "\n"))
}

func (m *Model) renderRow(i, width int) string {
	t := m.theme
	r := m.rows[i]
	n := r.item.Node
	state := n.State()

	cursor := "  "
	if i == m.cursor {
		cursor = t.Renderer.NewStyle().Foreground(t.Primary).Render("▸ ")
	}
	prefix := t.Renderer.NewStyle().Foreground(t.Border).Render(r.prefix)

	var label strings.Builder
	switch n.Branch {
	case model.BranchLeft:
		label.WriteString("L ")
	case model.BranchRight:
		label.WriteString("R ")
	}
	label.WriteString(n.ID.String())
	if n.IsFocus {
		label.WriteString(" (you)")
	}
	if state == model.StateCollapsed {
		label.WriteString("  " + idOrDash(n.Links.LeftID) + " / " + idOrDash(n.Links.RightID))
	}

	room := width - 2 - runewidth.StringWidth(r.prefix) - 2
	text := runewidth.Truncate(label.String(), max(room, 1), "…")

	style := t.Renderer.NewStyle().Foreground(t.StateColor(state))
	if n.IsFocus {
		style = style.Foreground(t.Focus)
	}
	if i == m.cursor {
		style = style.Bold(true)
	}
	return cursor + prefix + t.RenderStateBadge(state) + " " + style.Render(text)
}

func (m *Model) renderFooter() string {
	t := m.theme
	sep := t.Renderer.NewStyle().Foreground(t.Border).Render(strings.Repeat("─", max(m.width, 1)))
	line := m.help.View(m.keys)
	if m.status != "" {
		style := t.Renderer.NewStyle().Foreground(t.Secondary)
		if m.lastErr != nil {
			style = style.Foreground(t.Failed)
		}
		line = style.Render(runewidth.Truncate(m.status, max(m.width, 1), "…"))
	}
	return sep + "\n" + line
}
