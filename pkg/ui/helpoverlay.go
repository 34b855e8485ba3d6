package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// HelpOverlayModel lists every key binding, grouped by section.
type HelpOverlayModel struct {
	visible bool
	keys    keyMap
	theme   Theme
}

// NewHelpOverlayModel creates a hidden help overlay
func NewHelpOverlayModel(keys keyMap, theme Theme) HelpOverlayModel {
	return HelpOverlayModel{keys: keys, theme: theme}
}

// Toggle toggles visibility
func (m *HelpOverlayModel) Toggle() {
	m.visible = !m.visible
}

// IsVisible returns true if overlay is showing
func (m HelpOverlayModel) IsVisible() bool {
	return m.visible
}

// Update closes the overlay on any key.
func (m HelpOverlayModel) Update(msg tea.Msg) (HelpOverlayModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}
	if _, ok := msg.(tea.KeyMsg); ok {
		m.visible = false
	}
	return m, nil
}

// View renders the help overlay
func (m HelpOverlayModel) View() string {
	if !m.visible {
		return ""
	}

	var b strings.Builder

	titleStyle := m.theme.Renderer.NewStyle().
		Bold(true).
		Foreground(m.theme.Primary).
		MarginBottom(1)
	b.WriteString(titleStyle.Render("Referral Tree Help"))
	b.WriteString("\n\n")

	sectionStyle := m.theme.Renderer.NewStyle().Bold(true).Foreground(m.theme.Secondary)
	keyStyle := m.theme.Renderer.NewStyle().Foreground(m.theme.Primary).Width(12)
	descStyle := m.theme.Renderer.NewStyle().Foreground(m.theme.Subtext)

	k := m.keys
	sections := []struct {
		title    string
		bindings []key.Binding
	}{
		{"NAVIGATION", []key.Binding{k.Up, k.Down, k.Top, k.Bottom, k.Parent, k.Jump}},
		{"TREE", []key.Binding{k.Toggle, k.Expand, k.Collapse, k.ExpandAll, k.CollapseAll, k.Refresh}},
		{"VIEW", []key.Binding{k.Info, k.Yank, k.Help, k.Quit}},
	}
	for i, s := range sections {
		b.WriteString(sectionStyle.Render(s.title) + "\n")
		for _, binding := range s.bindings {
			h := binding.Help()
			b.WriteString("  " + keyStyle.Render(h.Key) + descStyle.Render(h.Desc) + "\n")
		}
		if i < len(sections)-1 {
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	hintStyle := m.theme.Renderer.NewStyle().Faint(true).Italic(true)
	b.WriteString(hintStyle.Render("Expand all reveals one budget of nodes per press."))
	b.WriteString("\n")
	b.WriteString(hintStyle.Render("[Press any key to close]"))

	boxStyle := m.theme.Renderer.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.theme.Border).
		Padding(1, 2)

	return boxStyle.Render(b.String())
}
