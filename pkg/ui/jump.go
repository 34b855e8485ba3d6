package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	"github.com/kraitsura/refnet/pkg/model"
)

const maxJumpResults = 8

// jumpTarget is one searchable row of the outline.
type jumpTarget struct {
	ID    model.NodeID
	Label string // what the query is matched against
	Row   int
}

// jumpModel is the "/" prompt: a fuzzy search over the visible node ids.
type jumpModel struct {
	input    textinput.Model
	targets  []jumpTarget
	matches  []jumpTarget
	selected int
	theme    Theme

	done   bool
	chosen *jumpTarget
}

// newJumpModel prepares a prompt over targets.
func newJumpModel(targets []jumpTarget, theme Theme) jumpModel {
	ti := textinput.New()
	ti.Placeholder = "node id..."
	ti.Prompt = "/ "
	ti.CharLimit = 24
	ti.Width = 24
	ti.Focus()

	m := jumpModel{input: ti, targets: targets, theme: theme}
	m.filter()
	return m
}

// Update handles input
func (m jumpModel) Update(msg tea.Msg) (jumpModel, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch km.String() {
		case "esc", "ctrl+c":
			m.done = true
			return m, nil
		case "enter":
			m.done = true
			if len(m.matches) > 0 {
				t := m.matches[m.selected]
				m.chosen = &t
			}
			return m, nil
		case "up", "ctrl+p":
			if m.selected > 0 {
				m.selected--
			}
			return m, nil
		case "down", "ctrl+n", "tab":
			if m.selected < len(m.matches)-1 {
				m.selected++
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	before := m.input.Value()
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != before {
		m.filter()
	}
	return m, cmd
}

// filter keeps the targets matching the query, best match first. An empty
// query keeps outline order.
func (m *jumpModel) filter() {
	m.selected = 0
	query := strings.TrimSpace(m.input.Value())
	if query == "" {
		m.matches = m.targets
		return
	}

	labels := make([]string, len(m.targets))
	for i, t := range m.targets {
		labels[i] = t.Label
	}
	found := fuzzy.Find(query, labels)

	m.matches = make([]jumpTarget, 0, len(found))
	for _, f := range found {
		m.matches = append(m.matches, m.targets[f.Index])
	}
}

// Done reports whether the prompt was closed.
func (m jumpModel) Done() bool {
	return m.done
}

// Chosen returns the selected target, or nil if the prompt was cancelled or
// nothing matched.
func (m jumpModel) Chosen() *jumpTarget {
	return m.chosen
}

// View renders the prompt and the best matches.
func (m jumpModel) View() string {
	t := m.theme
	var b strings.Builder
	b.WriteString(m.input.View())
	b.WriteString("\n")

	itemStyle := t.Renderer.NewStyle().Foreground(t.Subtext)
	selStyle := t.Renderer.NewStyle().Foreground(t.Primary).Bold(true)
	for i, target := range m.matches {
		if i == maxJumpResults {
			b.WriteString(itemStyle.Faint(true).Render(fmt.Sprintf("  … %d more", len(m.matches)-maxJumpResults)) + "\n")
			break
		}
		if i == m.selected {
			b.WriteString(selStyle.Render("▸ "+target.Label) + "\n")
		} else {
			b.WriteString(itemStyle.Render("  "+target.Label) + "\n")
		}
	}
	if len(m.matches) == 0 {
		b.WriteString(itemStyle.Faint(true).Render("  no match") + "\n")
	}

	return t.Renderer.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Primary).
		Padding(0, 1).
		Render(strings.TrimRight(b.String(), "\n"))
}
