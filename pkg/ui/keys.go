package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap lists the bindings of the tree view. It satisfies help.KeyMap.
type keyMap struct {
	Up          key.Binding
	Down        key.Binding
	Top         key.Binding
	Bottom      key.Binding
	Parent      key.Binding
	Toggle      key.Binding
	Expand      key.Binding
	Collapse    key.Binding
	ExpandAll   key.Binding
	CollapseAll key.Binding
	Refresh     key.Binding
	Jump        key.Binding
	Yank        key.Binding
	Info        key.Binding
	Help        key.Binding
	Quit        key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:          key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
		Down:        key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
		Top:         key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "top")),
		Bottom:      key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "bottom")),
		Parent:      key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "go to parent")),
		Toggle:      key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "toggle")),
		Expand:      key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "expand")),
		Collapse:    key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "collapse")),
		ExpandAll:   key.NewBinding(key.WithKeys("E"), key.WithHelp("E", "expand all")),
		CollapseAll: key.NewBinding(key.WithKeys("C"), key.WithHelp("C", "collapse all")),
		Refresh:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Jump:        key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "jump to id")),
		Yank:        key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy id")),
		Info:        key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "info panel")),
		Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp is shown in the footer.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.ExpandAll, k.CollapseAll, k.Refresh, k.Jump, k.Help, k.Quit}
}

// FullHelp groups every binding by column.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Top, k.Bottom, k.Parent},
		{k.Toggle, k.Expand, k.Collapse, k.ExpandAll, k.CollapseAll, k.Refresh},
		{k.Jump, k.Yank, k.Info, k.Help, k.Quit},
	}
}
