package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	add        key.Binding
	edit       key.Binding
	remove     key.Binding
	sync       key.Binding
	importKey  key.Binding
	connect    key.Binding
	disconnect key.Binding
	reload     key.Binding
	next       key.Binding
	prev       key.Binding
	enter      key.Binding
	back       key.Binding
	yes        key.Binding
	no         key.Binding
	quit       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		add:        key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add link")),
		edit:       key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit profile")),
		remove:     key.NewBinding(key.WithKeys("d", "delete"), key.WithHelp("d", "delete")),
		sync:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sync")),
		importKey:  key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "import nexus")),
		connect:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "connect")),
		disconnect: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "disconnect")),
		reload:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		next:       key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab", "next field")),
		prev:       key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab", "prev field")),
		enter:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
		back:       key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		yes:        key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "yes")),
		no:         key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "no")),
		quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.add, k.remove, k.sync, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.add, k.edit, k.remove},
		{k.sync, k.importKey, k.reload},
		{k.connect, k.disconnect, k.quit},
	}
}
