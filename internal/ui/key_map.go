package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up        key.Binding
	down      key.Binding
	tab       key.Binding
	enter     key.Binding
	back      key.Binding
	yes       key.Binding
	no        key.Binding
	quit      key.Binding
	pause     key.Binding
	resume    key.Binding
	cancel    key.Binding
	retry     key.Binding
	remove    key.Binding
	removeAll key.Binding
	next      key.Binding
	previous  key.Binding
	repeat    key.Binding
	star      key.Binding
	clear     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		tab:       key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch tab")),
		enter:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "play")),
		back:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		yes:       key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "yes")),
		no:        key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n", "no")),
		quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		pause:     key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause")),
		resume:    key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "resume")),
		cancel:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "cancel")),
		retry:     key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "retry")),
		remove:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		removeAll: key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "delete all")),
		next:      key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next")),
		previous:  key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "back")),
		repeat:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "repeat")),
		star:      key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "star")),
		clear:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.tab, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.tab},
		{k.pause, k.resume, k.cancel, k.retry, k.remove, k.removeAll},
		{k.enter, k.next, k.previous, k.repeat, k.star, k.clear},
		{k.quit},
	}
}

func (k keyMap) downloadsHelp() []key.Binding {
	return []key.Binding{k.pause, k.resume, k.cancel, k.retry, k.remove, k.removeAll, k.tab, k.quit}
}

func (k keyMap) queueHelp() []key.Binding {
	return []key.Binding{k.enter, k.next, k.previous, k.repeat, k.star, k.clear, k.tab, k.quit}
}
