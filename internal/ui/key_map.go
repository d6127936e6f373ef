package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	enter       key.Binding
	back        key.Binding
	add         key.Binding
	pause       key.Binding
	cancel      key.Binding
	retry       key.Binding
	retryFailed key.Binding
	refresh     key.Binding
	yes         key.Binding
	no          key.Binding
	quit        key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		enter:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
		back:        key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		add:         key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add")),
		pause:       key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause")),
		cancel:      key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "cancel")),
		retry:       key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry")),
		retryFailed: key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "retry failed")),
		refresh:     key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "refresh")),
		yes:         key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "yes")),
		no:          key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n", "no")),
		quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.add, k.enter, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.enter, k.back, k.add},
		{k.pause, k.cancel, k.retry, k.retryFailed},
		{k.refresh, k.quit},
	}
}
