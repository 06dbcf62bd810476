package app

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	ToggleFocus key.Binding
	Help        key.Binding
	Quit        key.Binding
	ModeChooser key.Binding
	PortChooser key.Binding
}

var GlobalKeys = KeyMap{
	ToggleFocus: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "toggle focus"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	ModeChooser: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "mode"),
	),
	PortChooser: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "port"),
	),
}
