package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Submit   key.Binding
	Escalate key.Binding
	Clear    key.Binding
	Toggle   key.Binding
	Quick    key.Binding
	ScrollUp key.Binding
	ScrollDn key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Submit:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
	Escalate: key.NewBinding(key.WithKeys("ctrl+w"), key.WithHelp("ctrl+w", "whatsapp")),
	Clear:    key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "clear")),
	Toggle:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "open/close")),
	Quick:    key.NewBinding(key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"), key.WithHelp("1-9", "quick reply")),
	ScrollUp: key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
	ScrollDn: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
	Quit:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
}

func (k keyMap) help(open bool) []key.Binding {
	if !open {
		return []key.Binding{k.Toggle, k.Quit}
	}
	return []key.Binding{k.Submit, k.Quick, k.Escalate, k.Clear, k.Toggle, k.Quit}
}
