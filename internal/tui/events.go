package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hay-kot/chatwidget/internal/core/conversation"
	"github.com/hay-kot/chatwidget/internal/engine"
)

// Engine notifications forwarded into the program.
type (
	stateMsg struct {
		from, to engine.State
	}
	messageMsg struct {
		msg conversation.Message
	}
	toggleMsg struct {
		open bool
	}
	escalateMsg struct {
		link string
	}
)

// syncMsg asks the model to re-read the engine after an action completed.
type syncMsg struct{}

type errMsg struct {
	err error
}

// Forwarder is an engine listener that delivers notifications to a running
// program. Send is typically (*tea.Program).Send.
type Forwarder struct {
	engine.BaseListener
	Send func(tea.Msg)
}

var _ engine.Listener = Forwarder{}

func (f Forwarder) OnStateChange(from, to engine.State) {
	f.Send(stateMsg{from: from, to: to})
}

func (f Forwarder) OnMessage(msg conversation.Message) {
	f.Send(messageMsg{msg: msg})
}

func (f Forwarder) OnToggle(open bool) {
	f.Send(toggleMsg{open: open})
}

func (f Forwarder) OnEscalate(link string) {
	f.Send(escalateMsg{link: link})
}
